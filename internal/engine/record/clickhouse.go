package record

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS ids_records (
    Timestamp   DateTime64(3),
    SrcIP       String,
    DstIP       String,
    SrcPort     UInt16,
    DstPort     UInt16,
    Protocol    LowCardinality(String),
    Service     LowCardinality(String),
    Flag        LowCardinality(String),
    Label       LowCardinality(String),
    Confidence  Float64,
    Features    Array(Float64)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Label, Timestamp);
`

// ClickHouseConfig addresses the record database.
type ClickHouseConfig struct {
	Host      string
	Port      int
	Database  string
	Username  string
	Password  string
	BatchSize int
}

// ClickHouseWriter buffers records and inserts them in batches.
type ClickHouseWriter struct {
	conn      driver.Conn
	batchSize int
	pending   []row
}

type row struct {
	ts         time.Time
	srcIP      string
	dstIP      string
	srcPort    uint16
	dstPort    uint16
	protocol   string
	service    string
	flag       string
	label      string
	confidence float64
	features   []float64
}

// NewClickHouseWriter connects and ensures the record table exists.
func NewClickHouseWriter(cfg ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.WithField("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Info("Connected to ClickHouse and ensured record table exists")

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &ClickHouseWriter{conn: conn, batchSize: batch, pending: make([]row, 0, batch)}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg ClickHouseConfig) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func toRow(r *Record) row {
	return row{
		ts:         r.Timestamp,
		srcIP:      r.Key.SrcIP.String(),
		dstIP:      r.Key.DstIP.String(),
		srcPort:    r.Key.SrcPort,
		dstPort:    r.Key.DstPort,
		protocol:   r.Vector.Protocol,
		service:    r.Vector.Service,
		flag:       r.Vector.Flag,
		label:      string(r.Label),
		confidence: r.Confidence,
		features:   append([]float64(nil), r.Vector.Values[:]...),
	}
}

// Write queues r and sends the batch once it is full.
func (w *ClickHouseWriter) Write(r *Record) error {
	w.pending = append(w.pending, toRow(r))
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.Flush()
}

// Flush inserts all queued records. Queued rows are dropped on failure so a
// broken server cannot grow the buffer without bound.
func (w *ClickHouseWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := w.pending
	w.pending = w.pending[:0]

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO ids_records")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.ts, r.srcIP, r.dstIP, r.srcPort, r.dstPort, r.protocol,
			r.service, r.flag, r.label, r.confidence, r.features); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append record to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.WithField("rows", len(rows)).Debug("Wrote records to ClickHouse")
	return nil
}

func (w *ClickHouseWriter) Close() error {
	flushErr := w.Flush()
	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("failed to close clickhouse connection: %w", err)
	}
	return flushErr
}

var (
	_ Writer = (*ClickHouseWriter)(nil)
	_ Writer = (*CSVWriter)(nil)
	_ Writer = MultiWriter(nil)
)
