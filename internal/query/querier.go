package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Go2NetIDS/internal/engine/record"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DefaultLimit caps anomaly listings when the caller does not.
const DefaultLimit = 100

// AnomalyFilter narrows an anomaly listing. Zero values mean unbounded.
type AnomalyFilter struct {
	Since time.Time
	Until time.Time
	SrcIP string
	Limit int
}

// Anomaly is one anomalous record stored by the ClickHouse writer.
type Anomaly struct {
	Timestamp  time.Time `json:"timestamp"`
	SrcIP      string    `json:"src_ip"`
	DstIP      string    `json:"dst_ip"`
	SrcPort    uint16    `json:"src_port"`
	DstPort    uint16    `json:"dst_port"`
	Protocol   string    `json:"protocol"`
	Service    string    `json:"service"`
	Flag       string    `json:"flag"`
	Confidence float64   `json:"confidence"`
}

// SourceCount is the number of anomalies attributed to one source address.
type SourceCount struct {
	SrcIP string `json:"src_ip"`
	Count uint64 `json:"count"`
}

// Querier reads the stored detection records.
type Querier interface {
	Anomalies(ctx context.Context, f AnomalyFilter) ([]Anomaly, error)
	TopSources(ctx context.Context, since time.Time, limit int) ([]SourceCount, error)
	Close() error
}

type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg record.ClickHouseConfig) (Querier, error) {
	conn, err := record.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// anomalyQuery builds the listing statement and its arguments.
func anomalyQuery(f AnomalyFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`
		SELECT Timestamp, SrcIP, DstIP, SrcPort, DstPort, Protocol, Service, Flag, Confidence
		FROM ids_records
		WHERE Label = 'anomaly'`)

	args := []any{}
	if !f.Since.IsZero() {
		b.WriteString(" AND Timestamp >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		b.WriteString(" AND Timestamp <= ?")
		args = append(args, f.Until)
	}
	if f.SrcIP != "" {
		b.WriteString(" AND SrcIP = ?")
		args = append(args, f.SrcIP)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	fmt.Fprintf(&b, " ORDER BY Timestamp DESC LIMIT %d", limit)
	return b.String(), args
}

// Anomalies lists the newest anomalous records matching f.
func (q *clickhouseQuerier) Anomalies(ctx context.Context, f AnomalyFilter) ([]Anomaly, error) {
	stmt, args := anomalyQuery(f)
	rows, err := q.conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []Anomaly
	for rows.Next() {
		var a Anomaly
		if err := rows.Scan(&a.Timestamp, &a.SrcIP, &a.DstIP, &a.SrcPort, &a.DstPort,
			&a.Protocol, &a.Service, &a.Flag, &a.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TopSources ranks source addresses by anomaly count since the given time.
func (q *clickhouseQuerier) TopSources(ctx context.Context, since time.Time, limit int) ([]SourceCount, error) {
	if limit <= 0 {
		limit = 10
	}
	stmt := fmt.Sprintf(`
		SELECT SrcIP, count() AS Anomalies
		FROM ids_records
		WHERE Label = 'anomaly' AND Timestamp >= ?
		GROUP BY SrcIP
		ORDER BY Anomalies DESC, SrcIP
		LIMIT %d`, limit)

	rows, err := q.conn.Query(ctx, stmt, since)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.SrcIP, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (q *clickhouseQuerier) Close() error { return q.conn.Close() }
