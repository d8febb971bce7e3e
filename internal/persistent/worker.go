// Package persistent writes the raw frames of anomalous packets to a pcap
// file so they can be inspected later with standard tooling.
package persistent

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/metrics"
	"Go2NetIDS/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBufferSize  = 10000
	defaultSnapshotLen = 65535
)

// Worker appends enqueued frames to a pcap file from a single goroutine.
// Enqueue never blocks; frames are dropped when the channel is full.
type Worker struct {
	packetChan chan *model.Packet
	file       *os.File
	buf        *bufio.Writer
	writer     *pcapgo.Writer
	snaplen    uint32

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
	written uint64
}

// NewWorker opens (or continues) the evidence file and starts the writer.
// The file header is only written when the file is new, so every run must use
// the same link type for a given path.
func NewWorker(cfg config.EvidenceConfig, linkType layers.LinkType) (*Worker, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat evidence file: %w", err)
	}

	bufferSize := cfg.ChannelBufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	snaplen := cfg.SnapshotLen
	if snaplen == 0 {
		snaplen = defaultSnapshotLen
	}

	buf := bufio.NewWriter(file)
	writer := pcapgo.NewWriter(buf)
	if info.Size() == 0 {
		if err := writer.WriteFileHeader(snaplen, linkType); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write pcap header: %w", err)
		}
	}

	w := &Worker{
		packetChan: make(chan *model.Packet, bufferSize),
		file:       file,
		buf:        buf,
		writer:     writer,
		snaplen:    snaplen,
		done:       make(chan struct{}),
	}
	go w.run()
	log.Infof("Evidence worker started, writing to %s", cfg.Path)
	return w, nil
}

func (w *Worker) run() {
	defer close(w.done)
	for pkt := range w.packetChan {
		data := pkt.Raw
		if uint32(len(data)) > w.snaplen {
			data = data[:w.snaplen]
		}
		length := pkt.Length
		if length < len(pkt.Raw) {
			length = len(pkt.Raw)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     pkt.Timestamp,
			CaptureLength: len(data),
			Length:        length,
		}
		if err := w.writer.WritePacket(ci, data); err != nil {
			log.WithError(err).Warn("Evidence worker: failed to write packet")
			continue
		}
		w.written++
		// Keep the file readable while the detector runs.
		if len(w.packetChan) == 0 {
			if err := w.buf.Flush(); err != nil {
				log.WithError(err).Warn("Evidence worker: flush failed")
			}
		}
	}
}

// Enqueue hands a packet to the writer. Packets without a raw frame are ignored.
func (w *Worker) Enqueue(pkt *model.Packet) {
	if pkt == nil || len(pkt.Raw) == 0 {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.packetChan <- pkt:
	default:
		metrics.EvidenceDropped.Inc()
		log.Debug("Evidence worker: channel is full, dropping packet")
	}
}

// Stop writes out queued frames and closes the file. It waits at most
// timeout for the queue to drain.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.packetChan)
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-time.After(timeout):
		return fmt.Errorf("evidence worker did not drain within %s", timeout)
	}
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	log.Infof("Evidence worker stopped after %d packets", w.written)
	return err
}
