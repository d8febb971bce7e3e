// Package pcap replays capture files as a packet source.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"Go2NetIDS/internal/capture"
	"Go2NetIDS/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Reader reads packets from a pcap file.
type Reader struct {
	path    string
	keepRaw bool
	busy    func() bool

	handle *pcap.Handle
}

var _ model.Source = (*Reader)(nil)

// NewReader creates a reader for the given file path. The file is opened by Open.
func NewReader(filePath string, keepRaw bool) *Reader {
	return &Reader{path: filePath, keepRaw: keepRaw}
}

// Pace makes Run hold back while busy reports true. Files are read far faster
// than packets can be classified, and the detector queue drops the oldest
// entries when it overflows.
func (r *Reader) Pace(busy func() bool) {
	r.busy = busy
}

func (r *Reader) Name() string { return "file:" + filepath.Base(r.path) }

func (r *Reader) Open() error {
	handle, err := pcap.OpenOffline(r.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	r.handle = handle
	return nil
}

// LinkType reports the link layer of the file.
func (r *Reader) LinkType() layers.LinkType {
	if r.handle == nil {
		return layers.LinkTypeEthernet
	}
	return r.handle.LinkType()
}

// Run emits every decodable packet and returns nil at end of file.
func (r *Reader) Run(ctx context.Context, emit func(*model.Packet)) error {
	if r.handle == nil {
		return errors.New("pcap reader is not open")
	}
	if r.busy != nil {
		emit = r.paced(ctx, emit)
	}
	return capture.Drain(ctx, r.Name(), gopacket.NewPacketSource(r.handle, r.handle.LinkType()), r.keepRaw, emit)
}

func (r *Reader) paced(ctx context.Context, emit func(*model.Packet)) func(*model.Packet) {
	return func(pkt *model.Packet) {
		for r.busy() && ctx.Err() == nil {
			time.Sleep(time.Millisecond)
		}
		emit(pkt)
	}
}

// Close closes the pcap handle.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
		r.handle = nil
	}
	return nil
}
