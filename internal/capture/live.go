package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/engine/protocol"
	"Go2NetIDS/internal/metrics"
	"Go2NetIDS/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"
)

// readTimeout bounds how long a pcap read blocks, so cancellation is noticed.
const readTimeout = 500 * time.Millisecond

// LiveSource captures from a network interface with libpcap.
type LiveSource struct {
	cfg     config.CaptureConfig
	keepRaw bool

	handle *pcap.Handle
}

var _ model.Source = (*LiveSource)(nil)

// NewLiveSource returns a source for cfg.Interface. An empty interface name is
// resolved to the first non-loopback interface carrying IPv4 when opened.
// keepRaw retains the captured frame on each packet for evidence files.
func NewLiveSource(cfg config.CaptureConfig, keepRaw bool) *LiveSource {
	return &LiveSource{cfg: cfg, keepRaw: keepRaw}
}

func (s *LiveSource) Name() string {
	if s.cfg.Interface == "" {
		return "live"
	}
	return "live:" + s.cfg.Interface
}

// Open opens the interface and installs the BPF filter.
func (s *LiveSource) Open() error {
	if s.cfg.Interface == "" {
		iface, err := DefaultInterface()
		if err != nil {
			return err
		}
		log.Infof("No interface configured, using %s", iface)
		s.cfg.Interface = iface
	}

	handle, err := pcap.OpenLive(s.cfg.Interface, s.cfg.SnapshotLen, s.cfg.Promiscuous, readTimeout)
	if err != nil {
		return fmt.Errorf("failed to open interface %s: %w", s.cfg.Interface, err)
	}
	if s.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(s.cfg.BPFFilter); err != nil {
			handle.Close()
			return fmt.Errorf("failed to set BPF filter %q: %w", s.cfg.BPFFilter, err)
		}
	}
	s.handle = handle
	log.Infof("Capturing on %s (snaplen=%d promisc=%t filter=%q)", s.cfg.Interface, s.cfg.SnapshotLen, s.cfg.Promiscuous, s.cfg.BPFFilter)
	return nil
}

// LinkType reports the link layer of the open handle.
func (s *LiveSource) LinkType() layers.LinkType {
	if s.handle == nil {
		return layers.LinkTypeEthernet
	}
	return s.handle.LinkType()
}

// Run decodes frames until ctx is cancelled or the handle is closed.
func (s *LiveSource) Run(ctx context.Context, emit func(*model.Packet)) error {
	if s.handle == nil {
		return errors.New("live source is not open")
	}
	return Drain(ctx, s.Name(), gopacket.NewPacketSource(s.handle, s.handle.LinkType()), s.keepRaw, emit)
}

// Close releases the pcap handle.
func (s *LiveSource) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}

// Drain feeds every decodable packet of ps to emit. Frames the parser does
// not support are counted and skipped. It returns nil when ps is exhausted.
func Drain(ctx context.Context, name string, ps *gopacket.PacketSource, keepRaw bool, emit func(*model.Packet)) error {
	packets := ps.Packets()
	parseErrors := metrics.ParseErrors.WithLabelValues(name)
	for {
		select {
		case <-ctx.Done():
			return nil
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			info, err := protocol.ParsePacket(packet, keepRaw)
			if err != nil {
				parseErrors.Inc()
				if !errors.Is(err, protocol.ErrUnsupported) {
					log.WithError(err).Debug("Failed to parse packet")
				}
				continue
			}
			emit(info)
		}
	}
}
