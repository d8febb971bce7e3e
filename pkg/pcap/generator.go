package pcap

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Generator writes synthetic Ethernet/IPv4 traffic to a pcap stream. Each
// packet is stamped Step after the previous one.
type Generator struct {
	w     *pcapgo.Writer
	now   time.Time
	Step  time.Duration
	count int
	seq   uint32
}

// NewGenerator writes the file header and returns a generator whose first
// packet is stamped start.
func NewGenerator(w io.Writer, start time.Time) (*Generator, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Generator{w: pw, now: start, Step: time.Millisecond, seq: 1000}, nil
}

// Count returns the number of packets written.
func (g *Generator) Count() int { return g.count }

// Now returns the timestamp the next packet will carry.
func (g *Generator) Now() time.Time { return g.now }

// Advance moves the clock forward without writing.
func (g *Generator) Advance(d time.Duration) { g.now = g.now.Add(d) }

// TCP writes one segment.
func (g *Generator) TCP(src, dst netip.Addr, sport, dport uint16, flags string, payload int) error {
	g.seq++
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     g.seq,
		Window:  14600,
	}
	for _, f := range flags {
		switch f {
		case 'S':
			tcp.SYN = true
		case 'A':
			tcp.ACK = true
			tcp.Ack = g.seq
		case 'F':
			tcp.FIN = true
		case 'R':
			tcp.RST = true
		case 'P':
			tcp.PSH = true
		case 'U':
			tcp.URG = true
		default:
			return fmt.Errorf("unknown TCP flag %q", f)
		}
	}
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	return g.write(ip, tcp, gopacket.Payload(make([]byte, payload)))
}

// UDP writes one datagram.
func (g *Generator) UDP(src, dst netip.Addr, sport, dport uint16, payload int) error {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	return g.write(ip, udp, gopacket.Payload(make([]byte, payload)))
}

// Handshake writes a complete TCP exchange: three-way handshake, one
// request and response, and an orderly close.
func (g *Generator) Handshake(client, server netip.Addr, sport, dport uint16, request, response int) error {
	steps := []struct {
		fromClient bool
		flags      string
		payload    int
	}{
		{true, "S", 0},
		{false, "SA", 0},
		{true, "A", 0},
		{true, "PA", request},
		{false, "PA", response},
		{true, "FA", 0},
		{false, "FA", 0},
		{true, "A", 0},
	}
	for _, s := range steps {
		var err error
		if s.fromClient {
			err = g.TCP(client, server, sport, dport, s.flags, s.payload)
		} else {
			err = g.TCP(server, client, dport, sport, s.flags, s.payload)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SYNFlood writes n unanswered SYNs from successive source ports.
func (g *Generator) SYNFlood(attacker, victim netip.Addr, dport uint16, n int) error {
	for i := 0; i < n; i++ {
		if err := g.TCP(attacker, victim, uint16(20000+i%40000), dport, "S", 0); err != nil {
			return err
		}
	}
	return nil
}

// Land writes a SYN whose source and destination endpoints are identical.
func (g *Generator) Land(addr netip.Addr, port uint16) error {
	return g.TCP(addr, addr, port, port, "S", 0)
}

func ipv4(src, dst netip.Addr, proto layers.IPProtocol) *layers.IPv4 {
	s, d := src.As4(), dst.As4()
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP(s[:]),
		DstIP:    net.IP(d[:]),
	}
}

func (g *Generator) write(ls ...gopacket.SerializableLayer) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, append([]gopacket.SerializableLayer{eth}, ls...)...); err != nil {
		return fmt.Errorf("failed to serialize packet: %w", err)
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: g.now, CaptureLength: len(data), Length: len(data)}
	if err := g.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	g.count++
	g.now = g.now.Add(g.Step)
	return nil
}
