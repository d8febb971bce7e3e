package model

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// IP protocol numbers the engine understands.
const (
	ProtoICMP   uint8 = 1
	ProtoTCP    uint8 = 6
	ProtoUDP    uint8 = 17
	ProtoICMPv6 uint8 = 58
)

// FiveTuple represents the 5-tuple of a network packet. It is comparable and
// is used directly as the connection key.
type FiveTuple struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Reverse returns the tuple as seen from the other endpoint.
func (ft FiveTuple) Reverse() FiveTuple {
	return FiveTuple{
		SrcIP:    ft.DstIP,
		DstIP:    ft.SrcIP,
		SrcPort:  ft.DstPort,
		DstPort:  ft.SrcPort,
		Protocol: ft.Protocol,
	}
}

func (ft FiveTuple) String() string {
	return fmt.Sprintf("%s:%d->%s:%d/%s", ft.SrcIP, ft.SrcPort, ft.DstIP, ft.DstPort, ProtocolName(ft.Protocol))
}

// ProtocolName maps an IP protocol number to the KDD protocol_type vocabulary.
func ProtocolName(proto uint8) string {
	switch proto {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP, ProtoICMPv6:
		return "icmp"
	default:
		return "other"
	}
}

// TCPFlags is the TCP control bit set of a single segment.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
)

// Has reports whether all bits in f are set.
func (t TCPFlags) Has(f TCPFlags) bool { return t&f == f }

func (t TCPFlags) String() string {
	if t == 0 {
		return "-"
	}
	var b strings.Builder
	for _, f := range []struct {
		bit TCPFlags
		c   byte
	}{{FlagFIN, 'F'}, {FlagSYN, 'S'}, {FlagRST, 'R'}, {FlagPSH, 'P'}, {FlagACK, 'A'}, {FlagURG, 'U'}, {FlagECE, 'E'}, {FlagCWR, 'C'}} {
		if t.Has(f.bit) {
			b.WriteByte(f.c)
		}
	}
	return b.String()
}

// Packet holds the metadata extracted from a single captured frame. A Packet
// is not modified after the parser returns it.
type Packet struct {
	Timestamp  time.Time
	FiveTuple  FiveTuple
	Length     int // bytes on the wire
	PayloadLen int // transport payload bytes

	TCPFlags TCPFlags
	ICMPType uint8
	ICMPCode uint8

	DontFragment  bool
	MoreFragments bool
	FragOffset    uint16
	WrongFragment bool

	// Raw is the captured frame, kept only when a source is asked to retain it.
	Raw []byte
}

// Summary returns a one-line description used in logs.
func (p *Packet) Summary() string {
	if p == nil {
		return "<nil packet>"
	}
	s := fmt.Sprintf("%s %s len=%d payload=%d", p.Timestamp.Format("15:04:05.000"), p.FiveTuple, p.Length, p.PayloadLen)
	switch p.FiveTuple.Protocol {
	case ProtoTCP:
		s += " flags=" + p.TCPFlags.String()
	case ProtoICMP, ProtoICMPv6:
		s += fmt.Sprintf(" icmp=%d/%d", p.ICMPType, p.ICMPCode)
	}
	return s
}
