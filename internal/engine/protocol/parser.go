package protocol

import (
	"Go2NetIDS/internal/model"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrUnsupported is returned for frames that carry no IP traffic the engine tracks.
var ErrUnsupported = errors.New("unsupported packet")

const maxIPv4Datagram = 65535

// ParseData decodes a raw frame of the given link type.
func ParseData(data []byte, linkType layers.LinkType, keepRaw bool) (*model.Packet, error) {
	packet := gopacket.NewPacket(data, linkType, gopacket.Default)
	return ParsePacket(packet, keepRaw)
}

// ParsePacket uses gopacket to extract the header fields the tracker and the
// feature aggregator depend on.
func ParsePacket(packet gopacket.Packet, keepRaw bool) (*model.Packet, error) {
	if packet == nil {
		return nil, fmt.Errorf("%w: nil packet", ErrUnsupported)
	}

	info := &model.Packet{
		Timestamp: time.Now(), // Default to now, overwritten by capture metadata if available
		Length:    len(packet.Data()),
	}
	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			info.Timestamp = meta.Timestamp
		}
		if meta.Length > 0 {
			info.Length = meta.Length
		}
	}

	fragmented := false
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		src, _ := netip.AddrFromSlice(ip.SrcIP.To4())
		dst, _ := netip.AddrFromSlice(ip.DstIP.To4())
		info.FiveTuple.SrcIP = src
		info.FiveTuple.DstIP = dst
		info.FiveTuple.Protocol = uint8(ip.Protocol)
		info.DontFragment = ip.Flags&layers.IPv4DontFragment != 0
		info.MoreFragments = ip.Flags&layers.IPv4MoreFragments != 0
		info.FragOffset = ip.FragOffset
		info.WrongFragment = isWrongFragment(ip)
		fragmented = info.MoreFragments || info.FragOffset > 0
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		src, _ := netip.AddrFromSlice(ip.SrcIP.To16())
		dst, _ := netip.AddrFromSlice(ip.DstIP.To16())
		info.FiveTuple.SrcIP = src
		info.FiveTuple.DstIP = dst
		info.FiveTuple.Protocol = uint8(ip.NextHeader)
		if l := packet.Layer(layers.LayerTypeIPv6Fragment); l != nil {
			frag := l.(*layers.IPv6Fragment)
			info.FiveTuple.Protocol = uint8(frag.NextHeader)
			info.MoreFragments = frag.MoreFragments
			info.FragOffset = frag.FragmentOffset
			fragmented = true
		}
	} else {
		return nil, fmt.Errorf("%w: not an IP packet", ErrUnsupported)
	}

	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		info.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		info.FiveTuple.DstPort = uint16(tcp.DstPort)
		info.TCPFlags = tcpFlags(tcp)
		info.PayloadLen = len(tcp.Payload)
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		info.FiveTuple.SrcPort = uint16(udp.SrcPort)
		info.FiveTuple.DstPort = uint16(udp.DstPort)
		info.PayloadLen = len(udp.Payload)
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		icmp := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
		info.ICMPType = icmp.TypeCode.Type()
		info.ICMPCode = icmp.TypeCode.Code()
		info.PayloadLen = len(icmp.Payload)
	case packet.Layer(layers.LayerTypeICMPv6) != nil:
		icmp := packet.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6)
		info.ICMPType = icmp.TypeCode.Type()
		info.ICMPCode = icmp.TypeCode.Code()
		info.PayloadLen = len(icmp.Payload)
	case fragmented:
		// Non-initial fragments carry no transport header; they are still
		// tracked so wrong_fragment can be counted.
		if app := packet.ApplicationLayer(); app != nil {
			info.PayloadLen = len(app.Payload())
		}
	default:
		return nil, fmt.Errorf("%w: no TCP, UDP or ICMP layer in %s", ErrUnsupported, info.FiveTuple)
	}

	if keepRaw {
		info.Raw = append([]byte(nil), packet.Data()...)
	}
	return info, nil
}

func tcpFlags(tcp *layers.TCP) model.TCPFlags {
	var f model.TCPFlags
	set := func(on bool, bit model.TCPFlags) {
		if on {
			f |= bit
		}
	}
	set(tcp.FIN, model.FlagFIN)
	set(tcp.SYN, model.FlagSYN)
	set(tcp.RST, model.FlagRST)
	set(tcp.PSH, model.FlagPSH)
	set(tcp.ACK, model.FlagACK)
	set(tcp.URG, model.FlagURG)
	set(tcp.ECE, model.FlagECE)
	set(tcp.CWR, model.FlagCWR)
	return f
}

// isWrongFragment flags fragmentation header combinations no conforming
// stack produces: fragments of a DF datagram, non-final fragments whose
// length is not a multiple of 8, and fragments that overrun the maximum
// datagram size.
func isWrongFragment(ip *layers.IPv4) bool {
	df := ip.Flags&layers.IPv4DontFragment != 0
	mf := ip.Flags&layers.IPv4MoreFragments != 0
	payload := int(ip.Length) - int(ip.IHL)*4
	if payload < 0 {
		return true
	}
	if df && (mf || ip.FragOffset > 0) {
		return true
	}
	if mf && payload%8 != 0 {
		return true
	}
	return int(ip.FragOffset)*8+payload > maxIPv4Datagram
}
