package probe

import (
	"errors"
	"fmt"
	"net/netip"

	"Go2NetIDS/internal/model"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Field numbers of the packet message published by ns-probe.
//
//	message Packet {
//	  google.protobuf.Timestamp timestamp = 1;
//	  bytes  src_ip      = 2;
//	  bytes  dst_ip      = 3;
//	  uint32 src_port    = 4;
//	  uint32 dst_port    = 5;
//	  uint32 protocol    = 6;
//	  uint64 length      = 7;
//	  uint64 payload_len = 8;
//	  uint32 tcp_flags   = 9;
//	  uint32 icmp_type   = 10;
//	  uint32 icmp_code   = 11;
//	  uint32 frag_bits   = 12;
//	  uint32 frag_offset = 13;
//	  bytes  raw         = 14;
//	}
const (
	fieldTimestamp protowire.Number = iota + 1
	fieldSrcIP
	fieldDstIP
	fieldSrcPort
	fieldDstPort
	fieldProtocol
	fieldLength
	fieldPayloadLen
	fieldTCPFlags
	fieldICMPType
	fieldICMPCode
	fieldFragBits
	fieldFragOffset
	fieldRaw
)

const (
	fragDF uint64 = 1 << iota
	fragMF
	fragWrong
)

// ErrMalformed is returned when a message cannot be decoded.
var ErrMalformed = errors.New("malformed packet message")

// MarshalPacket encodes the packet metadata. Raw bytes are included only when
// withRaw is set, since they dominate message size.
func MarshalPacket(p *model.Packet, withRaw bool) ([]byte, error) {
	ts, err := proto.Marshal(timestamppb.New(p.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	b := make([]byte, 0, 64+len(ts))
	b = protowire.AppendTag(b, fieldTimestamp, protowire.BytesType)
	b = protowire.AppendBytes(b, ts)
	if p.FiveTuple.SrcIP.IsValid() {
		b = protowire.AppendTag(b, fieldSrcIP, protowire.BytesType)
		b = protowire.AppendBytes(b, p.FiveTuple.SrcIP.AsSlice())
	}
	if p.FiveTuple.DstIP.IsValid() {
		b = protowire.AppendTag(b, fieldDstIP, protowire.BytesType)
		b = protowire.AppendBytes(b, p.FiveTuple.DstIP.AsSlice())
	}
	b = appendVarint(b, fieldSrcPort, uint64(p.FiveTuple.SrcPort))
	b = appendVarint(b, fieldDstPort, uint64(p.FiveTuple.DstPort))
	b = appendVarint(b, fieldProtocol, uint64(p.FiveTuple.Protocol))
	b = appendVarint(b, fieldLength, uint64(p.Length))
	b = appendVarint(b, fieldPayloadLen, uint64(p.PayloadLen))
	b = appendVarint(b, fieldTCPFlags, uint64(p.TCPFlags))
	b = appendVarint(b, fieldICMPType, uint64(p.ICMPType))
	b = appendVarint(b, fieldICMPCode, uint64(p.ICMPCode))

	var bits uint64
	if p.DontFragment {
		bits |= fragDF
	}
	if p.MoreFragments {
		bits |= fragMF
	}
	if p.WrongFragment {
		bits |= fragWrong
	}
	b = appendVarint(b, fieldFragBits, bits)
	b = appendVarint(b, fieldFragOffset, uint64(p.FragOffset))

	if withRaw && len(p.Raw) > 0 {
		b = protowire.AppendTag(b, fieldRaw, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Raw)
	}
	return b, nil
}

// proto3 semantics: zero values are omitted.
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// UnmarshalPacket decodes a message produced by MarshalPacket. Unknown fields
// are skipped so older engines can read newer probes.
func UnmarshalPacket(data []byte) (*model.Packet, error) {
	p := &model.Packet{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.BytesType && isBytesField(num):
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := setBytes(p, num, v); err != nil {
				return nil, err
			}
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
			setVarint(p, num, v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if !p.FiveTuple.SrcIP.IsValid() || !p.FiveTuple.DstIP.IsValid() {
		return nil, fmt.Errorf("%w: missing addresses", ErrMalformed)
	}
	return p, nil
}

func isBytesField(num protowire.Number) bool {
	switch num {
	case fieldTimestamp, fieldSrcIP, fieldDstIP, fieldRaw:
		return true
	}
	return false
}

func setBytes(p *model.Packet, num protowire.Number, v []byte) error {
	switch num {
	case fieldTimestamp:
		var ts timestamppb.Timestamp
		if err := proto.Unmarshal(v, &ts); err != nil {
			return fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
		}
		p.Timestamp = ts.AsTime()
	case fieldSrcIP, fieldDstIP:
		addr, ok := netip.AddrFromSlice(v)
		if !ok {
			return fmt.Errorf("%w: bad address length %d", ErrMalformed, len(v))
		}
		if num == fieldSrcIP {
			p.FiveTuple.SrcIP = addr
		} else {
			p.FiveTuple.DstIP = addr
		}
	case fieldRaw:
		p.Raw = append([]byte(nil), v...)
	}
	return nil
}

func setVarint(p *model.Packet, num protowire.Number, v uint64) {
	switch num {
	case fieldSrcPort:
		p.FiveTuple.SrcPort = uint16(v)
	case fieldDstPort:
		p.FiveTuple.DstPort = uint16(v)
	case fieldProtocol:
		p.FiveTuple.Protocol = uint8(v)
	case fieldLength:
		p.Length = int(v)
	case fieldPayloadLen:
		p.PayloadLen = int(v)
	case fieldTCPFlags:
		p.TCPFlags = model.TCPFlags(v)
	case fieldICMPType:
		p.ICMPType = uint8(v)
	case fieldICMPCode:
		p.ICMPCode = uint8(v)
	case fieldFragBits:
		p.DontFragment = v&fragDF != 0
		p.MoreFragments = v&fragMF != 0
		p.WrongFragment = v&fragWrong != 0
	case fieldFragOffset:
		p.FragOffset = uint16(v)
	}
}
