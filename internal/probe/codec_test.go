package probe

import (
	"net/netip"
	"testing"
	"time"

	"Go2NetIDS/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func samplePacket() *model.Packet {
	return &model.Packet{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC),
		FiveTuple: model.FiveTuple{
			SrcIP:    netip.MustParseAddr("10.0.0.5"),
			DstIP:    netip.MustParseAddr("192.168.1.10"),
			SrcPort:  51000,
			DstPort:  80,
			Protocol: model.ProtoTCP,
		},
		Length:        74,
		PayloadLen:    12,
		TCPFlags:      model.FlagSYN | model.FlagACK,
		DontFragment:  true,
		WrongFragment: true,
		FragOffset:    3,
		Raw:           []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestCodecPreservesMetadata(t *testing.T) {
	in := samplePacket()

	data, err := MarshalPacket(in, false)
	require.NoError(t, err)
	out, err := UnmarshalPacket(data)
	require.NoError(t, err)

	assert.True(t, in.Timestamp.Equal(out.Timestamp))
	assert.Equal(t, in.FiveTuple, out.FiveTuple)
	assert.Equal(t, in.Length, out.Length)
	assert.Equal(t, in.PayloadLen, out.PayloadLen)
	assert.Equal(t, in.TCPFlags, out.TCPFlags)
	assert.True(t, out.DontFragment)
	assert.False(t, out.MoreFragments)
	assert.True(t, out.WrongFragment)
	assert.Equal(t, uint16(3), out.FragOffset)
	assert.Nil(t, out.Raw, "raw frame is only sent on request")
}

func TestCodecRawAndIPv6(t *testing.T) {
	in := samplePacket()
	in.FiveTuple.SrcIP = netip.MustParseAddr("2001:db8::1")
	in.FiveTuple.DstIP = netip.MustParseAddr("2001:db8::2")
	in.FiveTuple.Protocol = model.ProtoICMPv6
	in.ICMPType, in.ICMPCode = 128, 0

	data, err := MarshalPacket(in, true)
	require.NoError(t, err)
	out, err := UnmarshalPacket(data)
	require.NoError(t, err)

	assert.Equal(t, in.FiveTuple, out.FiveTuple)
	assert.Equal(t, uint8(128), out.ICMPType)
	assert.Equal(t, in.Raw, out.Raw)
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	data, err := MarshalPacket(samplePacket(), false)
	require.NoError(t, err)

	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))
	data = protowire.AppendTag(data, 100, protowire.Fixed64Type)
	data = protowire.AppendFixed64(data, 7)

	out, err := UnmarshalPacket(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(80), out.FiveTuple.DstPort)
}

func TestCodecRejectsMalformed(t *testing.T) {
	_, err := UnmarshalPacket([]byte{0x0a, 0x10, 0x01})
	assert.ErrorIs(t, err, ErrMalformed)

	var noAddr []byte
	noAddr = protowire.AppendTag(noAddr, fieldDstPort, protowire.VarintType)
	noAddr = protowire.AppendVarint(noAddr, 80)
	_, err = UnmarshalPacket(noAddr)
	assert.ErrorIs(t, err, ErrMalformed)

	var badAddr []byte
	badAddr = protowire.AppendTag(badAddr, fieldSrcIP, protowire.BytesType)
	badAddr = protowire.AppendBytes(badAddr, []byte{1, 2, 3})
	_, err = UnmarshalPacket(badAddr)
	assert.ErrorIs(t, err, ErrMalformed)
}
