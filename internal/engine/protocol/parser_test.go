package protocol

import (
	"Go2NetIDS/internal/model"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet() *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
}

func TestParsePacket_TCP(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		Flags:    layers.IPv4DontFragment,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(93, 184, 216, 34),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, URG: true, Window: 14600}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, ethernet(), ip, tcp, gopacket.Payload([]byte("hello")))

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	packet.Metadata().Timestamp = ts

	info, err := ParsePacket(packet, true)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", info.FiveTuple.SrcIP.String())
	assert.Equal(t, "93.184.216.34", info.FiveTuple.DstIP.String())
	assert.EqualValues(t, 40000, info.FiveTuple.SrcPort)
	assert.EqualValues(t, 80, info.FiveTuple.DstPort)
	assert.Equal(t, model.ProtoTCP, info.FiveTuple.Protocol)
	assert.True(t, info.TCPFlags.Has(model.FlagSYN|model.FlagURG))
	assert.False(t, info.TCPFlags.Has(model.FlagACK))
	assert.Equal(t, 5, info.PayloadLen)
	assert.True(t, info.DontFragment)
	assert.False(t, info.WrongFragment)
	assert.Equal(t, ts, info.Timestamp)
	assert.Equal(t, data, info.Raw)
}

func TestParsePacket_UDPAndICMP(t *testing.T) {
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: net.IPv4(10, 0, 0, 2), DstIP: net.IPv4(8, 8, 8, 8)}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	info, err := ParseData(serialize(t, ethernet(), ip, udp, gopacket.Payload(make([]byte, 12))), layers.LinkTypeEthernet, false)
	require.NoError(t, err)
	assert.Equal(t, model.ProtoUDP, info.FiveTuple.Protocol)
	assert.EqualValues(t, 53, info.FiveTuple.DstPort)
	assert.Equal(t, 12, info.PayloadLen)
	assert.Nil(t, info.Raw)

	ip = &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4, SrcIP: net.IPv4(10, 0, 0, 2), DstIP: net.IPv4(8, 8, 8, 8)}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	info, err = ParseData(serialize(t, ethernet(), ip, icmp, gopacket.Payload(make([]byte, 32))), layers.LinkTypeEthernet, false)
	require.NoError(t, err)
	assert.Equal(t, model.ProtoICMP, info.FiveTuple.Protocol)
	assert.EqualValues(t, layers.ICMPv4TypeEchoRequest, info.ICMPType)
	assert.Equal(t, 32, info.PayloadLen)
}

func TestParsePacket_WrongFragment(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		Flags:    layers.IPv4DontFragment | layers.IPv4MoreFragments,
		SrcIP:    net.IPv4(203, 0, 113, 9),
		DstIP:    net.IPv4(198, 51, 100, 1),
	}
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	info, err := ParseData(serialize(t, ethernet(), ip, udp, gopacket.Payload(make([]byte, 13))), layers.LinkTypeEthernet, false)
	require.NoError(t, err)
	assert.True(t, info.WrongFragment)
}

func TestParsePacket_NonIP(t *testing.T) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	eth := ethernet()
	eth.EthernetType = layers.EthernetTypeARP
	_, err := ParseData(serialize(t, eth, arp), layers.LinkTypeEthernet, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}
