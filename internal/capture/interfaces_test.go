package capture

import (
	"net"
	"testing"

	"github.com/google/gopacket/pcap"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeInterfaces(t *testing.T) {
	devs := []pcap.Interface{
		{Name: "lo", Flags: pcapLoopback | pcapUp, Addresses: []pcap.InterfaceAddress{{IP: net.ParseIP("127.0.0.1")}}},
		{Name: "eth0", Description: "uplink", Addresses: []pcap.InterfaceAddress{{IP: net.ParseIP("192.168.1.20")}}},
		{Name: "wg0", Addresses: []pcap.InterfaceAddress{{IP: net.ParseIP("fd00::1")}}},
		{Name: "any"},
	}
	stats := psnet.InterfaceStatList{
		{Name: "eth0", MTU: 1500, HardwareAddr: "aa:bb:cc:dd:ee:ff", Flags: []string{"up", "broadcast"},
			Addrs: psnet.InterfaceAddrList{{Addr: "192.168.1.20/24"}, {Addr: "fe80::1/64"}}},
		{Name: "docker0", Flags: []string{"up"}},
	}

	got := mergeInterfaces(devs, stats)
	require.Len(t, got, 4, "only libpcap devices are listed")

	lo, eth, wg := got[0], got[1], got[2]
	assert.True(t, lo.Loopback)
	assert.True(t, lo.HasIPv4)

	assert.Equal(t, "uplink", eth.Description)
	assert.True(t, eth.Up)
	assert.True(t, eth.HasIPv4)
	assert.Equal(t, 1500, eth.MTU)
	assert.Equal(t, []string{"192.168.1.20", "fe80::1"}, eth.Addresses, "duplicates are merged")

	assert.False(t, wg.HasIPv4)
	assert.Empty(t, got[3].Addresses)
}

func TestPickDefault(t *testing.T) {
	name, err := pickDefault([]Interface{
		{Name: "lo", HasIPv4: true, Loopback: true, Up: true},
		{Name: "eth1", HasIPv4: true},
		{Name: "eth0", HasIPv4: true, Up: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "eth0", name, "interfaces that are up win")

	name, err = pickDefault([]Interface{{Name: "eth1", HasIPv4: true}})
	require.NoError(t, err)
	assert.Equal(t, "eth1", name)

	_, err = pickDefault([]Interface{{Name: "lo", HasIPv4: true, Loopback: true}})
	assert.ErrorIs(t, err, ErrNoInterface)
}
