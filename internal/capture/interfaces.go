package capture

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/google/gopacket/pcap"
	psnet "github.com/shirou/gopsutil/v4/net"
	log "github.com/sirupsen/logrus"
)

// Interface describes a capture-capable network interface.
type Interface struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Addresses   []string `json:"addresses"`
	HasIPv4     bool     `json:"has_ipv4"`
	Up          bool     `json:"up"`
	Loopback    bool     `json:"loopback"`
	MTU         int      `json:"mtu,omitempty"`
	MAC         string   `json:"mac,omitempty"`
}

// ErrNoInterface is returned when no usable capture interface exists.
var ErrNoInterface = errors.New("no capture interface with an IPv4 address found")

// ListInterfaces merges the devices libpcap can open with the operating
// system's view of their state. Interfaces the OS reports but libpcap cannot
// open are omitted.
func ListInterfaces() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	stats, err := psnet.Interfaces()
	if err != nil {
		// Still usable without the OS view; the pcap addresses are enough.
		log.WithError(err).Warn("Failed to read interface state")
	}
	return mergeInterfaces(devs, stats), nil
}

func mergeInterfaces(devs []pcap.Interface, stats psnet.InterfaceStatList) []Interface {
	byName := make(map[string]psnet.InterfaceStat, len(stats))
	for _, st := range stats {
		byName[st.Name] = st
	}

	out := make([]Interface, 0, len(devs))
	for _, dev := range devs {
		iface := Interface{
			Name:        dev.Name,
			Description: dev.Description,
			Loopback:    dev.Flags&pcapLoopback != 0,
			Up:          dev.Flags&pcapUp != 0,
		}
		for _, a := range dev.Addresses {
			if addr, ok := netip.AddrFromSlice(a.IP); ok {
				iface.addAddress(addr.Unmap())
			}
		}
		if st, ok := byName[dev.Name]; ok {
			iface.MTU = st.MTU
			iface.MAC = st.HardwareAddr
			iface.Up = iface.Up || slices.Contains(st.Flags, "up")
			iface.Loopback = iface.Loopback || slices.Contains(st.Flags, "loopback")
			for _, a := range st.Addrs {
				if p, err := netip.ParsePrefix(a.Addr); err == nil {
					iface.addAddress(p.Addr())
				} else if addr, err := netip.ParseAddr(a.Addr); err == nil {
					iface.addAddress(addr)
				}
			}
		}
		out = append(out, iface)
	}
	return out
}

func (i *Interface) addAddress(addr netip.Addr) {
	s := addr.String()
	if slices.Contains(i.Addresses, s) {
		return
	}
	i.Addresses = append(i.Addresses, s)
	if addr.Is4() {
		i.HasIPv4 = true
	}
	if addr.IsLoopback() {
		i.Loopback = true
	}
}

// libpcap PCAP_IF_* flags.
const (
	pcapLoopback uint32 = 0x1
	pcapUp       uint32 = 0x2
)

// DefaultInterface picks the first non-loopback interface that carries IPv4.
func DefaultInterface() (string, error) {
	ifaces, err := ListInterfaces()
	if err != nil {
		return "", err
	}
	return pickDefault(ifaces)
}

func pickDefault(ifaces []Interface) (string, error) {
	for _, iface := range ifaces {
		if iface.HasIPv4 && !iface.Loopback && iface.Up {
			return iface.Name, nil
		}
	}
	for _, iface := range ifaces {
		if iface.HasIPv4 && !iface.Loopback {
			return iface.Name, nil
		}
	}
	return "", ErrNoInterface
}
