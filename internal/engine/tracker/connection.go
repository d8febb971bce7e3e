package tracker

import (
	"Go2NetIDS/internal/model"
	"container/list"
	"net/netip"
	"time"
)

// flagHistorySize bounds the per-connection TCP flag history.
const flagHistorySize = 32

// Connection is the state of one tracked flow. Key is oriented from the
// originator (the sender of the first packet seen) to the responder.
type Connection struct {
	Key      model.FiveTuple
	Start    time.Time
	LastSeen time.Time

	SrcBytes   uint64
	DstBytes   uint64
	SrcPackets uint64
	DstPackets uint64

	// FlagHistory holds the most recent TCP flag combinations, oldest first.
	FlagHistory []model.TCPFlags

	Service        string
	Land           bool
	WrongFragments uint32
	Urgent         uint32
	InternalSrc    bool
	InternalDst    bool

	state handshake
	seq   uint64

	// positions in the per-host and per-service recency lists
	hostEl *list.Element
	srvEl  *list.Element
}

// Duration returns last-seen minus start.
func (c *Connection) Duration() time.Duration {
	return c.LastSeen.Sub(c.Start)
}

// Flag returns the KDD connection flag for the state observed so far.
func (c *Connection) Flag() string {
	if c.Key.Protocol != model.ProtoTCP {
		return "SF"
	}
	return c.state.kddFlag()
}

// Internal reports whether both endpoints are in private address space.
func (c *Connection) Internal() bool {
	return c.InternalSrc && c.InternalDst
}

// LastFlags returns the flags of the most recent segment, if any.
func (c *Connection) LastFlags() model.TCPFlags {
	if len(c.FlagHistory) == 0 {
		return 0
	}
	return c.FlagHistory[len(c.FlagHistory)-1]
}

func newConnection(pkt *model.Packet, seq uint64) *Connection {
	ft := pkt.FiveTuple
	return &Connection{
		Key:         ft,
		Start:       pkt.Timestamp,
		LastSeen:    pkt.Timestamp,
		Service:     ResolveService(ft.Protocol, ft.DstPort, pkt.ICMPType),
		Land:        ft.SrcIP == ft.DstIP && ft.SrcPort == ft.DstPort,
		InternalSrc: isInternal(ft.SrcIP),
		InternalDst: isInternal(ft.DstIP),
		seq:         seq,
	}
}

func (c *Connection) update(pkt *model.Packet, fromOriginator bool) {
	if pkt.Timestamp.After(c.LastSeen) {
		c.LastSeen = pkt.Timestamp
	}
	if fromOriginator {
		c.SrcBytes += uint64(pkt.PayloadLen)
		c.SrcPackets++
	} else {
		c.DstBytes += uint64(pkt.PayloadLen)
		c.DstPackets++
	}
	if pkt.WrongFragment {
		c.WrongFragments++
	}
	if pkt.FiveTuple.Protocol == model.ProtoTCP {
		if pkt.TCPFlags.Has(model.FlagURG) {
			c.Urgent++
		}
		c.state = c.state.advance(pkt.TCPFlags, fromOriginator)
		if len(c.FlagHistory) == flagHistorySize {
			copy(c.FlagHistory, c.FlagHistory[1:])
			c.FlagHistory = c.FlagHistory[:flagHistorySize-1]
		}
		c.FlagHistory = append(c.FlagHistory, pkt.TCPFlags)
	}
}

func (c *Connection) clone() Connection {
	out := *c
	out.hostEl, out.srvEl = nil, nil
	out.FlagHistory = append([]model.TCPFlags(nil), c.FlagHistory...)
	return out
}

// before orders connections by last activity, then by creation.
func (c *Connection) before(other *Connection) bool {
	if !c.LastSeen.Equal(other.LastSeen) {
		return c.LastSeen.Before(other.LastSeen)
	}
	return c.seq < other.seq
}

func isInternal(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}
