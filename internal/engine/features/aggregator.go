package features

import (
	"Go2NetIDS/internal/engine/tracker"
	"Go2NetIDS/internal/model"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

const (
	// DefaultTimeWindow is the span of the traffic rate family.
	DefaultTimeWindow = 2 * time.Second
	// DefaultHostWindow is the connection count of the host rate family.
	DefaultHostWindow = 100
)

// ErrUnknownConnection is returned for a key the tracker no longer holds.
var ErrUnknownConnection = errors.New("features: unknown connection")

// Aggregator derives feature vectors from tracker state. It only reads the
// tracker.
type Aggregator struct {
	tracker    *tracker.Tracker
	timeWindow time.Duration
	hostWindow int
}

// NewAggregator returns an aggregator over t. Zero windows take the defaults.
func NewAggregator(t *tracker.Tracker, timeWindow time.Duration, hostWindow int) *Aggregator {
	if timeWindow <= 0 {
		timeWindow = DefaultTimeWindow
	}
	if hostWindow <= 0 {
		hostWindow = DefaultHostWindow
	}
	return &Aggregator{tracker: t, timeWindow: timeWindow, hostWindow: hostWindow}
}

// Compute returns the feature vector of the connection's latest packet.
func (a *Aggregator) Compute(key model.FiveTuple) (Vector, error) {
	conn, ok := a.tracker.Get(key)
	if !ok {
		return Vector{}, fmt.Errorf("%w: %s", ErrUnknownConnection, key)
	}
	var v Vector
	a.basic(&v, &conn)
	a.traffic(&v, &conn)
	a.host(&v, &conn)
	return v, nil
}

func (a *Aggregator) basic(v *Vector, c *tracker.Connection) {
	v.Protocol = model.ProtocolName(c.Key.Protocol)
	v.Service = c.Service
	v.Flag = c.Flag()
	encodeCategoricals(v)

	v.Values[Duration] = c.Duration().Seconds()
	v.Values[SrcBytes] = float64(c.SrcBytes)
	v.Values[DstBytes] = float64(c.DstBytes)
	if c.Land {
		v.Values[Land] = 1
	}
	v.Values[WrongFragment] = float64(c.WrongFragments)
	v.Values[Urgent] = float64(c.Urgent)
	// Content features need session payload inspection and stay zero.
}

func (a *Aggregator) traffic(v *Vector, c *tracker.Connection) {
	window := tracker.TimeWindow(c.LastSeen, a.timeWindow)
	all := a.tracker.RecentByHost(c.Key.DstIP, window)

	var srv, serr, srvSerr, rerr, srvRerr int
	for i := range all {
		other := &all[i]
		flag := other.Flag()
		same := other.Service == c.Service
		if same {
			srv++
		}
		if tracker.IsSYNError(flag) {
			serr++
			if same {
				srvSerr++
			}
		}
		if tracker.IsREJError(flag) {
			rerr++
			if same {
				srvRerr++
			}
		}
	}
	count := len(all)
	v.Values[Count] = float64(count)
	v.Values[SrvCount] = float64(srv)
	v.Values[SerrorRate] = safeRate(serr, count)
	v.Values[SrvSerrorRate] = safeRate(srvSerr, srv)
	v.Values[RerrorRate] = safeRate(rerr, count)
	v.Values[SrvRerrorRate] = safeRate(srvRerr, srv)
	v.Values[SameSrvRate] = safeRate(srv, count)
	v.Values[DiffSrvRate] = safeRate(count-srv, count)

	peers := a.tracker.RecentByService(netip.Addr{}, c.Service, window)
	diffHost := 0
	for i := range peers {
		if peers[i].Key.DstIP != c.Key.DstIP {
			diffHost++
		}
	}
	v.Values[SrvDiffHostRate] = safeRate(diffHost, len(peers))
}

func (a *Aggregator) host(v *Vector, c *tracker.Connection) {
	recent := a.tracker.RecentByHost(c.Key.DstIP, tracker.CountWindow(a.hostWindow))

	var srv, srcPort, srvDiffHost, serr, srvSerr, rerr, srvRerr int
	for i := range recent {
		other := &recent[i]
		flag := other.Flag()
		same := other.Service == c.Service
		if other.Key.SrcPort == c.Key.SrcPort {
			srcPort++
		}
		if same {
			srv++
			if other.Key.SrcIP != c.Key.SrcIP {
				srvDiffHost++
			}
		}
		if tracker.IsSYNError(flag) {
			serr++
			if same {
				srvSerr++
			}
		}
		if tracker.IsREJError(flag) {
			rerr++
			if same {
				srvRerr++
			}
		}
	}
	count := len(recent)
	v.Values[DstHostCount] = float64(count)
	v.Values[DstHostSrvCount] = float64(srv)
	v.Values[DstHostSameSrvRate] = safeRate(srv, count)
	v.Values[DstHostDiffSrvRate] = safeRate(count-srv, count)
	v.Values[DstHostSameSrcPortRate] = safeRate(srcPort, count)
	v.Values[DstHostSrvDiffHostRate] = safeRate(srvDiffHost, srv)
	v.Values[DstHostSerrorRate] = safeRate(serr, count)
	v.Values[DstHostSrvSerrorRate] = safeRate(srvSerr, srv)
	v.Values[DstHostRerrorRate] = safeRate(rerr, count)
	v.Values[DstHostSrvRerrorRate] = safeRate(srvRerr, srv)
}

func safeRate(matching, total int) float64 {
	if total <= 0 {
		return 0
	}
	r := float64(matching) / float64(total)
	if r > 1 {
		return 1
	}
	return r
}
