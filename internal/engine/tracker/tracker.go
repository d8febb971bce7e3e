package tracker

import (
	"Go2NetIDS/internal/model"
	"container/list"
	"net/netip"
	"sync"
	"time"
)

const (
	defaultCapacity    = 10000
	defaultIdleTimeout = 2 * time.Minute
)

// Config bounds the tracker's memory.
type Config struct {
	Capacity    int
	IdleTimeout time.Duration
}

// Window selects connections for the rate features. Span limits the result
// to connections active at or after Ref-Span; Count keeps only the Count most
// recent. Zero values disable the respective limit.
type Window struct {
	Ref   time.Time
	Span  time.Duration
	Count int
}

// TimeWindow selects connections active within span before ref.
func TimeWindow(ref time.Time, span time.Duration) Window {
	return Window{Ref: ref, Span: span}
}

// CountWindow selects the n most recent connections.
func CountWindow(n int) Window {
	return Window{Count: n}
}

// Tracker maps connection keys to connection records. All methods are safe
// for concurrent use; queries return copies.
type Tracker struct {
	mu  sync.RWMutex
	cfg Config

	conns map[model.FiveTuple]*list.Element
	order *list.List // least recently observed at the front

	// Recency lists ordered by last-seen time, oldest at the front, so
	// window queries walk back from the newest and stop early.
	byHost    map[netip.Addr]*list.List
	byService map[string]*list.List

	seq     uint64
	evicted uint64
}

// New creates a tracker. Non-positive config values fall back to defaults.
func New(cfg Config) *Tracker {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Tracker{
		cfg:       cfg,
		conns:     make(map[model.FiveTuple]*list.Element),
		order:     list.New(),
		byHost:    make(map[netip.Addr]*list.List),
		byService: make(map[string]*list.List),
	}
}

// Observe folds a packet into the record of its connection, creating the
// record on first sight, and returns the connection's key.
func (t *Tracker) Observe(pkt *model.Packet) model.FiveTuple {
	t.mu.Lock()
	defer t.mu.Unlock()

	ft := pkt.FiveTuple
	if el, ok := t.conns[ft]; ok {
		conn := el.Value.(*Connection)
		conn.update(pkt, true)
		t.touch(el)
		return conn.Key
	}
	if el, ok := t.conns[ft.Reverse()]; ok {
		conn := el.Value.(*Connection)
		conn.update(pkt, false)
		t.touch(el)
		return conn.Key
	}

	t.seq++
	conn := newConnection(pkt, t.seq)
	conn.update(pkt, true)
	t.conns[ft] = t.order.PushBack(conn)
	t.indexAdd(conn)
	t.evict(pkt.Timestamp)
	return ft
}

// evict reclaims idle records, then enforces the capacity bound. The newest
// record sits at the back of the list and is never reached.
func (t *Tracker) evict(now time.Time) {
	for el := t.order.Front(); el != nil && el != t.order.Back(); el = t.order.Front() {
		conn := el.Value.(*Connection)
		if now.Sub(conn.LastSeen) <= t.cfg.IdleTimeout {
			break
		}
		t.remove(el)
	}
	for t.order.Len() > t.cfg.Capacity {
		t.remove(t.order.Front())
	}
}

func (t *Tracker) remove(el *list.Element) {
	conn := t.order.Remove(el).(*Connection)
	delete(t.conns, conn.Key)
	t.indexDel(conn)
	t.evicted++
}

func (t *Tracker) touch(el *list.Element) {
	t.order.MoveToBack(el)
	conn := el.Value.(*Connection)
	reposition(t.byHost[conn.Key.DstIP], conn.hostEl)
	reposition(t.byService[conn.Service], conn.srvEl)
}

func (t *Tracker) indexAdd(conn *Connection) {
	host := conn.Key.DstIP
	if t.byHost[host] == nil {
		t.byHost[host] = list.New()
	}
	conn.hostEl = t.byHost[host].PushBack(conn)
	reposition(t.byHost[host], conn.hostEl)

	if t.byService[conn.Service] == nil {
		t.byService[conn.Service] = list.New()
	}
	conn.srvEl = t.byService[conn.Service].PushBack(conn)
	reposition(t.byService[conn.Service], conn.srvEl)
}

func (t *Tracker) indexDel(conn *Connection) {
	host := conn.Key.DstIP
	if l := t.byHost[host]; l != nil {
		l.Remove(conn.hostEl)
		if l.Len() == 0 {
			delete(t.byHost, host)
		}
	}
	if l := t.byService[conn.Service]; l != nil {
		l.Remove(conn.srvEl)
		if l.Len() == 0 {
			delete(t.byService, conn.Service)
		}
	}
	conn.hostEl, conn.srvEl = nil, nil
}

// reposition restores the last-seen order after el's connection became more
// recent. Captures arrive roughly in time order, so el almost always lands
// at the back after a single comparison.
func reposition(l *list.List, el *list.Element) {
	conn := el.Value.(*Connection)
	back := l.Back()
	if back == el {
		if prev := el.Prev(); prev == nil || prev.Value.(*Connection).before(conn) {
			return
		}
	} else if back.Value.(*Connection).before(conn) {
		l.MoveToBack(el)
		return
	}
	p := back
	for p != nil && (p == el || conn.before(p.Value.(*Connection))) {
		p = p.Prev()
	}
	if p == nil {
		l.MoveToFront(el)
		return
	}
	l.MoveAfter(el, p)
}

// Get returns a copy of the record for key.
func (t *Tracker) Get(key model.FiveTuple) (Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	el, ok := t.conns[key]
	if !ok {
		return Connection{}, false
	}
	return el.Value.(*Connection).clone(), true
}

// Latest returns a copy of the most recently active connection.
func (t *Tracker) Latest() (Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	el := t.order.Back()
	if el == nil {
		return Connection{}, false
	}
	return el.Value.(*Connection).clone(), true
}

// RecentByHost returns the connections to host inside w, most recent first.
func (t *Tracker) RecentByHost(host netip.Addr, w Window) []Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return selectWindow(t.byHost[host], w, func(*Connection) bool { return true })
}

// RecentByService returns the connections for service inside w, most recent
// first. An invalid host matches every destination.
func (t *Tracker) RecentByService(host netip.Addr, service string, w Window) []Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !host.IsValid() {
		return selectWindow(t.byService[service], w, func(*Connection) bool { return true })
	}
	return selectWindow(t.byHost[host], w, func(c *Connection) bool { return c.Service == service })
}

// selectWindow walks l from the most recent connection and stops at the
// first one older than the span or once Count matches are collected.
func selectWindow(l *list.List, w Window, match func(*Connection) bool) []Connection {
	if l == nil {
		return nil
	}
	var since time.Time
	if w.Span > 0 {
		since = w.Ref.Add(-w.Span)
	}
	var out []Connection
	for el := l.Back(); el != nil; el = el.Prev() {
		conn := el.Value.(*Connection)
		if w.Span > 0 && conn.LastSeen.Before(since) {
			break
		}
		if !match(conn) {
			continue
		}
		out = append(out, conn.clone())
		if w.Count > 0 && len(out) == w.Count {
			break
		}
	}
	return out
}

// Len returns the number of tracked connections.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.order.Len()
}

// Evicted returns the number of records reclaimed so far.
func (t *Tracker) Evicted() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.evicted
}
