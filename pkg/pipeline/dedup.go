package pipeline

import "sync"

// dedupTable suppresses duplicate processing of the same logical inbound
// event. Two mechanisms back it: an in-flight map coalescing concurrent
// duplicates onto the leader's result, and a bounded ring of recently
// completed keys catching transport-level redelivery that arrives after
// the first forward finished.
type dedupTable struct {
	mu       sync.Mutex
	inflight map[string]*inflightCall
	recent   map[string]struct{}
	ring     []string
	next     int
}

// inflightCall is the forward currently owning a dedup key. Followers wait
// on done instead of triggering a second backend call.
type inflightCall struct {
	done chan struct{}
}

func newDedupTable(window int) *dedupTable {
	return &dedupTable{
		inflight: make(map[string]*inflightCall),
		recent:   make(map[string]struct{}, window),
		ring:     make([]string, window),
	}
}

// begin claims a dedup key. leader=true means the caller owns the forward
// and must call end when finished. Otherwise call is the in-flight forward
// to wait on, or nil when the key completed recently.
func (d *dedupTable) begin(key string) (call *inflightCall, leader bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, seen := d.recent[key]; seen {
		return nil, false
	}
	if c, ok := d.inflight[key]; ok {
		return c, false
	}

	c := &inflightCall{done: make(chan struct{})}
	d.inflight[key] = c
	return c, true
}

// end releases a key after the forward completed. Only keys backed by a
// real provider message id go into the recent window (remember=true): a
// content-fallback key describes the text, not the event, and remembering
// it would swallow a user who legitimately sends the same text twice.
// Content keys coalesce in-flight only. The ring evicts the oldest
// remembered key once full.
func (d *dedupTable) end(key string, call *inflightCall, remember bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inflight, key)
	if remember {
		if old := d.ring[d.next]; old != "" {
			delete(d.recent, old)
		}
		d.ring[d.next] = key
		d.recent[key] = struct{}{}
		d.next = (d.next + 1) % len(d.ring)
	}

	close(call.done)
}
