package metrics

import (
	"sync"
	"time"
)

const recentLimit = 64

// Event records an export failure that was deliberately not propagated to
// the cell that triggered it.
type Event struct {
	Time   time.Time
	Source string // "sandbox" or "host"
	Name   string
	Op     string
	Err    error
}

// Diagnostics fans failure events out to subscribers and keeps the most
// recent ones for later inspection. The zero value is not usable; call
// NewDiagnostics.
type Diagnostics struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	recent []Event
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{subs: make(map[int]chan Event)}
}

// Report publishes ev. Slow subscribers miss events rather than block the
// reporter.
func (d *Diagnostics) Report(ev Event) {
	if d == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.recent = append(d.recent, ev)
	if len(d.recent) > recentLimit {
		d.recent = d.recent[len(d.recent)-recentLimit:]
	}
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of future events and a function that ends the
// subscription and closes the channel.
func (d *Diagnostics) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns a copy of the retained events, oldest first.
func (d *Diagnostics) Recent() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.recent...)
}
