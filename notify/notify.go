// Package notify is the change-propagation broker. Every mutating race
// operation publishes a coarse invalidation event tagged with the
// affected table and day; viewers subscribe and re-pull the projection
// they care about. Delivery is best-effort and unordered — an event is
// "something changed, re-read", never a diff payload.
package notify

import "sync"

// Table identifies which collection changed.
type Table string

const (
	TableEntries Table = "race_entries"
	TableLaps    Table = "laps"
)

// Event is a coarse invalidation notice.
type Event struct {
	Table   Table `json:"table"`
	Day     int   `json:"day"`
	EntryID int   `json:"entryID,omitempty"`
}

// Filter narrows a subscription. Zero values match everything.
type Filter struct {
	Tables  []Table
	Day     int
	EntryID int
}

func (f Filter) matches(e Event) bool {
	// A zero Day or EntryID on an event marks a broad change (queue
	// cleared, full reset) and matches every narrower filter.
	if f.Day != 0 && e.Day != 0 && f.Day != e.Day {
		return false
	}
	if f.EntryID != 0 && e.EntryID != 0 && f.EntryID != e.EntryID {
		return false
	}
	if len(f.Tables) == 0 {
		return true
	}
	for _, t := range f.Tables {
		if t == e.Table {
			return true
		}
	}
	return false
}

type subscriber struct {
	filter Filter
	ch     chan Event
}

// Broker fans events out to subscribers over buffered channels. A slow
// subscriber whose buffer is full loses the event rather than blocking
// the publisher; consumers re-derive from authoritative state, so a
// later event catches them up.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
	buffer int
	closed bool
}

// New creates a broker with configuration options.
func New(opts ...Option) *Broker {
	b := &Broker{
		subs:   make(map[int]*subscriber),
		buffer: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers interest and returns the event channel plus an
// unsubscribe func. The channel is closed on unsubscribe or broker close.
func (b *Broker) Subscribe(f Filter) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{filter: f, ch: make(chan Event, b.buffer)}
	b.subs[id] = sub

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
}

// Publish delivers the event to every matching subscriber without
// blocking.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Close shuts the broker down and closes all subscriber channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
