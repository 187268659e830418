package devtools

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// EventType identifies what a recorded event describes.
type EventType string

const (
	EventFlushStart EventType = "flush.start"
	EventFlushEnd   EventType = "flush.end"
	EventEffect     EventType = "effect"
	EventError      EventType = "error"
	EventWarning    EventType = "warning"
)

// Event is one observed runtime callback.
type Event struct {
	Seq   uint64        `json:"seq" msgpack:"seq"`
	Time  time.Time     `json:"time" msgpack:"time"`
	Type  EventType     `json:"type" msgpack:"type"`
	Depth int           `json:"depth,omitempty" msgpack:"depth,omitempty"`
	Kind  string        `json:"kind,omitempty" msgpack:"kind,omitempty"`
	Label string        `json:"label,omitempty" msgpack:"label,omitempty"`
	Code  string        `json:"code,omitempty" msgpack:"code,omitempty"`
	Stats *FlushSummary `json:"stats,omitempty" msgpack:"stats,omitempty"`
}

// FlushSummary is the wire form of reactive.FlushStats.
type FlushSummary struct {
	Passes         int   `json:"passes" msgpack:"passes"`
	Jobs           int   `json:"jobs" msgpack:"jobs"`
	PostCallbacks  int   `json:"postCallbacks" msgpack:"postCallbacks"`
	Dropped        int   `json:"dropped" msgpack:"dropped"`
	DurationMicros int64 `json:"durationMicros" msgpack:"durationMicros"`
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// BufferSize is the number of recent events kept (default: 1024).
	BufferSize int

	// SubscriberBuffer is the channel size of each subscription (default: 256).
	// Events are dropped for subscribers that fall this far behind.
	SubscriberBuffer int

	// SkipEffects leaves effect runs out of the stream.
	SkipEffects bool

	// Now returns the event timestamp (default: time.Now).
	Now func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*RecorderConfig)

// WithBufferSize sets the number of events kept for snapshots.
func WithBufferSize(n int) RecorderOption {
	return func(c *RecorderConfig) {
		c.BufferSize = n
	}
}

// WithSubscriberBuffer sets the channel size of each subscription.
func WithSubscriberBuffer(n int) RecorderOption {
	return func(c *RecorderConfig) {
		c.SubscriberBuffer = n
	}
}

// WithSkipEffects leaves effect runs out of the stream.
func WithSkipEffects(skip bool) RecorderOption {
	return func(c *RecorderConfig) {
		c.SkipEffects = skip
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) RecorderOption {
	return func(c *RecorderConfig) {
		c.Now = now
	}
}

// Recorder is a reactive.Observer that keeps a ring buffer of recent events
// and fans them out to live subscribers.
//
// Observer callbacks arrive on the runtime's goroutine; Snapshot and
// Subscribe may be called from any goroutine.
type Recorder struct {
	config RecorderConfig

	mu      sync.Mutex
	ring    []Event
	next    int
	full    bool
	seq     uint64
	dropped uint64
	subs    map[string]chan Event
}

// NewRecorder creates a recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	config := RecorderConfig{
		BufferSize:       1024,
		SubscriberBuffer: 256,
		Now:              time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 1
	}
	return &Recorder{
		config: config,
		ring:   make([]Event, config.BufferSize),
		subs:   make(map[string]chan Event),
	}
}

func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	ev.Seq = r.seq
	ev.Time = r.config.Now()

	r.ring[r.next] = ev
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}

	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.dropped++
		}
	}
}

// Snapshot returns the buffered events, oldest first.
func (r *Recorder) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Event(nil), r.ring[:r.next]...)
	}
	out := make([]Event, 0, len(r.ring))
	out = append(out, r.ring[r.next:]...)
	return append(out, r.ring[:r.next]...)
}

// RecorderStats reports recorder counters.
type RecorderStats struct {
	Total       uint64 `json:"total"`
	Buffered    int    `json:"buffered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	buffered := r.next
	if r.full {
		buffered = len(r.ring)
	}
	return RecorderStats{
		Total:       r.seq,
		Buffered:    buffered,
		Dropped:     r.dropped,
		Subscribers: len(r.subs),
	}
}

// Subscription is a live feed of recorded events.
type Subscription struct {
	// ID identifies the subscriber.
	ID string

	// Events delivers events recorded after Subscribe. It is closed by Close.
	Events <-chan Event

	r    *Recorder
	once sync.Once
}

// Subscribe starts a live feed.
func (r *Recorder) Subscribe() *Subscription {
	id := uuid.NewString()
	ch := make(chan Event, r.config.SubscriberBuffer)

	r.mu.Lock()
	r.subs[id] = ch
	r.mu.Unlock()

	return &Subscription{ID: id, Events: ch, r: r}
}

// Close ends the feed. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.r.mu.Lock()
		defer s.r.mu.Unlock()
		if ch, ok := s.r.subs[s.ID]; ok {
			delete(s.r.subs, s.ID)
			close(ch)
		}
	})
}

// FlushStarted implements reactive.Observer.
func (r *Recorder) FlushStarted(depth int) {
	r.record(Event{Type: EventFlushStart, Depth: depth})
}

// FlushCompleted implements reactive.Observer.
func (r *Recorder) FlushCompleted(stats reactive.FlushStats) {
	r.record(Event{Type: EventFlushEnd, Stats: &FlushSummary{
		Passes:         stats.Passes,
		Jobs:           stats.Jobs,
		PostCallbacks:  stats.PostCallbacks,
		Dropped:        stats.Dropped,
		DurationMicros: stats.Duration.Microseconds(),
	}})
}

// EffectRun implements reactive.Observer.
func (r *Recorder) EffectRun(kind reactive.EffectKind) {
	if r.config.SkipEffects {
		return
	}
	r.record(Event{Type: EventEffect, Kind: string(kind)})
}

// ErrorReported implements reactive.Observer.
func (r *Recorder) ErrorReported(label reactive.ErrorLabel) {
	r.record(Event{Type: EventError, Label: string(label)})
}

// Warned implements reactive.Observer.
func (r *Recorder) Warned(code string) {
	r.record(Event{Type: EventWarning, Code: code})
}
