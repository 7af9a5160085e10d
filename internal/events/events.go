// Package events defines the optional publish-only progress sink.
//
// Core components accept a Publisher and call it at every phase transition.
// A nil or Nop publisher only drops notifications; behavior never depends on
// whether anyone listens.
package events

import (
	"sync"
	"time"
)

// Kind identifies the phase transition an event reports.
type Kind string

const (
	KindFetchStarted     Kind = "fetch_started"
	KindFetchDone        Kind = "fetch_done"
	KindInstallStarted   Kind = "install_started"
	KindDownloadProgress Kind = "download_progress"
	KindInstallCompleted Kind = "install_completed"
	KindProcessLaunched  Kind = "process_launched"
	KindConsoleLine      Kind = "console_line"
	KindProcessExited    Kind = "process_exited"
)

// Stream tells console lines apart.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Event is a single notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind
	Time time.Time

	// Resource is the URL, query or path the event is about.
	Resource string
	// Category is the download category for progress events.
	Category string
	// Done and Total count finished and planned items for progress events.
	Done, Total int

	// PID and Instance identify the process for process and console events.
	PID      int
	Instance string
	Stream   Stream
	Line     string
	// ExitCode is -1 when the process was terminated without an exit status.
	ExitCode int
}

// Publisher receives events.
type Publisher interface {
	Publish(event Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// Func adapts a function to Publisher.
type Func func(Event)

// Publish implements Publisher.
func (f Func) Publish(event Event) {
	f(event)
}

// OrNop returns p, or Nop when p is nil.
func OrNop(p Publisher) Publisher { //nolint:ireturn // Returning the interface is the point.
	if p == nil {
		return Nop{}
	}

	return p
}

// Bus fans events out to subscribers over buffered channels.
// Slow subscribers lose events instead of blocking publishers.
type Bus struct {
	// subscribers maps each channel to its unsubscribe state.
	subscribers map[chan Event]struct{}
	// buffer is the channel capacity given to new subscribers.
	buffer int
	// mu guards subscribers.
	mu sync.RWMutex
}

// NewBus creates a bus whose subscribers get channels of the given capacity.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1
	}

	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		buffer:      buffer,
	}
}

// Publish stamps the event and offers it to every subscriber without blocking.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Multi publishes each event to every non-nil publisher in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(event Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(event)
		}
	}
}
