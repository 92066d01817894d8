// Package eventbus is an in-process, non-blocking publish/subscribe bus for lifecycle events.
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Topic names an event stream as "<family>.<name>".
type Topic string

const (
	TaskStarted  Topic = "task.started"
	TaskFinished Topic = "task.finished"
	TaskFailed   Topic = "task.failed"
	TaskSkipped  Topic = "task.skipped"
	TaskDropped  Topic = "task.dropped"

	PostDelivered Topic = "post.delivered"
	PostEmpty     Topic = "post.empty"
	PostFailed    Topic = "post.failed"

	JobScheduled Topic = "job.scheduled"
	JobCancelled Topic = "job.cancelled"
)

// Family is the part before the first dot: "task" for TaskStarted.
func (t Topic) Family() string {
	f, _, _ := strings.Cut(string(t), ".")
	return f
}

type Event struct {
	Type Topic
	Time time.Time
	Data any
}

// Bus delivers events to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Bus interface {
	Publish(e Event)
	// Subscribe receives events whose topic or family is listed; none means all.
	Subscribe(buffer int, filter ...string) (ch <-chan Event, unsubscribe func())
	// Dropped counts events lost to full subscriber buffers.
	Dropped() uint64
}

func New() Bus { return &memBus{} }

type subscriber struct {
	ch     chan Event
	filter map[string]bool
}

func (s *subscriber) wants(t Topic) bool {
	return len(s.filter) == 0 || s.filter[string(t)] || s.filter[t.Family()]
}

type memBus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, filter ...string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, max(buffer, 1))}
	if len(filter) > 0 {
		s.filter = make(map[string]bool, len(filter))
		for _, f := range filter {
			s.filter[f] = true
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { b.remove(s) })
	}
}

// remove holds the write lock, so no Publish is mid-send when ch closes.
func (b *memBus) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.subs {
		if x == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	close(s.ch)
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }

// Publish is a nil-safe helper for optional buses.
func Publish(b Bus, topic Topic, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: topic, Time: time.Now(), Data: data})
}
