// Package notify holds transient user-facing messages that expire on their own.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDuration is how long a notification stays visible unless dismissed.
const DefaultDuration = 5000 * time.Millisecond

// Kind is the severity of a notification.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Warning Kind = "warning"
	Info    Kind = "info"
)

// Notification is a single queued message.
type Notification struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Kind      Kind          `json:"kind"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// RemovalReason records why a notification left the queue.
type RemovalReason int

const (
	Expired RemovalReason = iota
	Dismissed
)

type entry struct {
	Notification
	timer *time.Timer
}

// Queue is a goroutine-safe, push-ordered set of notifications. Every pushed
// notification is removed exactly once: by its expiry timer or by Dismiss,
// whichever comes first.
type Queue struct {
	mu       sync.Mutex
	entries  []*entry
	onChange func()
	onRemove func(Notification, RemovalReason)
	duration time.Duration
	closed   bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithOnChange registers a hook called after every push or removal. It runs
// outside the queue lock and may call back into the queue.
func WithOnChange(fn func()) Option {
	return func(q *Queue) { q.onChange = fn }
}

// WithOnRemove registers a hook called once for every removed notification.
func WithOnRemove(fn func(Notification, RemovalReason)) Option {
	return func(q *Queue) { q.onRemove = fn }
}

// WithDefaultDuration replaces DefaultDuration for this queue. Non-positive
// values are ignored.
func WithDefaultDuration(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.duration = d
		}
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{duration: DefaultDuration}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends a notification and schedules its removal after d. A
// non-positive d means the queue's default duration. It returns the
// notification id.
func (q *Queue) Push(message string, kind Kind, d time.Duration) string {
	if d <= 0 {
		d = q.duration
	}
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		Duration:  d,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return n.ID
	}
	e := &entry{Notification: n}
	q.entries = append(q.entries, e)
	e.timer = time.AfterFunc(d, func() { q.remove(n.ID, Expired) })
	q.mu.Unlock()

	q.changed()
	return n.ID
}

// Success pushes a success notification with the default duration.
func (q *Queue) Success(message string) string { return q.Push(message, Success, 0) }

// Error pushes an error notification with the default duration.
func (q *Queue) Error(message string) string { return q.Push(message, Error, 0) }

// Warning pushes a warning notification with the default duration.
func (q *Queue) Warning(message string) string { return q.Push(message, Warning, 0) }

// Info pushes an info notification with the default duration.
func (q *Queue) Info(message string) string { return q.Push(message, Info, 0) }

// Dismiss removes a notification immediately and cancels its expiry.
// Unknown or already-removed ids are ignored.
func (q *Queue) Dismiss(id string) {
	q.remove(id, Dismissed)
}

func (q *Queue) remove(id string, reason RemovalReason) {
	q.mu.Lock()
	idx := -1
	for i, e := range q.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	e := q.entries[idx]
	e.timer.Stop()
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	q.mu.Unlock()

	if q.onRemove != nil {
		q.onRemove(e.Notification, reason)
	}
	q.changed()
}

// List returns the current notifications in push order.
func (q *Queue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Notification, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.Notification
	}
	return out
}

// Len returns the number of visible notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops every pending timer and drops all notifications without
// firing removal hooks. Pushes after Close are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = nil
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) changed() {
	if q.onChange != nil {
		q.onChange()
	}
}
