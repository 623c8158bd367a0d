// Package notify holds the transient messages shown to a visitor on the next render.
package notify

import "sync"

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notice struct {
	Level   Level
	Message string
}

// Notifier is what components use to surface a message to the visitor.
type Notifier interface {
	Notify(level Level, message string)
}

// maxPending bounds the queue; the oldest notices are dropped first.
const maxPending = 8

// Queue collects notices until the next page drains them.
type Queue struct {
	mu      sync.Mutex
	pending []Notice
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Notify(level Level, message string) {
	if message == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, Notice{Level: level, Message: message})
	if len(q.pending) > maxPending {
		q.pending = q.pending[len(q.pending)-maxPending:]
	}
}

func (q *Queue) Success(message string) { q.Notify(LevelSuccess, message) }
func (q *Queue) Error(message string)   { q.Notify(LevelError, message) }

// Drain returns the pending notices in arrival order and empties the queue.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Discard is a Notifier that drops everything.
type Discard struct{}

func (Discard) Notify(Level, string) {}
