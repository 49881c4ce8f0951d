// Package audit publishes security relevant account events.
// Publishing is best effort: callers log failures and carry on.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nkiryanov/posauth/internal/logger"
)

type EventType string

const (
	EventRegister   EventType = "register"
	EventLogin      EventType = "login"
	EventRefresh    EventType = "refresh"
	EventLogout     EventType = "logout"
	EventDeactivate EventType = "deactivate"
	EventActivate   EventType = "activate"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type Event struct {
	Type      EventType `json:"type"`
	AccountID int64     `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Discard drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to the structured log
type LogPublisher struct {
	logger logger.Logger
}

func NewLogPublisher(l logger.Logger) *LogPublisher {
	return &LogPublisher{logger: l.WithGroup("audit")}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info(
		"audit event",
		"type", e.Type,
		"account_id", e.AccountID,
		"email", e.Email,
		"outcome", e.Outcome,
		"at", e.At,
	)
	return nil
}

var (
	ErrBufferFull = errors.New("audit buffer is full, event dropped")
	ErrClosed     = errors.New("audit publisher is closed")
)

const deliveryTimeout = 5 * time.Second

// Async decouples request path from the underlying publisher
// Publish never blocks: when buffer is full the event is dropped
type Async struct {
	next   Publisher
	logger logger.Logger
	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, buffer int, l logger.Logger) *Async {
	if buffer <= 0 {
		buffer = 1
	}

	a := &Async{
		next:   next,
		logger: l,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go a.loop()

	return a
}

func (a *Async) Publish(_ context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}

	select {
	case a.events <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and waits until buffered ones are delivered
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	<-a.done
}

func (a *Async) loop() {
	defer close(a.done)

	for e := range a.events {
		// Request context is likely gone already
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := a.next.Publish(ctx, e); err != nil {
			a.logger.Warn("audit event delivery failed", "type", e.Type, "account_id", e.AccountID, "error", err.Error())
		}
		cancel()
	}
}
