package notify

import (
	"context"
	"time"

	"github.com/hamed0406/servicepoller/internal/domain"
)

// Event describes one persisted status write.
type Event struct {
	ID        domain.EndpointID `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Status    domain.Status     `json:"status"`
	CheckedAt time.Time         `json:"checked_at"`
}

func NewEvent(e domain.Endpoint, status domain.Status, at time.Time) Event {
	return Event{ID: e.ID, Name: e.Name, URL: e.URL, Status: status, CheckedAt: at}
}

type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// Multi delivers to every notifier and reports the first failure.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, ev Event) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Nop discards events.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
