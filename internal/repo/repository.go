package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamed0406/servicepoller/internal/domain"
)

// ErrNotFound is wrapped by StoreError when an id has no record.
var ErrNotFound = errors.New("endpoint not found")

// StoreError reports a failed store operation. It always wraps the cause.
type StoreError struct {
	Op  string
	ID  domain.EndpointID
	Err error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Ports (interfaces). The poller only needs EndpointStore.
type EndpointStore interface {
	// ListAll returns copies of every endpoint at one point in time.
	ListAll(ctx context.Context) ([]domain.Endpoint, error)
	// WriteStatus replaces the status of a single endpoint.
	WriteStatus(ctx context.Context, id domain.EndpointID, status domain.Status) error
}

type EndpointRegistry interface {
	// Create assigns ID, Added (if zero) and resets Status to UNKNOWN.
	Create(ctx context.Context, e *domain.Endpoint) error
	// Delete removes the endpoint. Unknown ids are not an error.
	Delete(ctx context.Context, id domain.EndpointID) error
}

type Store interface {
	EndpointStore
	EndpointRegistry
	Close() error
}
