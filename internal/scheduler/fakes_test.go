package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hamed0406/servicepoller/internal/domain"
	"github.com/hamed0406/servicepoller/internal/notify"
	"github.com/hamed0406/servicepoller/internal/probe"
	"github.com/hamed0406/servicepoller/internal/repo"
)

var errDiskFull = errors.New("disk full")

// fakeStore records every write and can be told to fail.
type fakeStore struct {
	mu        sync.Mutex
	endpoints []domain.Endpoint
	listErr   error
	failIDs   map[domain.EndpointID]bool
	writes    map[domain.EndpointID][]domain.Status
	lists     int
}

func newFakeStore(eps ...domain.Endpoint) *fakeStore {
	return &fakeStore{
		endpoints: eps,
		failIDs:   map[domain.EndpointID]bool{},
		writes:    map[domain.EndpointID][]domain.Status{},
	}
}

func (f *fakeStore) ListAll(ctx context.Context) ([]domain.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, &repo.StoreError{Op: "list", Err: f.listErr}
	}
	out := make([]domain.Endpoint, len(f.endpoints))
	copy(out, f.endpoints)
	return out, nil
}

func (f *fakeStore) WriteStatus(ctx context.Context, id domain.EndpointID, s domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return &repo.StoreError{Op: "write_status", ID: id, Err: errDiskFull}
	}
	f.writes[id] = append(f.writes[id], s)
	return nil
}

func (f *fakeStore) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeStore) totalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		n += len(w)
	}
	return n
}

func (f *fakeStore) last(id domain.EndpointID) (domain.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.writes[id]
	if len(w) == 0 {
		return domain.StatusUnknown, false
	}
	return w[len(w)-1], true
}

// funcChecker counts calls and delegates to fn.
type funcChecker struct {
	calls atomic.Int64
	fn    func(ctx context.Context, url string) probe.Outcome
}

func (c *funcChecker) Check(ctx context.Context, url string) probe.Outcome {
	c.calls.Add(1)
	return c.fn(ctx, url)
}

func okBody(context.Context, string) probe.Outcome {
	return probe.Outcome{StatusCode: 200, Body: []byte("OK")}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Send(ctx context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func endpoint(id, url string) domain.Endpoint {
	return domain.Endpoint{ID: domain.EndpointID(id), URL: url, Name: id, Status: domain.StatusUnknown}
}
