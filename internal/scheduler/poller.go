package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hamed0406/servicepoller/internal/domain"
	"github.com/hamed0406/servicepoller/internal/metrics"
	"github.com/hamed0406/servicepoller/internal/notify"
	"github.com/hamed0406/servicepoller/internal/probe"
	"github.com/hamed0406/servicepoller/internal/repo"
)

const DefaultInterval = 60 * time.Second

var errProbePanic = errors.New("probe panicked")

// Poller keeps every endpoint's status current. RunCycle is one pass over
// the store; Run drives it on a fixed period.
type Poller struct {
	Logger   *zap.Logger
	Store    repo.EndpointStore
	Checker  probe.Checker
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Interval time.Duration
	Timeout  time.Duration
	// PollOnStart runs a cycle as soon as Run is called.
	PollOnStart bool

	tracer  trace.Tracer
	running atomic.Bool
	wg      sync.WaitGroup
}

// CycleReport summarises one finished cycle.
type CycleReport struct {
	CycleID     string
	Endpoints   int
	Probed      int
	Written     int
	WriteErrors int
	Cancelled   int // probes abandoned because ctx was cancelled
	OK          int
	Fail        int
	Duration    time.Duration
}

type taskResult struct {
	status    domain.Status
	written   bool
	cancelled bool
}

func NewPoller(
	logger *zap.Logger,
	store repo.EndpointStore,
	checker probe.Checker,
	interval time.Duration,
	timeout time.Duration,
) *Poller {
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = probe.DefaultTimeout
	}
	return &Poller{
		Logger:      logger,
		Store:       store,
		Checker:     checker,
		Notifier:    notify.Nop{},
		Interval:    interval,
		Timeout:     timeout,
		PollOnStart: true,
		tracer:      otel.Tracer("github.com/hamed0406/servicepoller/internal/scheduler"),
	}
}

// Run starts the loop and blocks until ctx is cancelled and the in-flight
// cycle, if any, has finished. A tick that arrives while a cycle is still
// running is skipped.
func (p *Poller) Run(ctx context.Context) {
	if p.Interval == 0 {
		p.Logger.Info("poller_disabled")
		return
	}
	t := time.NewTicker(p.Interval)
	defer t.Stop()

	if p.PollOnStart {
		p.trigger(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			p.Logger.Info("poller_stopped")
			return
		case <-t.C:
			p.trigger(ctx)
		}
	}
}

// trigger starts a cycle unless one is already running.
func (p *Poller) trigger(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.Logger.Warn("poll_cycle_skipped", zap.Duration("interval", p.Interval))
		p.Metrics.CycleSkipped()
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				p.Logger.Error("poll_cycle_panic",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		_, _ = p.RunCycle(ctx)
	}()
	return true
}

// RunCycle snapshots the store, probes every endpoint concurrently and
// writes each status back on its own. It returns once every task is done.
// Only a failure to list endpoints is returned as an error.
func (p *Poller) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{CycleID: uuid.NewString()}
	start := time.Now()

	ctx, span := p.tracerOrDefault().Start(ctx, "poll_cycle",
		trace.WithAttributes(attribute.String("cycle_id", report.CycleID)))
	defer span.End()

	endpoints, err := p.Store.ListAll(ctx)
	if err != nil {
		p.Logger.Warn("poll_list_error", zap.String("cycle_id", report.CycleID), zap.Error(err))
		p.Metrics.CycleListFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, "list endpoints")
		return report, fmt.Errorf("list endpoints: %w", err)
	}
	report.Endpoints = len(endpoints)
	span.SetAttributes(attribute.Int("endpoints", len(endpoints)))

	results := make(chan taskResult, len(endpoints))
	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep domain.Endpoint) {
			defer wg.Done()
			results <- p.pollOne(ctx, report.CycleID, ep)
		}(ep)
	}
	wg.Wait()
	close(results)

	for r := range results {
		report.Probed++
		if r.cancelled {
			report.Cancelled++
			continue
		}
		if r.status == domain.StatusOK {
			report.OK++
		} else {
			report.Fail++
		}
		if r.written {
			report.Written++
		} else {
			report.WriteErrors++
		}
	}
	report.Duration = time.Since(start)
	p.Metrics.CycleCompleted(report.Endpoints, report.Duration)

	p.Logger.Info("poll_cycle_done",
		zap.String("cycle_id", report.CycleID),
		zap.Int("endpoints", report.Endpoints),
		zap.Int("ok", report.OK),
		zap.Int("fail", report.Fail),
		zap.Int("write_errors", report.WriteErrors),
		zap.Int("cancelled", report.Cancelled),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Poller) pollOne(ctx context.Context, cycleID string, ep domain.Endpoint) taskResult {
	ctx, span := p.tracerOrDefault().Start(ctx, "probe", trace.WithAttributes(
		attribute.String("endpoint_id", string(ep.ID)),
		attribute.String("url", ep.URL),
	))
	defer span.End()

	out := p.check(ctx, cycleID, ep)
	if ctx.Err() != nil {
		// shutting down: an abandoned probe says nothing about the endpoint
		p.Logger.Debug("poll_cancelled",
			zap.String("cycle_id", cycleID),
			zap.String("endpoint_id", string(ep.ID)),
		)
		return taskResult{cancelled: true}
	}
	status := probe.Resolve(out)
	p.Metrics.ProbeResolved(status)
	span.SetAttributes(attribute.String("status", status.String()))

	res := taskResult{status: status}
	if err := p.Store.WriteStatus(ctx, ep.ID, status); err != nil {
		p.Logger.Warn("poll_write_error",
			zap.String("cycle_id", cycleID),
			zap.String("endpoint_id", string(ep.ID)),
			zap.String("url", ep.URL),
			zap.Bool("endpoint_gone", errors.Is(err, repo.ErrNotFound)),
			zap.Error(err),
		)
		p.Metrics.WriteFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, "write status")
		return res
	}
	res.written = true

	fields := []zap.Field{
		zap.String("cycle_id", cycleID),
		zap.String("endpoint_id", string(ep.ID)),
		zap.String("url", ep.URL),
		zap.String("status", status.String()),
		zap.Int("http_status", out.StatusCode),
		zap.Duration("latency", out.Latency),
	}
	if out.Err != nil {
		fields = append(fields, zap.NamedError("probe_error", out.Err))
	}
	p.Logger.Debug("poll_checked", fields...)

	if p.Notifier != nil {
		if err := p.Notifier.Send(ctx, notify.NewEvent(ep, status, time.Now().UTC())); err != nil {
			p.Logger.Warn("poll_notify_error",
				zap.String("endpoint_id", string(ep.ID)),
				zap.Error(err),
			)
		}
	}
	return res
}

// check runs the probe with a hard deadline. The checker runs on its own
// goroutine so one that ignores its context still cannot hold the cycle
// past Timeout; its late result is discarded.
func (p *Poller) check(ctx context.Context, cycleID string, ep domain.Endpoint) probe.Outcome {
	pctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	done := make(chan probe.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				correlationID := uuid.NewString()
				p.Logger.Error("poll_probe_panic",
					zap.String("cycle_id", cycleID),
					zap.String("correlation_id", correlationID),
					zap.String("endpoint_id", string(ep.ID)),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				done <- probe.Outcome{Err: fmt.Errorf("%w (correlation_id: %s)", errProbePanic, correlationID)}
			}
		}()
		done <- p.Checker.Check(pctx, ep.URL)
	}()

	select {
	case out := <-done:
		return out
	case <-pctx.Done():
		return probe.Outcome{Err: fmt.Errorf("%w: %v", probe.ErrTimeout, pctx.Err())}
	}
}

func (p *Poller) tracerOrDefault() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("github.com/hamed0406/servicepoller/internal/scheduler")
	}
	return p.tracer
}
