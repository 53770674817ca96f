// Package gateway is the single entry point for store operations. Every
// request runs as its own asynchronous unit of work against the configured
// backend; the gateway holds no entity state of its own.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"rex/api/internal/metrics"
	"rex/api/internal/store"
)

const DefaultMaxInFlight = 64

type Gateway struct {
	backend store.Backend
	slots   *semaphore.Weighted
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	mu      sync.RWMutex
	closed  bool
	running sync.WaitGroup
}

type Option func(*Gateway)

// WithMaxInFlight bounds how many operations may execute at once. Further
// requests wait for a slot or for their context to end.
func WithMaxInFlight(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

func New(backend store.Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend: backend,
		slots:   semaphore.NewWeighted(DefaultMaxInFlight),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) BackendName() string {
	if g == nil || g.backend == nil {
		return "none"
	}
	return g.backend.Name()
}

// Ping reports whether the backend can currently be reached.
func (g *Gateway) Ping(ctx context.Context) error {
	if !g.accepting() {
		return unavailable(nil)
	}
	return g.backend.Ping(ctx)
}

// Close stops accepting requests, waits for those already dispatched and then
// closes the backend.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	g.running.Wait()
	if g.backend == nil {
		return nil
	}
	if err := g.backend.Close(); err != nil {
		return fmt.Errorf("close %s backend: %w", g.backend.Name(), err)
	}
	return nil
}

func (g *Gateway) accepting() bool {
	if g == nil || g.backend == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.closed
}

// begin registers one dispatch unless the gateway is closed.
func (g *Gateway) begin() bool {
	if g == nil || g.backend == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return false
	}
	g.running.Add(1)
	return true
}

// Pending is the handle for one dispatched request.
type Pending[R any] struct {
	done   chan struct{}
	result R
	err    error
}

// Wait blocks until the request finishes or ctx ends, whichever is first.
// Abandoning the wait does not cancel the request itself.
func (p *Pending[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		var zero R
		return zero, unavailable(ctx.Err())
	}
}

// Done is closed once the result is available.
func (p *Pending[R]) Done() <-chan struct{} {
	return p.done
}

// Go dispatches req without waiting for its result.
func Go[R any](ctx context.Context, g *Gateway, req store.Request[R]) *Pending[R] {
	p := &Pending[R]{done: make(chan struct{})}
	if !g.begin() {
		p.err = unavailable(nil)
		close(p.done)
		return p
	}

	go func() {
		defer g.running.Done()
		defer close(p.done)
		p.result, p.err = dispatch(ctx, g, req)
	}()
	return p
}

// Send dispatches req and waits for its result.
func Send[R any](ctx context.Context, g *Gateway, req store.Request[R]) (R, error) {
	return Go(ctx, g, req).Wait(ctx)
}

func dispatch[R any](ctx context.Context, g *Gateway, req store.Request[R]) (R, error) {
	var zero R
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return zero, unavailable(fmt.Errorf("acquire dispatch slot: %w", err))
	}
	defer g.slots.Release(1)

	g.metrics.Started()
	defer g.metrics.Finished()

	started := time.Now()
	result, err := execute(ctx, g.backend, req)
	elapsed := time.Since(started)

	code := "OK"
	if err != nil {
		domainErr := store.AsError(err)
		code = domainErr.Code
		if domainErr.Status >= 500 {
			g.log.Errorw("store operation failed",
				"backend", g.backend.Name(), "operation", req.Operation(), "code", code, "error", err)
		} else {
			g.log.Debugw("store operation rejected",
				"backend", g.backend.Name(), "operation", req.Operation(), "code", code, "message", domainErr.Message)
		}
	}
	g.metrics.Observe(g.backend.Name(), req.Operation(), code, elapsed.Seconds())
	return result, err
}

func execute[R any](ctx context.Context, backend store.Backend, req store.Request[R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			result = zero
			err = store.Internal("We ran into a problem, this has been reported and will be looked at.",
				fmt.Errorf("panic during %s: %v", req.Operation(), r))
		}
	}()
	return req.Execute(ctx, backend)
}

func unavailable(cause error) error {
	return store.Unavailable(store.MsgBackendUnavailable, cause)
}
