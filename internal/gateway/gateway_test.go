package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rex/api/internal/metrics"
	"rex/api/internal/store"
	"rex/api/internal/store/memory"
)

type blockingBackend struct {
	*memory.Backend
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{
		Backend: memory.New(),
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingBackend) GetIdea(ctx context.Context, req store.GetIdea) (store.Idea, error) {
	b.calls.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return b.Backend.GetIdea(ctx, req)
}

type panickingBackend struct {
	*memory.Backend
}

func (panickingBackend) GetHealth(context.Context, store.GetHealth) (store.Health, error) {
	panic("boom")
}

func TestSendReturnsBackendResult(t *testing.T) {
	ctx := context.Background()
	g := New(memory.New())
	t.Cleanup(func() { _ = g.Close() })

	idea := store.Idea{ID: store.IDFromUint64(1), CollectionID: store.IDFromUint64(7), Name: "Test Idea", Tags: []string{"test"}}
	stored, err := Send(ctx, g, store.StoreIdea{Idea: idea})
	require.NoError(t, err)
	assert.Equal(t, idea, stored)

	got, err := Send(ctx, g, store.GetIdea{CollectionID: idea.CollectionID, ID: idea.ID})
	require.NoError(t, err)
	assert.Equal(t, idea, got)
}

func TestBackendErrorsSurfaceUnchanged(t *testing.T) {
	g := New(memory.New())
	t.Cleanup(func() { _ = g.Close() })

	_, err := Send(context.Background(), g, store.GetIdea{CollectionID: store.IDFromUint64(1), ID: store.IDFromUint64(2)})
	require.True(t, store.IsNotFound(err))
	assert.Equal(t, store.MsgCollectionNotFound, store.AsError(err).Message)
}

func TestMissingBackendIsUnavailable(t *testing.T) {
	_, err := Send(context.Background(), New(nil), store.GetHealth{})
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusOf(err))

	var g *Gateway
	_, err = Send(context.Background(), g, store.GetHealth{})
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusOf(err))
}

func TestClosedGatewayRejectsRequests(t *testing.T) {
	g := New(memory.New())
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	_, err := Send(context.Background(), g, store.GetHealth{})
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusOf(g.Ping(context.Background())))
}

func TestCloseWaitsForInFlight(t *testing.T) {
	backend := newBlockingBackend()
	g := New(backend)
	pending := Go(context.Background(), g, store.GetIdea{CollectionID: store.IDFromUint64(1), ID: store.IDFromUint64(1)})
	<-backend.entered

	closed := make(chan struct{})
	go func() {
		_ = g.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a request was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)
	_, err := pending.Wait(context.Background())
	assert.True(t, store.IsNotFound(err))
	<-closed
}

func TestPanicBecomesInternal(t *testing.T) {
	g := New(panickingBackend{memory.New()})
	_, err := Send(context.Background(), g, store.GetHealth{})
	assert.Equal(t, http.StatusInternalServerError, store.StatusOf(err))
}

func TestMaxInFlightBlocksUntilSlotFrees(t *testing.T) {
	backend := newBlockingBackend()
	g := New(backend, WithMaxInFlight(1))
	req := store.GetIdea{CollectionID: store.IDFromUint64(1), ID: store.IDFromUint64(1)}

	first := Go(context.Background(), g, req)
	<-backend.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Go(ctx, g, req).Wait(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusOf(err))
	assert.Equal(t, int32(1), backend.calls.Load())

	close(backend.release)
	_, err = first.Wait(context.Background())
	assert.True(t, store.IsNotFound(err))
	require.NoError(t, g.Close())
}

func TestRequestsRunIndependently(t *testing.T) {
	ctx := context.Background()
	g := New(memory.New(), WithMaxInFlight(4))
	t.Cleanup(func() { _ = g.Close() })
	collection := store.IDFromUint64(9)

	pending := make([]*Pending[store.Idea], 0, 50)
	for i := range 50 {
		pending = append(pending, Go(ctx, g, store.StoreIdea{Idea: store.Idea{
			ID:           store.IDFromUint64(uint64(i + 1)),
			CollectionID: collection,
			Name:         "n",
		}}))
	}
	for _, p := range pending {
		_, err := p.Wait(ctx)
		require.NoError(t, err)
	}

	ideas, err := Send(ctx, g, store.GetIdeas{CollectionID: collection})
	require.NoError(t, err)
	assert.Len(t, ideas, 50)
}

func TestWaitHonoursContext(t *testing.T) {
	backend := newBlockingBackend()
	g := New(backend)
	pending := Go(context.Background(), g, store.GetIdea{CollectionID: store.IDFromUint64(1), ID: store.IDFromUint64(1)})
	<-backend.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pending.Wait(ctx)
	assert.Equal(t, http.StatusServiceUnavailable, store.StatusOf(err))

	close(backend.release)
	<-pending.Done()
	require.NoError(t, g.Close())
}

func TestDispatchIsMeasured(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	g := New(memory.New(), WithMetrics(m))
	t.Cleanup(func() { _ = g.Close() })
	ctx := context.Background()

	_, err := Send(ctx, g, store.GetHealth{})
	require.NoError(t, err)
	_, _ = Send(ctx, g, store.GetUser{EmailHash: store.IDFromUint64(1)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations().WithLabelValues("memory", "GetHealth", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations().WithLabelValues("memory", "GetUser", store.CodeNotFound)))
}
