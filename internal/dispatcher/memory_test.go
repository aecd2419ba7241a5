package dispatcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cockpit/internal/testutil"
	"cockpit/pkg/backoff"
	"cockpit/pkg/cloudevent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig keeps retries and cooldowns short.
func fastConfig() MemoryConfig {
	return MemoryConfig{
		BufferSize:       100,
		Workers:          1,
		HTTPTimeout:      time.Second,
		MaxRetries:       3,
		Retry:            backoff.Config{Initial: time.Millisecond, Max: 5 * time.Millisecond},
		BreakerThreshold: 5,
		BreakerCooldown:  50 * time.Millisecond,
	}
}

func newTestDispatcher(t *testing.T, cfg MemoryConfig, metrics MetricsRecorder) *MemoryDispatcher {
	t.Helper()
	d := NewMemory(cfg, metrics)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	return d
}

func testEvent(url string) *Event {
	return &Event{
		Payload:     cloudevent.New("cockpit.job.admitted", "cockpit", "job-1", "evt-1", map[string]any{"status": "PENDING"}),
		Destination: url,
	}
}

func TestMemoryDispatcher_Dispatch(t *testing.T) {
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
	}))
	defer server.Close()

	d := newTestDispatcher(t, fastConfig(), nil)
	require.NoError(t, d.Dispatch(testEvent(server.URL)))

	testutil.MustWaitForCount(t, &received, 1, testutil.WithTimeout(5*time.Second))
	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 })
	assert.Equal(t, int64(1), d.Stats().Queued)
}

func TestMemoryDispatcher_BufferFull(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := fastConfig()
	cfg.BufferSize = 2
	d := newTestDispatcher(t, cfg, nil)

	var full int
	for range 10 {
		if err := d.Dispatch(testEvent(server.URL)); err == ErrBufferFull {
			full++
		}
	}

	assert.Positive(t, full)
	assert.Equal(t, int64(full), d.Stats().Dropped)
}

func TestMemoryDispatcher_Retry(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	d := newTestDispatcher(t, fastConfig(), nil)
	require.NoError(t, d.Dispatch(testEvent(server.URL)))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 })
	assert.Equal(t, int64(3), attempts.Load())
	assert.Equal(t, int64(2), d.Stats().RetriesTotal)
}

func TestMemoryDispatcher_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 2
	d := newTestDispatcher(t, cfg, nil)
	require.NoError(t, d.Dispatch(testEvent(server.URL)))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Failed == 1 })
	assert.Equal(t, int64(3), attempts.Load())
}

func TestMemoryDispatcher_NoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := newTestDispatcher(t, fastConfig(), nil)
	require.NoError(t, d.Dispatch(testEvent(server.URL)))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Failed == 1 })
	assert.Equal(t, int64(1), attempts.Load())
}

func TestMemoryDispatcher_CircuitOpensAndRecovers(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	var delivered atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		delivered.Add(1)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 0
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = 100 * time.Millisecond
	d := newTestDispatcher(t, cfg, nil)

	for range 2 {
		require.NoError(t, d.Dispatch(testEvent(server.URL)))
	}
	testutil.MustWaitFor(t, func() bool { return d.Stats().BreakersOpen == 1 })

	// With the circuit open this one is held back, then delivered once the
	// receiver recovers and the probe succeeds.
	require.NoError(t, d.Dispatch(testEvent(server.URL)))
	testutil.MustWaitFor(t, func() bool { return d.Stats().Requeued >= 1 })
	failing.Store(false)

	testutil.MustWaitForCount(t, &delivered, 1, testutil.WithTimeout(5*time.Second))
	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, 0, stats.BreakersOpen)
}

func TestMemoryDispatcher_SignedDelivery(t *testing.T) {
	var mu sync.Mutex
	var body []byte
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(cloudevent.SignatureHeader)
	}))
	defer server.Close()

	d := newTestDispatcher(t, fastConfig(), nil)
	event := testEvent(server.URL)
	event.SigningKey = "secret-key"
	require.NoError(t, d.Dispatch(event))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 })

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, cloudevent.Verify(body, "secret-key", signature), "signature %q does not verify", signature)
}

func TestMemoryDispatcher_GracefulShutdown(t *testing.T) {
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.Workers = 2
	d := NewMemory(cfg, nil)

	for range 10 {
		require.NoError(t, d.Dispatch(testEvent(server.URL)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, int64(10), received.Load())

	assert.ErrorIs(t, d.Dispatch(testEvent(server.URL)), ErrClosed)
	assert.NoError(t, d.Close(ctx), "second Close is a no-op")
}

func TestMemoryDispatcher_CloseTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := fastConfig()
	cfg.HTTPTimeout = 10 * time.Second
	d := NewMemory(cfg, nil)
	require.NoError(t, d.Dispatch(testEvent(server.URL)))
	testutil.MustWaitFor(t, func() bool { return d.Stats().QueueDepth == 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

// recordingMetrics counts dispatcher metric calls.
type recordingMetrics struct {
	delivered, failed, dropped, requeued atomic.Int64
}

func (m *recordingMetrics) RecordDispatcherDelivered(context.Context, float64) { m.delivered.Add(1) }
func (m *recordingMetrics) RecordDispatcherFailed(context.Context)             { m.failed.Add(1) }
func (m *recordingMetrics) RecordDispatcherDropped(context.Context)            { m.dropped.Add(1) }
func (m *recordingMetrics) RecordDispatcherRequeued(context.Context)           { m.requeued.Add(1) }
func (m *recordingMetrics) RecordDispatcherQueueSize(context.Context, int64)   {}

func TestMemoryDispatcher_Metrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ce-Subject") == "bad" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	metrics := &recordingMetrics{}
	d := newTestDispatcher(t, fastConfig(), metrics)

	require.NoError(t, d.Dispatch(testEvent(server.URL)))
	bad := testEvent(server.URL)
	bad.Payload.Subject = "bad"
	require.NoError(t, d.Dispatch(bad))

	testutil.MustWaitForCount(t, &metrics.delivered, 1)
	testutil.MustWaitForCount(t, &metrics.failed, 1)
}

func TestExtractHost(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hooks.example.com:8443", extractHost("https://hooks.example.com:8443/cockpit"))
	assert.Equal(t, "not a url", extractHost("not a url"))
}
