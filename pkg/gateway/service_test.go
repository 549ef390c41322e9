package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"mediarelay/pkg/channel"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/config"
)

type stubTransport struct {
	running atomic.Bool
}

func (t *stubTransport) Name() string              { return "telegram" }
func (t *stubTransport) Messenger() chat.Messenger { return nil }
func (t *stubTransport) Running() bool             { return t.running.Load() }

func (t *stubTransport) Run(ctx context.Context, _ channel.Handler) error {
	t.running.Store(true)
	<-ctx.Done()
	t.running.Store(false)
	return nil
}

type stubWebhookTransport struct {
	stubTransport
	hits atomic.Int32
}

func (t *stubWebhookTransport) Webhook(c echo.Context) error {
	t.hits.Add(1)
	return c.NoContent(http.StatusOK)
}

type toggledStore struct {
	mu  sync.Mutex
	err error
}

func (s *toggledStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *toggledStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func noopHandler(context.Context, channel.Update) {}

func TestIsReady(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	transport.running.Store(true)
	svc := &Service{transport: transport}
	if svc.isReady() {
		t.Fatal("expected not ready without store health")
	}

	svc.storeLastOKAt = time.Now().UTC()
	if !svc.isReady() {
		t.Fatal("expected ready with running channel and healthy store")
	}

	svc.storeLastErr = "boom"
	if svc.isReady() {
		t.Fatal("expected not ready when store has error")
	}

	svc.storeLastErr = ""
	transport.running.Store(false)
	if svc.isReady() {
		t.Fatal("expected not ready when transport stopped")
	}
}

func TestNewServiceRequiresWebhookTransport(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Telegram: config.TelegramConfig{Mode: config.ModeWebhook, WebhookPath: "/hook"}}
	_, err := NewService(cfg, &stubTransport{}, noopHandler, &toggledStore{}, nil)
	require.Error(t, err)

	svc, err := NewService(cfg, &stubWebhookTransport{}, noopHandler, &toggledStore{}, nil)
	require.NoError(t, err)
	require.Equal(t, "/hook", svc.webhookPath)
}

func TestNewServiceValidatesArguments(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	_, err := NewService(nil, &stubTransport{}, noopHandler, &toggledStore{}, nil)
	require.Error(t, err)
	_, err = NewService(cfg, nil, noopHandler, &toggledStore{}, nil)
	require.Error(t, err)
	_, err = NewService(cfg, &stubTransport{}, nil, &toggledStore{}, nil)
	require.Error(t, err)
	_, err = NewService(cfg, &stubTransport{}, noopHandler, nil, nil)
	require.Error(t, err)
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	transport := &stubWebhookTransport{}
	cfg := &config.Config{Telegram: config.TelegramConfig{Mode: config.ModeWebhook, WebhookPath: "/hook"}}
	svc, err := NewService(cfg, transport, noopHandler, &toggledStore{}, nil)
	require.NoError(t, err)
	e := svc.routes()

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader("{}")))
		return rec
	}

	health := serve(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, health.Code)
	require.Contains(t, health.Body.String(), `"status":"ok"`)

	ready := serve(http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, ready.Code)
	require.Contains(t, ready.Body.String(), `"not_ready"`)

	require.Equal(t, http.StatusOK, serve(http.MethodPost, "/hook").Code)
	require.Equal(t, int32(1), transport.hits.Load())
}

func TestPollingModeHasNoWebhookRoute(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&config.Config{}, &stubWebhookTransport{}, noopHandler, &toggledStore{}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	svc.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckStoreHealth(t *testing.T) {
	t.Parallel()

	store := &toggledStore{}
	svc := &Service{store: store, transport: &stubTransport{}}

	require.NoError(t, svc.checkStoreHealth(context.Background()))
	require.False(t, svc.storeLastOKAt.IsZero())

	store.setErr(errors.New("connection refused"))
	require.Error(t, svc.checkStoreHealth(context.Background()))
	require.Equal(t, "connection refused", svc.currentStatus("x").StoreLastErr)
}

// drainingTransport keeps working for a while after its context is cancelled, the way the
// Telegram adapter waits for in-flight handlers.
type drainingTransport struct {
	stubTransport
	drainFor time.Duration
	release  chan struct{}
	drained  atomic.Bool
}

func (t *drainingTransport) Run(ctx context.Context, _ channel.Handler) error {
	t.running.Store(true)
	<-ctx.Done()
	t.running.Store(false)

	if t.release != nil {
		<-t.release
	} else {
		time.Sleep(t.drainFor)
	}
	t.drained.Store(true)
	return nil
}

func TestServiceRunWaitsForTransportDrain(t *testing.T) {
	transport := &drainingTransport{drainFor: 300 * time.Millisecond}
	cfg := &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)}}
	svc, err := NewService(cfg, transport, noopHandler, &toggledStore{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	require.Eventually(t, transport.Running, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service run did not return")
	}
	require.True(t, transport.drained.Load(), "Run returned before the transport drained")
}

func TestServiceRunGivesUpAfterShutdownTimeout(t *testing.T) {
	transport := &drainingTransport{release: make(chan struct{})}
	t.Cleanup(func() { close(transport.release) })

	cfg := &config.Config{Gateway: config.GatewayConfig{
		Host:                   "127.0.0.1",
		Port:                   freeTCPPort(t),
		ShutdownTimeoutSeconds: 1,
	}}
	svc, err := NewService(cfg, transport, noopHandler, &toggledStore{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	require.Eventually(t, transport.Running, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("service run ignored the shutdown timeout")
	}
	require.False(t, transport.drained.Load())
}
