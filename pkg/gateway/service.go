package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"mediarelay/pkg/channel"
	"mediarelay/pkg/config"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	storeProbeInterval = 30 * time.Second
	storeProbeTimeout  = 5 * time.Second

	defaultShutdownTimeout = 30 * time.Second
)

// Transport is the chat transport run by the service.
type Transport interface {
	channel.Adapter
	Running() bool
}

// WebhookTransport is a Transport that also accepts webhook deliveries.
type WebhookTransport interface {
	Transport
	Webhook(c echo.Context) error
}

// Pinger is the readiness probe of the key-value store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	gateway     config.GatewayConfig
	webhookPath string
	transport   Transport
	handler     channel.Handler
	store       Pinger
	log         *slog.Logger

	mu              sync.RWMutex
	startedAt       time.Time
	storeLastOKAt   time.Time
	storeLastErr    string
	transportErrMsg string
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	StoreLastOKAt string                  `json:"store_last_ok_at,omitempty"`
	StoreLastErr  string                  `json:"store_last_error,omitempty"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService wires the transport, the update handler and the store probe. In webhook mode
// the transport must accept webhook deliveries.
func NewService(cfg *config.Config, transport Transport, handler channel.Handler, store Pinger, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if log == nil {
		log = slog.Default()
	}

	svc := &Service{
		gateway:   cfg.Gateway,
		transport: transport,
		handler:   handler,
		store:     store,
		log:       log.With("component", "gateway.service"),
	}

	if cfg.Telegram.Mode == config.ModeWebhook {
		if _, ok := transport.(WebhookTransport); !ok {
			return nil, fmt.Errorf("%s transport does not accept webhooks", transport.Name())
		}
		svc.webhookPath = cfg.Telegram.WebhookPath
	}

	return svc, nil
}

// Run serves the status endpoints and the transport until ctx is done. On shutdown it waits
// for the transport to drain in-flight updates, bounded by the gateway shutdown timeout.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkStoreHealth(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErrors := make(chan error, 1)
	go s.runStatusServer(runCtx, serverErrors)

	ticker := time.NewTicker(storeProbeInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				_ = s.checkStoreHealth(runCtx)
			}
		}
	}()

	transportDone := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		defer close(transportDone)
		err := s.transport.Run(runCtx, s.handler)
		s.setTransportError(err)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("run %s channel: %w", s.transport.Name(), err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	cancel()
	if err := s.awaitTransport(transportDone); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// awaitTransport blocks until the transport returns or the shutdown timeout passes.
func (s *Service) awaitTransport(done <-chan struct{}) error {
	timeout := s.gateway.ShutdownTimeout()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		s.log.Warn("Transport still draining at shutdown timeout", "timeout", timeout)
		return fmt.Errorf("drain %s channel: %w", s.transport.Name(), context.DeadlineExceeded)
	}
}

func (s *Service) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", s.handleHealth)
	e.GET("/readyz", s.handleReady)
	if s.webhookPath != "" {
		if wt, ok := s.transport.(WebhookTransport); ok {
			e.POST(s.webhookPath, wt.Webhook)
		}
	}

	return e
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	e := s.routes()
	e.Server.ReadHeaderTimeout = 5 * time.Second

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr, "webhook_path", s.webhookPath)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(c echo.Context) error {
	if !s.isReady() {
		return c.JSON(http.StatusServiceUnavailable, s.currentStatus("not_ready"))
	}
	return c.JSON(http.StatusOK, s.currentStatus("ready"))
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	storeLastOK := ""
	if !s.storeLastOKAt.IsZero() {
		storeLastOK = s.storeLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		StoreLastOKAt: storeLastOK,
		StoreLastErr:  s.storeLastErr,
		Channels: map[string]channelState{
			s.transport.Name(): {Running: s.transport.Running(), Error: s.transportErrMsg},
		},
	}
}

func (s *Service) isReady() bool {
	if !s.transport.Running() {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.storeLastOKAt.IsZero() {
		return false
	}

	return s.storeLastErr == ""
}

func (s *Service) checkStoreHealth(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
	defer cancel()

	if err := s.store.Ping(probeCtx); err != nil {
		s.mu.Lock()
		s.storeLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("store health check failed: %w", err)
	}

	s.mu.Lock()
	s.storeLastErr = ""
	s.storeLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setTransportError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportErrMsg = errorString(err)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
