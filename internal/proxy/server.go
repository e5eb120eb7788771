package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/veilrpc/veilrpc/internal/alert"
	"github.com/veilrpc/veilrpc/internal/bus"
	"github.com/veilrpc/veilrpc/internal/config"
	"github.com/veilrpc/veilrpc/internal/model"
	"github.com/veilrpc/veilrpc/internal/transport"
)

const (
	// maxRequestSize caps the accepted request body.
	maxRequestSize = 10 << 20 // 10 MiB

	// verdictTimeout bounds how long a forward waits on a reputation
	// verdict. Detectors fail open: a slow verdict never delays the call
	// beyond this.
	verdictTimeout = 250 * time.Millisecond

	// codeRequestBlocked is the JSON-RPC error code for a call refused
	// because its origin is a confirmed phishing domain.
	codeRequestBlocked = -32001

	shutdownTimeout = 5 * time.Second
	probeTimeout    = 5 * time.Second
)

// Server is the relay's HTTP front. It owns the listener, the privacy
// transport, and the per-connection session keys that attribute
// observations to wallet sessions.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	msgBus *bus.Bus
	alerts *alert.Hub
	feed   *alert.OverlayFeed
	stats  *model.ProxyStats

	tr     transport.Transport
	router *Router

	mu       sync.Mutex
	sessions map[string]string // remote address -> session key
	running  bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithBus sets the message bus carrying observations and verdicts.
func WithBus(b *bus.Bus) ServerOption {
	return func(s *Server) { s.msgBus = b }
}

// WithAlerts sets the notification hub.
func WithAlerts(h *alert.Hub) ServerOption {
	return func(s *Server) { s.alerts = h }
}

// WithOverlayFeed exposes the overlay notification buffer at /alerts.
func WithOverlayFeed(f *alert.OverlayFeed) ServerOption {
	return func(s *Server) { s.feed = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTransport overrides transport resolution. Tests use this to
// substitute an instantly connected transport.
func WithTransport(tr transport.Transport) ServerOption {
	return func(s *Server) { s.tr = tr }
}

// NewServer creates a relay server for the given configuration.
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   slog.Default(),
		sessions: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the configuration, brings the privacy transport up,
// and serves until the context is canceled. It blocks for the lifetime
// of the relay.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	if err := s.startTransport(ctx); err != nil {
		return err
	}
	defer func() { _ = s.tr.Stop() }()

	s.stats = model.NewProxyStats(time.Now())
	endpoints := append([]string{s.cfg.PrimaryRPC}, s.cfg.FallbackRPCs...)
	s.router = s.buildRouter(endpoints)

	s.probeUpstreams(ctx, endpoints)

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.ListenAddress, err)
	}

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setRunning(true)
	defer s.setRunning(false)
	s.logger.Info("relay listening",
		"address", ln.Addr().String(),
		"mode", s.tr.Mode().String(),
		"primary", s.cfg.PrimaryRPC,
		"fallbacks", len(s.cfg.FallbackRPCs),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// startTransport resolves and starts the configured route. When the
// route cannot connect and fallback-to-direct is enabled, the relay
// degrades to a direct route with a transport-status notification; the
// user asked to stay online over privacy.
func (s *Server) startTransport(ctx context.Context) error {
	if s.tr == nil {
		s.tr = transport.Resolve(s.cfg.Route(), s.logger)
	}
	err := s.tr.Start(ctx)
	if err == nil {
		return nil
	}
	if !s.cfg.FallbackToDirect || s.tr.Mode() == model.RouteDirect {
		return fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}

	s.logger.Warn("privacy transport failed, falling back to direct route",
		"mode", s.tr.Mode().String(),
		"error", err,
	)
	s.notify(model.Notification{
		Type:    model.NotifyTransportStatus,
		Title:   "Transport Fallback",
		Message: fmt.Sprintf("%s route unavailable, using direct connection", s.tr.Mode()),
	})
	s.tr = transport.NewDirectTransport()
	return s.tr.Start(ctx)
}

// buildRouter constructs the failover router for the given endpoints.
// The commitment interceptor is only installed when a level is
// configured; an empty level means requests pass through untouched and
// no chain runs at all.
func (s *Server) buildRouter(endpoints []string) *Router {
	opts := []RouterOption{
		WithAlertHub(s.alerts),
		WithStats(s.stats),
		WithRouterLogger(s.logger),
	}
	if s.cfg.Commitment != "" {
		opts = append(opts,
			WithRequestChain(NewChain(s.logger, &CommitmentInterceptor{Commitment: s.cfg.Commitment})))
	}
	return NewRouter(endpoints, s.tr, s.hopTimeout(), opts...)
}

// hopTimeout selects the per-endpoint timeout for the active route.
func (s *Server) hopTimeout() time.Duration {
	if s.tr.Mode() == model.RouteDirect {
		return s.cfg.DirectTimeout
	}
	return s.cfg.PrivateTimeout
}

// probeUpstreams checks endpoint reachability concurrently at startup.
// Results are logged only; an endpoint that is down now may be up when
// the first real request arrives.
func (s *Server) probeUpstreams(ctx context.Context, endpoints []string) {
	client := s.tr.HTTPClient(probeTimeout)
	g, gctx := errgroup.WithContext(ctx)
	for _, endpoint := range endpoints {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodHead, endpoint, nil)
			if err != nil {
				return nil
			}
			resp, err := client.Do(req)
			if err != nil {
				s.logger.Warn("upstream probe failed", "endpoint", endpoint, "error", err)
				return nil
			}
			_ = resp.Body.Close()
			s.logger.Debug("upstream reachable", "endpoint", endpoint, "status", resp.StatusCode)
			return nil
		})
	}
	_ = g.Wait()
}

// Handler returns the relay's HTTP handler. Exposed separately from
// Start so tests can drive it without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/newnym", s.handleNewNym)
	mux.HandleFunc("/alerts", s.handleAlerts)
	return withCORS(mux)
}

// withCORS answers preflight requests and marks every response as
// cross-origin readable.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRPC relays a JSON-RPC request through the detection feed and
// the failover router.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		s.writeJSON(w, mustMarshal(model.NewErrorResponse(nil, model.CodeParseError, "Parse error")))
		return
	}

	origin := r.Header.Get("Origin")
	if blocked, verdict := s.checkOrigin(r.Context(), origin); blocked {
		s.notify(model.Notification{
			Type:    model.NotifyRPCBlocked,
			Title:   "RPC Blocked",
			Message: fmt.Sprintf("Blocked request from reported phishing domain %s", verdict.Domain),
		})
		resp := model.NewErrorResponse(requestID(body), codeRequestBlocked,
			"Request blocked: origin is a reported phishing domain")
		s.writeJSON(w, mustMarshal(resp))
		return
	}

	s.observe(r.RemoteAddr, origin, body)

	s.writeJSON(w, s.router.Forward(r.Context(), body, r.Header))
}

// checkOrigin asks the reputation engine for a verdict on the request
// origin. Only a confirmed phishing verdict blocks; everything else,
// including a missing engine or a slow reply, fails open.
func (s *Server) checkOrigin(ctx context.Context, origin string) (bool, model.DomainVerdict) {
	if origin == "" || s.msgBus == nil {
		return false, model.DomainVerdict{}
	}
	vctx, cancel := context.WithTimeout(ctx, verdictTimeout)
	defer cancel()

	reply, err := s.msgBus.Request(vctx, bus.TopicVerdictCheck, bus.DomainAction{Domain: origin})
	if err != nil {
		return false, model.DomainVerdict{}
	}
	verdict, ok := reply.(model.DomainVerdict)
	if !ok {
		return false, model.DomainVerdict{}
	}
	return verdict.IsPhishing && verdict.Confidence == model.ConfidenceConfirmed, verdict
}

// observe records request counters and publishes one observation per
// envelope for the drainer analyzer.
func (s *Server) observe(remoteAddr, origin string, body []byte) {
	now := time.Now()
	key := s.sessionKey(remoteAddr)

	publish := func(method string) {
		if s.stats != nil {
			s.stats.RecordRequest(method, now)
		}
		if s.msgBus != nil && method != "" {
			s.msgBus.Publish(bus.TopicObservation, bus.Observation{
				SessionKey: key,
				Method:     method,
				Origin:     origin,
				At:         now,
			})
		}
	}

	if model.IsBatch(body) {
		for _, entry := range gjson.ParseBytes(body).Array() {
			publish(entry.Get("method").String())
		}
		return
	}
	publish(gjson.GetBytes(body, "method").String())
}

// sessionKey returns the stable key for a client connection, minting
// one on first sight. Keys are random so a session cannot be forged by
// guessing an address.
func (s *Server) sessionKey(remoteAddr string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.sessions[remoteAddr]; ok {
		return key
	}
	key := uuid.NewString()
	s.sessions[remoteAddr] = key
	return key
}

// handleHealth reports liveness only; it says nothing about upstream
// reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, []byte(`{"status":"ok","proxy":"running"}`))
}

// statusResponse is the /status payload.
type statusResponse struct {
	Running      bool   `json:"running"`
	Mode         string `json:"mode"`
	PrimaryRPC   string `json:"primaryRpc"`
	TorEnabled   bool   `json:"torEnabled"`
	TorConnected bool   `json:"torConnected"`
	TorIP        string `json:"torIp,omitempty"`
}

// handleStatus reports the relay's operational state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mode := s.tr.Mode()
	torEnabled := mode == model.RouteTor || mode == model.RouteTorOverVPN
	resp := statusResponse{
		Running:      s.isRunning(),
		Mode:         mode.String(),
		PrimaryRPC:   s.cfg.PrimaryRPC,
		TorEnabled:   torEnabled,
		TorConnected: torEnabled && s.tr.State() == model.StateConnected,
	}
	if rotator, ok := s.tr.(transport.CircuitRotator); ok {
		resp.TorIP = rotator.ExitAddress()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, data)
}

// handleAlerts serves the buffered overlay notifications, oldest first.
// The overlay polls this instead of holding a push channel open.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := []model.Notification{}
	if s.feed != nil {
		entries = s.feed.Recent()
	}
	data, err := json.Marshal(entries)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, data)
}

// handleNewNym requests a fresh Tor circuit. Rotation is always an
// explicit user action, never automatic.
func (s *Server) handleNewNym(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rotator, ok := s.tr.(transport.CircuitRotator)
	if !ok {
		http.Error(w, "circuit rotation requires a tor route", http.StatusConflict)
		return
	}
	if err := rotator.NewCircuit(); err != nil {
		s.logger.Warn("circuit rotation failed", "error", err)
		http.Error(w, "circuit rotation failed", http.StatusServiceUnavailable)
		return
	}
	s.notify(model.Notification{
		Type:    model.NotifyTransportStatus,
		Title:   "New Circuit",
		Message: "Tor circuit rotated",
	})
	s.writeJSON(w, []byte(`{"status":"ok","rotated":true}`))
}

func (s *Server) writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) notify(n model.Notification) {
	if s.alerts == nil {
		return
	}
	s.alerts.Notify(n)
}

func (s *Server) setRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// requestID extracts the raw id from a single envelope for error
// synthesis; batches and malformed bodies yield nil (serialized null).
func requestID(body []byte) json.RawMessage {
	if model.IsBatch(body) {
		return nil
	}
	if raw := gjson.GetBytes(body, "id"); raw.Exists() {
		return json.RawMessage(raw.Raw)
	}
	return nil
}
