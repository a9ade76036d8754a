package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/dispatch"
	"github.com/oss-mcp/research-engine/internal/idempotency"
	"github.com/oss-mcp/research-engine/internal/jobs"
	"github.com/oss-mcp/research-engine/internal/retrieval"
	"github.com/oss-mcp/research-engine/internal/session"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
)

// Mux assembles every transport surface (streamable HTTP, WebSocket,
// legacy SSE, and the discovery/health/metrics side-channels) behind one
// chi router, grounded on sagasu's internal/server/server.go Start method:
// the same middleware stack (Logger, Recoverer, Timeout, Compress) and
// explicit route-by-route registration style, generalized from Sagasu's
// fixed /api/v1 surface to this server's MCP method table.
type Mux struct {
	cfg         *config.Config
	sessions    *session.Manager
	dispatcher  *dispatch.Dispatcher
	jobs        *jobs.Engine
	broadcaster jobs.Broadcaster
	store       *store.Store
	embedder    retrieval.Embedder
	idempotency *idempotency.Cache
	log         telemetry.Logger
	metrics     telemetry.Metrics
	rpc         *RPCHandler
	auth        *Authenticator
	limiter     *RateLimiter
	sseConns    *sseRegistry

	server *http.Server
}

// Deps bundles the constructor dependencies for NewMux, mirroring sagasu's
// long positional NewServer argument list but named, since this server
// wires an order of magnitude more collaborators.
type Deps struct {
	Config      *config.Config
	Sessions    *session.Manager
	Dispatcher  *dispatch.Dispatcher
	Jobs        *jobs.Engine
	Broadcaster jobs.Broadcaster
	Store       *store.Store
	Embedder    retrieval.Embedder
	Idempotency *idempotency.Cache
	Log         telemetry.Logger
	Metrics     telemetry.Metrics
}

// NewMux wires the RPC method table, authenticator, and rate limiter, then
// builds the chi router.
func NewMux(d Deps) *Mux {
	m := &Mux{
		cfg:         d.Config,
		sessions:    d.Sessions,
		dispatcher:  d.Dispatcher,
		jobs:        d.Jobs,
		broadcaster: d.Broadcaster,
		store:       d.Store,
		embedder:    d.Embedder,
		idempotency: d.Idempotency,
		log:         d.Log,
		metrics:     d.Metrics,
		rpc:         NewRPCHandler(d.Config, d.Dispatcher, d.Sessions, d.Store, d.Log),
		auth:        NewAuthenticator(d.Config),
		limiter:     NewRateLimiter(d.Config.RateLimitMaxReqs),
		sseConns:    newSSERegistry(),
	}
	return m
}

// Handler builds the chi router. Split from NewMux so tests can construct
// a Mux and mount only the router, without starting a listener.
func (m *Mux) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(m.limiter.Middleware)

	r.Get("/health", m.handleHealth)
	r.Get("/about", m.handleAbout)
	r.Get("/.well-known/mcp-server", m.handleWellKnownServer)
	r.Get("/.well-known/oauth-protected-resource", m.handleWellKnownOAuth)

	// Request/response routes get a hard timeout; the streaming routes below
	// (WebSocket, both SSE variants) are intentionally excluded since a
	// research job can legitimately run far longer than any fixed timeout.
	r.Group(func(bounded chi.Router) {
		bounded.Use(m.auth.Middleware)
		bounded.Use(middleware.Timeout(5 * time.Minute))
		bounded.Post("/mcp", m.handleMCP)
		bounded.Post("/messages", m.handleSSEMessage)
		bounded.Post("/messages/{connectionId}", m.handleSSEMessage)
		bounded.Post("/jobs", m.handleJobSubmit)
		bounded.Get("/jobs/{id}", m.handleJobGet)
		bounded.Post("/jobs/{id}/cancel", m.handleJobCancel)
		bounded.Get("/metrics", m.handleMetrics)
	})

	r.Group(func(streaming chi.Router) {
		streaming.Use(m.auth.Middleware)
		streaming.Get("/mcp/ws", m.handleWebSocket)
		streaming.Get("/sse", m.handleSSEConnect)
		streaming.Get("/jobs/{id}/events", m.handleJobEvents)
	})

	return r
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// gracefully shuts down, per the teacher's Server.Start/Stop split.
func (m *Mux) Run(ctx context.Context) error {
	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.cfg.ServerPort),
		Handler: m.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		m.log.Info(ctx, "transport listening", "addr", m.server.Addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	}
}
