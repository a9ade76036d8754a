// Package server assembles every subsystem (store, sessions, jobs,
// orchestrator, retrieval, dispatch, transport) into one running process
// and owns the background goroutines that keep it alive, following the
// same "one ServerContext threaded everywhere, no package-level globals"
// shape internal/config's doc comment describes for configuration.
package server

import (
	"context"
	"fmt"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/dispatch"
	"github.com/oss-mcp/research-engine/internal/idempotency"
	"github.com/oss-mcp/research-engine/internal/jobs"
	"github.com/oss-mcp/research-engine/internal/orchestrator"
	"github.com/oss-mcp/research-engine/internal/retrieval"
	"github.com/oss-mcp/research-engine/internal/session"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
	"github.com/oss-mcp/research-engine/internal/transport"
)

// Context bundles every long-lived collaborator the server needs, built
// once at boot by New and handed to cmd/researchmcp/main.go for tool
// registration.
type Context struct {
	Config      *config.Config
	Store       *store.Store
	Sessions    *session.Manager
	Broadcaster jobs.Broadcaster
	Jobs        *jobs.Engine
	Ensemble    *orchestrator.Ensemble
	Primary     orchestrator.ChatClient
	Fallback    orchestrator.ChatClient
	Embedder    retrieval.Embedder
	Idempotency *idempotency.Cache
	Dispatcher  *dispatch.Dispatcher
	Mux         *transport.Mux
	Log         telemetry.Logger
	Metrics     telemetry.Metrics
}

// New wires every collaborator from cfg. registry must already contain the
// job-type handlers the caller intends to run (built by the caller since
// job handlers close over the Ensemble and Embedder constructed here).
func New(ctx context.Context, cfg *config.Config, log telemetry.Logger, metrics telemetry.Metrics, primary, fallback orchestrator.ChatClient, registry jobs.Registry) (*Context, error) {
	st, err := store.Open(ctx, cfg.DBPath, cfg.EmbeddingsDimension)
	if err != nil {
		return nil, fmt.Errorf("server: opening store: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	idemCache, err := idempotency.NewCache(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("server: building idempotency cache: %w", err)
	}

	sessions := session.NewManager(st, cfg.SessionTimeout)
	bcast := jobs.NewChannelBroadcaster(64)
	engine := jobs.New(st, cfg, log, metrics, bcast, registry)
	ensemble := orchestrator.NewEnsemble(cfg, st, log, metrics, primary, fallback)
	dispatcher := dispatch.New(cfg.Mode)

	mux := transport.NewMux(transport.Deps{
		Config:      cfg,
		Sessions:    sessions,
		Dispatcher:  dispatcher,
		Jobs:        engine,
		Broadcaster: bcast,
		Store:       st,
		Embedder:    embedder,
		Idempotency: idemCache,
		Log:         log,
		Metrics:     metrics,
	})

	return &Context{
		Config:      cfg,
		Store:       st,
		Sessions:    sessions,
		Broadcaster: bcast,
		Jobs:        engine,
		Ensemble:    ensemble,
		Primary:     primary,
		Fallback:    fallback,
		Embedder:    embedder,
		Idempotency: idemCache,
		Dispatcher:  dispatcher,
		Mux:         mux,
		Log:         log,
		Metrics:     metrics,
	}, nil
}

// buildEmbedder selects the Embedder implementation per
// EMBEDDINGS_PROVIDER, defaulting to the dependency-free LocalEmbedder.
func buildEmbedder(cfg *config.Config) (retrieval.Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "openai":
		return retrieval.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingsModel)
	default:
		return retrieval.NewLocalEmbedder(cfg.EmbeddingsDimension), nil
	}
}
