// Command researchmcp runs the research-engine MCP server: an ensemble
// research orchestrator, hybrid retrieval core, and async job engine
// exposed over stdio, streamable HTTP, WebSocket, and legacy SSE, per
// spec.md §4.1 and §6.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/jobs"
	"github.com/oss-mcp/research-engine/internal/orchestrator"
	"github.com/oss-mcp/research-engine/internal/server"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
	"goa.design/clue/log"
)

func main() {
	var (
		stdioF = flag.Bool("stdio", false, "speak JSON-RPC over stdin/stdout instead of serving HTTP")
		setupF = flag.String("setup", "", "write an MCP client config snippet for the named client and exit")
		debugF = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() && !*stdioF {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *debugF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics("researchmcp")

	if *setupF != "" {
		if err := writeClientSetup(*setupF, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "setup:", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	primary, fallback, err := buildChatClients(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "chat clients:", err)
		os.Exit(1)
	}

	sc, err = server.New(ctx, cfg, logger, metrics, primary, fallback, buildRegistry())
	if err != nil {
		fmt.Fprintln(os.Stderr, "server init:", err)
		os.Exit(1)
	}
	defer sc.Close()

	if err := registerTools(sc); err != nil {
		fmt.Fprintln(os.Stderr, "tool registration:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if *stdioF {
		go func() {
			sc.Jobs.Run(ctx)
		}()
		go func() {
			sc.Sessions.Run(ctx, cfg.SessionCleanupInterval)
		}()
		if err := sc.Mux.RunStdio(ctx, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "stdio:", err)
			os.Exit(1)
		}
		return
	}

	errc := make(chan error, 1)
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-sigc)
	}()
	go func() {
		errc <- sc.Run(ctx)
	}()

	logger.Info(ctx, "exiting", "reason", <-errc)
	cancel()
}

// buildRegistry wires the async job handlers: "research" runs the ensemble
// pipeline and "follow_up" answers a question against an existing report,
// both closing over the *server.Context built by main once it exists. The
// registry is needed before the Context exists (jobs.Registry is an input
// to server.New), so each handler resolves sc lazily via the package-level
// pointer main sets once New returns.
func buildRegistry() jobs.Registry {
	return jobs.Registry{
		"research": func(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error) {
			return researchHandler(ctx, job, publish)
		},
		"follow_up": func(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error) {
			return followUpHandler(ctx, job, publish)
		},
	}
}

// sc is set once by main after server.New returns, before the job engine's
// worker pool starts; job handlers close over it via the indirection above
// since jobs.Registry must exist before the Context that owns it does.
var sc *server.Context

func researchHandler(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return nil, fmt.Errorf("research: decoding params: %w", err)
	}

	reportID, reportText, err := sc.Ensemble.Run(ctx, params.Query, publish)
	if err != nil {
		return nil, err
	}
	if err := indexAndEmbedReport(ctx, sc, reportID, params.Query, reportText); err != nil {
		sc.Log.Warn(ctx, "research job: post-synthesis indexing failed", "report_id", reportID, "error", err)
	}
	return json.Marshal(map[string]any{"reportId": reportID, "reportText": reportText})
}

func followUpHandler(ctx context.Context, job *store.Job, publish func(store.JobEvent)) ([]byte, error) {
	var params struct {
		ReportID int64  `json:"reportId"`
		Question string `json:"question"`
	}
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return nil, fmt.Errorf("follow_up: decoding params: %w", err)
	}
	answer, newID, err := followUpCore(ctx, sc, params.ReportID, params.Question)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"reportId": newID, "answer": answer})
}

// buildChatClients constructs the primary/fallback ChatClient pair from
// whichever provider API keys are configured. Anthropic is preferred as
// primary per spec.md §4.4's cost-fallback framing ("a cheaper model");
// OpenAI, when also configured, serves as the fallback. The fallback may be
// nil (Ensemble tolerates that); a missing primary is an error, so startup
// fails when neither provider key is set.
func buildChatClients(cfg *config.Config) (primary, fallback orchestrator.ChatClient, err error) {
	if cfg.AnthropicAPIKey != "" {
		primary, err = orchestrator.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, 4096)
		if err != nil {
			return nil, nil, err
		}
	}
	if cfg.OpenAIAPIKey != "" {
		oa, oaErr := orchestrator.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if oaErr != nil {
			return nil, nil, oaErr
		}
		if primary == nil {
			primary = oa
		} else {
			fallback = oa
		}
	}
	if primary == nil {
		return nil, nil, fmt.Errorf("no chat provider configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}
	return primary, fallback, nil
}

