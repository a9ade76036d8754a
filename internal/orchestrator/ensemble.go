package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/telemetry"
)

// SubQuery is one planned unit of sub-agent work (spec.md §4.4 stage 1).
type SubQuery struct {
	Tag        string `json:"tag"`
	Query      string `json:"query"`
	DomainHint string `json:"domainHint,omitempty"`
}

type planResponse struct {
	SubQueries []SubQuery `json:"subQueries"`
}

// SubAgentResult is the structured record produced by one sub-agent task,
// per spec.md §4.4 stage 2: "{sub_query, content, usage, sources}".
type SubAgentResult struct {
	SubQuery SubQuery
	Content  string
	Usage    TokenUsage
	OK       bool
	Error    string
}

// Ensemble runs the research pipeline: plan, bounded fan-out, partial-failure
// tolerant sub-agent execution with cost fallback, streaming synthesis, and
// report persistence.
type Ensemble struct {
	cfg      *config.Config
	st       *store.Store
	log      telemetry.Logger
	metrics  telemetry.Metrics
	primary  ChatClient
	fallback ChatClient // may be nil: no cost-fallback configured
}

// NewEnsemble builds an Ensemble orchestrator. fallback may be nil.
func NewEnsemble(cfg *config.Config, st *store.Store, log telemetry.Logger, metrics telemetry.Metrics, primary, fallback ChatClient) *Ensemble {
	return &Ensemble{cfg: cfg, st: st, log: log, metrics: metrics, primary: primary, fallback: fallback}
}

// Run executes the full pipeline for one job and returns the persisted
// report id and final text. publish is called with each intermediate event
// so the caller (the jobs.Handler wiring this into the job engine) can
// append it to the event journal and fan it out to subscribers.
func (e *Ensemble) Run(ctx context.Context, query string, publish func(store.JobEvent)) (reportID int64, reportText string, err error) {
	subQueries := e.plan(ctx, query)

	executor := NewExecutor(e.cfg.MaxInflightSubAgents())
	results := make([]SubAgentResult, len(subQueries))
	for i, sq := range subQueries {
		i, sq := i, sq
		executor.Submit(ctx, func(taskCtx context.Context) {
			results[i] = e.runSubAgent(taskCtx, sq, publish)
		})
	}
	executor.Shutdown()

	var usage TokenUsage
	var succeeded []SubAgentResult
	for _, r := range results {
		usage.Add(r.Usage)
		if r.OK {
			succeeded = append(succeeded, r)
		}
	}
	usagePayload, _ := json.Marshal(map[string]any{
		"inputTokens": usage.InputTokens, "outputTokens": usage.OutputTokens, "totalTokens": usage.TotalTokens,
	})
	publish(store.JobEvent{EventType: store.EventAgentUsage, Payload: usagePayload})

	if len(succeeded) == 0 {
		return 0, "", errors.New("orchestrator: every sub-agent failed")
	}

	reportText, synthUsage, err := e.synthesize(ctx, query, succeeded, publish)
	if err != nil {
		synthPayload, _ := json.Marshal(map[string]any{"message": err.Error()})
		publish(store.JobEvent{EventType: store.EventSynthesisError, Payload: synthPayload})
		return 0, "", err
	}
	usage.Add(synthUsage)

	metaPayload, _ := json.Marshal(map[string]any{
		"subAgentCount": len(subQueries), "succeeded": len(succeeded),
		"usage": map[string]any{"inputTokens": usage.InputTokens, "outputTokens": usage.OutputTokens, "totalTokens": usage.TotalTokens},
	})
	id, err := e.st.InsertReport(ctx, &store.Report{
		Query:      query,
		Params:     usagePayload,
		ReportText: reportText,
		Metadata:   metaPayload,
	})
	if err != nil {
		return 0, "", fmt.Errorf("persist report: %w", err)
	}
	savedPayload, _ := json.Marshal(map[string]any{"reportId": id})
	publish(store.JobEvent{EventType: store.EventReportSaved, Payload: savedPayload})
	return id, reportText, nil
}

// plan sends the query to the primary model with a planning prompt and
// parses the sub-query list leniently, falling back to a single sub-query
// equal to the original query when parsing fails (spec.md §4.4 stage 1).
func (e *Ensemble) plan(ctx context.Context, query string) []SubQuery {
	fallbackPlan := []SubQuery{{Tag: "general", Query: query}}

	req := Request{
		Messages: []Message{
			{Role: "system", Content: planningSystemPrompt(e.cfg.EnsembleSize)},
			{Role: "user", Content: query},
		},
		MaxTokens: 1024,
	}
	resp, err := e.primary.Complete(ctx, req)
	if err != nil {
		e.log.Warn(ctx, "orchestrator: plan call failed, using single sub-query", "error", err)
		return fallbackPlan
	}
	var parsed planResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil || len(parsed.SubQueries) == 0 {
		e.log.Warn(ctx, "orchestrator: plan response unparseable, using single sub-query")
		return fallbackPlan
	}
	return parsed.SubQueries
}

func planningSystemPrompt(n int) string {
	return fmt.Sprintf(`You are a research planner. Given a user query, break it into up to %d independent
sub-queries that together cover the topic. Respond with JSON only, shaped as
{"subQueries":[{"tag":"...","query":"...","domainHint":"..."}]}.`, n)
}

// extractJSON trims leading/trailing prose around a JSON object, tolerating
// models that wrap their answer in markdown code fences.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// runSubAgent executes one sub-query against the primary model, falling
// back to the fallback model once on a retryable error (spec.md §4.4 stage
// 4), and tolerates failure without aborting the pipeline (stage 3).
func (e *Ensemble) runSubAgent(ctx context.Context, sq SubQuery, publish func(store.JobEvent)) SubAgentResult {
	startPayload, _ := json.Marshal(map[string]any{"tag": sq.Tag, "query": sq.Query})
	publish(store.JobEvent{EventType: store.EventAgentStarted, Payload: startPayload})

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SubAgentTimeout)
	defer cancel()

	req := Request{Messages: []Message{
		{Role: "system", Content: "You are a focused research sub-agent. Answer the sub-query concisely with sourced facts."},
		{Role: "user", Content: sq.Query},
	}, MaxTokens: 2048}

	resp, err := e.primary.Complete(ctx, req)
	if err != nil && isRetryable(err) && e.fallback != nil {
		e.metrics.IncCounter("orchestrator.subagent_fallback", 1, "tag", sq.Tag)
		resp, err = e.fallback.Complete(ctx, req)
	}

	result := SubAgentResult{SubQuery: sq}
	if err != nil {
		result.Error = err.Error()
		completedPayload, _ := json.Marshal(map[string]any{"tag": sq.Tag, "ok": false, "error": result.Error})
		publish(store.JobEvent{EventType: store.EventAgentCompleted, Payload: completedPayload})
		return result
	}
	result.OK = true
	result.Content = resp.Content
	result.Usage = resp.Usage
	completedPayload, _ := json.Marshal(map[string]any{"tag": sq.Tag, "ok": true})
	publish(store.JobEvent{EventType: store.EventAgentCompleted, Payload: completedPayload})
	return result
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded)
}

// synthesize streams the successful sub-agent outputs plus the original
// query to a synthesis model, emitting synthesis_token events as content
// arrives (spec.md §4.4 stage 5).
func (e *Ensemble) synthesize(ctx context.Context, query string, results []SubAgentResult, publish func(store.JobEvent)) (string, TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SynthesisTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Synthesize the following sub-agent findings into one coherent report answering the original query.\n\n")
	sb.WriteString("Original query: " + query + "\n\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", r.SubQuery.Tag, r.Content)
	}

	req := Request{Messages: []Message{
		{Role: "system", Content: "You are a synthesis writer producing a single well-organized research report."},
		{Role: "user", Content: sb.String()},
	}, MaxTokens: 4096}

	streamer, err := e.primary.Stream(ctx, req)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("synthesis stream: %w", err)
	}
	defer streamer.Close()

	var out strings.Builder
	var usage TokenUsage
	for {
		chunk, err := streamer.Recv()
		if err != nil {
			return "", TokenUsage{}, fmt.Errorf("synthesis recv: %w", err)
		}
		if chunk.Delta != "" {
			out.WriteString(chunk.Delta)
			payload, _ := json.Marshal(map[string]any{"delta": chunk.Delta})
			publish(store.JobEvent{EventType: store.EventSynthesisToken, Payload: payload})
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Done {
			break
		}
	}
	return out.String(), usage, nil
}
