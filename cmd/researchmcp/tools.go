package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oss-mcp/research-engine/internal/dispatch"
	"github.com/oss-mcp/research-engine/internal/idempotency"
	"github.com/oss-mcp/research-engine/internal/jobs"
	"github.com/oss-mcp/research-engine/internal/orchestrator"
	"github.com/oss-mcp/research-engine/internal/retrieval"
	"github.com/oss-mcp/research-engine/internal/server"
	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/oss-mcp/research-engine/internal/webfetch"
)

// registerTools binds every tool in dispatch's catalog to a handler closing
// over sc's collaborators, per spec.md §4.2's 40+-tool manual surface. Split
// from main so the wiring step reads as one flat list rather than being
// buried inside startup plumbing.
func registerTools(sc *server.Context) error {
	reg := func(name string, cat dispatch.Category, schema string, h dispatch.Handler) error {
		return sc.Dispatcher.Register(dispatch.Tool{Name: name, Category: cat, Schema: []byte(schema)}, h)
	}

	policy := idempotency.Policy{
		Window:     time.Duration(sc.Config.IdempotencyRetryWindowSeconds) * time.Second,
		MaxRetries: sc.Config.IdempotencyMaxRetries,
	}

	if err := sc.Dispatcher.Register(dispatch.Tool{
		Name:     "agent",
		Category: dispatch.CategoryMisc,
		Schema:   []byte(`{"type":"object","properties":{"action":{"type":"string"}},"required":["action"]}`),
	}, sc.Dispatcher.AgentRouter); err != nil {
		return err
	}

	if err := reg("ping", dispatch.CategoryMisc, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"pong": true}, nil
	}); err != nil {
		return err
	}

	if err := reg("get_server_status", dispatch.CategoryMisc, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		stats, err := sc.Store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"mode": sc.Config.Mode, "stats": stats}, nil
	}); err != nil {
		return err
	}

	jobStatusHandler := func(ctx context.Context, args map[string]any) (any, error) {
		id, _ := args["id"].(string)
		job, err := sc.Store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	idSchema := `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`
	if err := reg("job_status", dispatch.CategoryJob, idSchema, jobStatusHandler); err != nil {
		return err
	}
	if err := reg("get_job_status", dispatch.CategoryJob, idSchema, jobStatusHandler); err != nil {
		return err
	}

	if err := reg("cancel_job", dispatch.CategoryJob, idSchema, func(ctx context.Context, args map[string]any) (any, error) {
		id, _ := args["id"].(string)
		canceled, err := sc.Jobs.Cancel(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"canceled": canceled}, nil
	}); err != nil {
		return err
	}

	if err := reg("list_jobs", dispatch.CategoryJob, `{"type":"object","properties":{"status":{"type":"string"},"limit":{"type":"integer"}}}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			status, _ := args["status"].(string)
			limit := intArg(args, "limit", 50)
			return sc.Store.ListJobs(ctx, store.JobStatus(status), limit)
		}); err != nil {
		return err
	}

	if err := reg("job_events", dispatch.CategoryJob, `{"type":"object","properties":{"id":{"type":"string"},"sinceEventId":{"type":"integer"}},"required":["id"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			id, _ := args["id"].(string)
			since := int64(intArg(args, "sinceEventId", 0))
			return sc.Store.EventsSince(ctx, id, since, 500)
		}); err != nil {
		return err
	}

	if err := reg("research", dispatch.CategoryResearch,
		`{"type":"object","properties":{"query":{"type":"string"},"costPreference":{"type":"string"},"async":{"type":"boolean"},"idempotencyKey":{"type":"string"},"forceNew":{"type":"boolean"}},"required":["query"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if boolArg(args, "async", true) {
				return submitResearchJob(ctx, sc, policy, query, args)
			}
			reportID, reportText, err := sc.Ensemble.Run(ctx, query, func(store.JobEvent) {})
			if err != nil {
				return nil, err
			}
			if err := indexAndEmbedReport(ctx, sc, reportID, query, reportText); err != nil {
				sc.Log.Warn(ctx, "research: post-synthesis indexing failed", "report_id", reportID, "error", err)
			}
			return map[string]any{"reportId": reportID, "reportText": reportText}, nil
		}); err != nil {
		return err
	}

	if err := reg("retrieve", dispatch.CategorySearch,
		`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"},"scope":{"type":"string"}},"required":["query"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			limit := intArg(args, "limit", 10)
			return retrieval.Retrieve(ctx, sc.Store, sc.Embedder, query, limit)
		}); err != nil {
		return err
	}

	if err := reg("follow_up", dispatch.CategoryResearch,
		`{"type":"object","properties":{"reportId":{"type":"integer"},"question":{"type":"string"},"async":{"type":"boolean"}},"required":["reportId","question"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			if boolArg(args, "async", true) {
				return submitFollowUpJob(ctx, sc, policy, args)
			}
			return runFollowUp(ctx, sc, args)
		}); err != nil {
		return err
	}

	if err := reg("graph_query", dispatch.CategoryGraph,
		`{"type":"object","properties":{"node":{"type":"string"},"maxHops":{"type":"integer"}},"required":["node"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			node, _ := args["node"].(string)
			maxHops := intArg(args, "maxHops", 2)
			matches, err := retrieval.ExpandGraph(ctx, sc.Store, node, maxHops)
			if err != nil {
				return nil, err
			}
			return map[string]any{"matches": matches}, nil
		}); err != nil {
		return err
	}

	reportIDSchema := `{"type":"object","properties":{"id":{"type":"integer"}},"required":["id"]}`
	if err := reg("get_report", dispatch.CategoryReport, reportIDSchema, func(ctx context.Context, args map[string]any) (any, error) {
		id := int64FromArg(args, "id")
		return sc.Store.GetReport(ctx, id)
	}); err != nil {
		return err
	}

	if err := reg("rate_report", dispatch.CategoryReport,
		`{"type":"object","properties":{"id":{"type":"integer"},"rating":{"type":"integer"}},"required":["id","rating"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			id := int64FromArg(args, "id")
			rating := intArg(args, "rating", 0)
			if err := sc.Store.RateReport(ctx, id, rating); err != nil {
				return nil, err
			}
			return map[string]any{"id": id, "rating": rating}, nil
		}); err != nil {
		return err
	}

	if err := reg("delete_report", dispatch.CategoryReport, reportIDSchema, func(ctx context.Context, args map[string]any) (any, error) {
		id := int64FromArg(args, "id")
		if err := sc.Store.DeleteReport(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": true}, nil
	}); err != nil {
		return err
	}

	if err := reg("list_reports", dispatch.CategoryReport, `{"type":"object","properties":{"limit":{"type":"integer"}}}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			return sc.Store.ListReports(ctx, intArg(args, "limit", 20))
		}); err != nil {
		return err
	}

	if err := reg("export_report", dispatch.CategoryReport,
		`{"type":"object","properties":{"id":{"type":"integer"},"format":{"type":"string"}},"required":["id"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			id := int64FromArg(args, "id")
			format, _ := args["format"].(string)
			report, err := sc.Store.GetReport(ctx, id)
			if err != nil {
				return nil, err
			}
			return exportReport(report, format), nil
		}); err != nil {
		return err
	}

	if err := reg("kb_search", dispatch.CategorySearch,
		`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			candidates, err := retrieval.BM25(ctx, sc.Store, query)
			if err != nil {
				return nil, err
			}
			if limit := intArg(args, "limit", 10); limit > 0 && limit < len(candidates) {
				candidates = candidates[:limit]
			}
			return candidates, nil
		}); err != nil {
		return err
	}

	if err := reg("kb_index_document", dispatch.CategoryKB,
		`{"type":"object","properties":{"id":{"type":"string"},"title":{"type":"string"},"content":{"type":"string"}},"required":["id","content"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			id, _ := args["id"].(string)
			title, _ := args["title"].(string)
			content, _ := args["content"].(string)
			if err := indexDocument(ctx, sc.Store, id, title, content); err != nil {
				return nil, err
			}
			return map[string]any{"id": id, "indexed": true}, nil
		}); err != nil {
		return err
	}

	if err := reg("kb_delete_document", dispatch.CategoryKB, `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			id, _ := args["id"].(string)
			if err := sc.Store.DeleteDocument(ctx, id); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": true}, nil
		}); err != nil {
		return err
	}

	if err := reg("kb_list_documents", dispatch.CategoryKB, `{"type":"object","properties":{"limit":{"type":"integer"}}}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			return sc.Store.ListDocuments(ctx, intArg(args, "limit", 50))
		}); err != nil {
		return err
	}

	if err := reg("kb_reindex", dispatch.CategoryKB, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		return reindexAllDocuments(ctx, sc.Store)
	}); err != nil {
		return err
	}

	if err := reg("graph_upsert_node", dispatch.CategoryGraph,
		`{"type":"object","properties":{"type":{"type":"string"},"name":{"type":"string"}},"required":["type","name"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			nodeType, _ := args["type"].(string)
			name, _ := args["name"].(string)
			id, err := sc.Store.UpsertNode(ctx, nodeType, name, nil)
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": id}, nil
		}); err != nil {
		return err
	}

	if err := reg("graph_upsert_edge", dispatch.CategoryGraph,
		`{"type":"object","properties":{"sourceId":{"type":"integer"},"targetId":{"type":"integer"},"relation":{"type":"string"},"weight":{"type":"number"},"confidence":{"type":"number"}},"required":["sourceId","targetId","relation"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			src := int64FromArg(args, "sourceId")
			tgt := int64FromArg(args, "targetId")
			relation, _ := args["relation"].(string)
			weight := floatArg(args, "weight", 1.0)
			confidence := floatArg(args, "confidence", 1.0)
			if err := sc.Store.UpsertEdge(ctx, src, tgt, relation, weight, confidence, nil); err != nil {
				return nil, err
			}
			return map[string]any{"ok": true}, nil
		}); err != nil {
		return err
	}

	if err := reg("graph_neighbors", dispatch.CategoryGraph, `{"type":"object","properties":{"node":{"type":"string"}},"required":["node"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			name, _ := args["node"].(string)
			n, err := sc.Store.FindNodeByName(ctx, name)
			if err != nil {
				return nil, err
			}
			return sc.Store.Neighbors(ctx, n.ID)
		}); err != nil {
		return err
	}

	if err := reg("graph_find_node", dispatch.CategoryGraph, `{"type":"object","properties":{"node":{"type":"string"}},"required":["node"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			name, _ := args["node"].(string)
			return sc.Store.FindNodeByName(ctx, name)
		}); err != nil {
		return err
	}

	if err := reg("graph_stats", dispatch.CategoryGraph, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		nodes, edges, err := sc.Store.GraphStats(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"nodes": nodes, "edges": edges}, nil
	}); err != nil {
		return err
	}

	if err := reg("db_vacuum", dispatch.CategoryDB, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"ok": true}, sc.Store.Vacuum(ctx)
	}); err != nil {
		return err
	}

	if err := reg("db_stats", dispatch.CategoryDB, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		return sc.Store.Stats(ctx)
	}); err != nil {
		return err
	}

	if err := reg("db_migrate_status", dispatch.CategoryDB, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		dim, err := sc.Store.SchemaInfo(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"embeddingDimension": dim, "configuredDimension": sc.Config.EmbeddingsDimension}, nil
	}); err != nil {
		return err
	}

	if err := reg("db_reembed_missing", dispatch.CategoryDB, `{"type":"object","properties":{"limit":{"type":"integer"}}}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			return reembedMissing(ctx, sc, intArg(args, "limit", 100))
		}); err != nil {
		return err
	}

	if err := reg("db_gc_expired_idempotency", dispatch.CategoryDB, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		n, err := sc.Store.CleanExpiredIdempotencyKeys(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"removed": n}, nil
	}); err != nil {
		return err
	}

	if err := reg("web_fetch", dispatch.CategoryWeb, `{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			url, _ := args["url"].(string)
			return webfetch.Fetch(ctx, url)
		}); err != nil {
		return err
	}

	if err := reg("web_search", dispatch.CategoryWeb, `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			return webfetch.Search(ctx, query)
		}); err != nil {
		return err
	}

	if err := reg("get_config", dispatch.CategoryMisc, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		return redactedConfig(sc), nil
	}); err != nil {
		return err
	}

	if err := reg("get_metrics", dispatch.CategoryMisc, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		counts, err := sc.Store.CountJobsByStatus(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"jobsByStatus": counts}, nil
	}); err != nil {
		return err
	}

	if err := reg("health_check", dispatch.CategoryMisc, `{"type":"object"}`, func(ctx context.Context, args map[string]any) (any, error) {
		dbErr := sc.Store.Ping(ctx)
		status := "ok"
		if dbErr != nil {
			status = "degraded"
		}
		return map[string]any{"status": status}, nil
	}); err != nil {
		return err
	}

	if err := reg("session_info", dispatch.CategoryMisc, idSchema, func(ctx context.Context, args map[string]any) (any, error) {
		id, _ := args["id"].(string)
		return sc.Store.GetSession(ctx, id)
	}); err != nil {
		return err
	}

	if err := reg("session_list", dispatch.CategoryMisc, `{"type":"object","properties":{"limit":{"type":"integer"}}}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			return sc.Store.ListSessions(ctx, intArg(args, "limit", 50))
		}); err != nil {
		return err
	}

	if err := reg("session_end", dispatch.CategoryMisc, idSchema, func(ctx context.Context, args map[string]any) (any, error) {
		id, _ := args["id"].(string)
		if err := sc.Sessions.End(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"ended": true}, nil
	}); err != nil {
		return err
	}

	if err := reg("idempotency_lookup", dispatch.CategoryMisc, `{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			job, err := sc.Store.GetByIdempotencyKey(ctx, key)
			if err != nil {
				return nil, err
			}
			return job, nil
		}); err != nil {
		return err
	}

	if err := reg("idempotency_forget", dispatch.CategoryMisc, `{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`,
		func(ctx context.Context, args map[string]any) (any, error) {
			key, _ := args["key"].(string)
			job, err := sc.Store.GetByIdempotencyKey(ctx, key)
			if err == nil {
				_ = sc.Store.ClearIdempotencyKey(ctx, job.ID)
			}
			sc.Idempotency.Forget(ctx, key)
			return map[string]any{"forgotten": true}, nil
		}); err != nil {
		return err
	}

	return nil
}

func submitResearchJob(ctx context.Context, sc *server.Context, policy idempotency.Policy, query string, args map[string]any) (any, error) {
	params, _ := json.Marshal(map[string]any{"query": query})
	key, forceNew := idempotencyControls(args)
	result, err := jobs.Submit(ctx, sc.Store, sc.Idempotency, sc.Config, policy, "research", params, key, forceNew)
	return submitResultToMap(result), err
}

func submitFollowUpJob(ctx context.Context, sc *server.Context, policy idempotency.Policy, args map[string]any) (any, error) {
	params, _ := json.Marshal(map[string]any{
		"reportId": int64FromArg(args, "reportId"),
		"question": args["question"],
	})
	key, forceNew := idempotencyControls(args)
	result, err := jobs.Submit(ctx, sc.Store, sc.Idempotency, sc.Config, policy, "follow_up", params, key, forceNew)
	return submitResultToMap(result), err
}

func idempotencyControls(args map[string]any) (key string, forceNew bool) {
	key, _ = args["idempotencyKey"].(string)
	forceNew = boolArg(args, "forceNew", false)
	if key == "" && !forceNew {
		key = idempotency.Key(idempotency.Params(args))
	}
	return key, forceNew
}

func submitResultToMap(r jobs.SubmitResult) map[string]any {
	out := map[string]any{"jobId": r.JobID, "status": r.Status}
	if r.ExistingJob {
		out["existingJob"] = true
	}
	if r.Cached {
		out["cached"] = true
		out["result"] = json.RawMessage(r.Result)
	}
	return out
}

// runFollowUp answers a follow-up question against an existing report's
// text using the primary chat client, then persists the answer as a new
// report linked to its parent via metadata, per spec.md §4.4's description
// of follow_up as "continuing" a prior research result.
func runFollowUp(ctx context.Context, sc *server.Context, args map[string]any) (any, error) {
	reportID := int64FromArg(args, "reportId")
	question, _ := args["question"].(string)
	answer, newID, err := followUpCore(ctx, sc, reportID, question)
	if err != nil {
		return nil, err
	}
	return map[string]any{"reportId": newID, "answer": answer}, nil
}

func orchestratorFollowUpRequest(parent *store.Report, question string) orchestrator.Request {
	return orchestrator.Request{
		Model:       "",
		Temperature: 0.3,
		MaxTokens:   2048,
		Messages: []orchestrator.Message{
			{Role: "system", Content: "Answer the follow-up question using only the prior report as context. Be concise and cite the report's claims where relevant."},
			{Role: "user", Content: fmt.Sprintf("Original research query: %s\n\nReport:\n%s\n\nFollow-up question: %s", parent.Query, parent.ReportText, question)},
		},
	}
}

func followUpCore(ctx context.Context, sc *server.Context, reportID int64, question string) (answer string, newReportID int64, err error) {
	parent, err := sc.Store.GetReport(ctx, reportID)
	if err != nil {
		return "", 0, fmt.Errorf("follow_up: loading parent report: %w", err)
	}

	resp, err := sc.Primary.Complete(ctx, orchestratorFollowUpRequest(parent, question))
	if err != nil {
		return "", 0, fmt.Errorf("follow_up: model call: %w", err)
	}

	metadata, _ := json.Marshal(map[string]any{"followUpOf": reportID, "question": question})
	newID, err := sc.Store.InsertReport(ctx, &store.Report{Query: question, ReportText: resp.Content, Metadata: metadata})
	if err != nil {
		return "", 0, fmt.Errorf("follow_up: persisting answer: %w", err)
	}
	if err := indexAndEmbedReport(ctx, sc, newID, question, resp.Content); err != nil {
		sc.Log.Warn(ctx, "follow_up: post-answer indexing failed", "report_id", newID, "error", err)
	}
	return resp.Content, newID, nil
}

func indexAndEmbedReport(ctx context.Context, sc *server.Context, reportID int64, query, reportText string) error {
	if err := retrieval.IndexReport(ctx, sc.Store, reportID, query, reportText); err != nil {
		return fmt.Errorf("indexing report: %w", err)
	}
	if sc.Embedder == nil {
		return nil
	}
	vec, err := sc.Embedder.Embed(ctx, query+" "+reportText)
	if err != nil {
		return fmt.Errorf("embedding report: %w", err)
	}
	return sc.Store.UpdateReportEmbedding(ctx, reportID, vec)
}

func indexDocument(ctx context.Context, st *store.Store, id, title, content string) error {
	terms := retrieval.Tokenize(content)
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	return st.IndexDocument(ctx, store.Document{ID: id, SourceID: id, Title: title, Content: content, TokenCount: len(terms)}, freq)
}

func reindexAllDocuments(ctx context.Context, st *store.Store) (map[string]any, error) {
	docs, err := st.ListDocuments(ctx, 10000)
	if err != nil {
		return nil, err
	}
	var reindexed int
	for _, summary := range docs {
		full, err := st.GetDocument(ctx, summary.ID)
		if err != nil {
			continue
		}
		if err := indexDocument(ctx, st, full.ID, full.Title, full.Content); err != nil {
			return nil, err
		}
		reindexed++
	}
	return map[string]any{"reindexed": reindexed}, nil
}

func reembedMissing(ctx context.Context, sc *server.Context, limit int) (map[string]any, error) {
	if sc.Embedder == nil {
		return map[string]any{"reembedded": 0, "reason": "no embedder configured"}, nil
	}
	ids, err := sc.Store.ReportsMissingEmbedding(ctx, limit)
	if err != nil {
		return nil, err
	}
	var n int
	for _, id := range ids {
		report, err := sc.Store.GetReport(ctx, id)
		if err != nil {
			continue
		}
		vec, err := sc.Embedder.Embed(ctx, report.Query+" "+report.ReportText)
		if err != nil {
			return nil, err
		}
		if err := sc.Store.UpdateReportEmbedding(ctx, id, vec); err != nil {
			return nil, err
		}
		n++
	}
	return map[string]any{"reembedded": n}, nil
}

func exportReport(r *store.Report, format string) map[string]any {
	switch format {
	case "json":
		return map[string]any{"contentType": "application/json", "content": r}
	default:
		content := fmt.Sprintf("# %s\n\n%s\n", r.Query, r.ReportText)
		return map[string]any{"contentType": "text/markdown", "content": content}
	}
}

// redactedConfig reports the non-secret subset of configuration, for the
// get_config tool: API keys, JWKS URLs, and the Redis DSN never leave the
// process.
func redactedConfig(sc *server.Context) any {
	cfg := sc.Config
	return map[string]any{
		"mode":                cfg.Mode,
		"serverPort":          cfg.ServerPort,
		"parallelism":         cfg.Parallelism,
		"ensembleSize":        cfg.EnsembleSize,
		"embeddingsProvider":  cfg.EmbeddingsProvider,
		"embeddingsModel":     cfg.EmbeddingsModel,
		"embeddingsDimension": cfg.EmbeddingsDimension,
		"idempotencyEnabled":  cfg.IdempotencyEnabled,
		"idempotencyTTL":      cfg.IdempotencyTTL.String(),
		"rateLimitMaxReqs":    cfg.RateLimitMaxReqs,
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func int64FromArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func floatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
