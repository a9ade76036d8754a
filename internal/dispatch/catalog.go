package dispatch

import (
	"encoding/json"

	"github.com/oss-mcp/research-engine/internal/config"
)

// Tool describes one dispatchable operation: its name, category (for alias
// and default resolution), and JSON Schema for its arguments.
type Tool struct {
	Name        string
	Category    Category
	Description string
	Schema      json.RawMessage
}

// agentTools are the 6 tools exposed when Mode is AGENT: the router plus
// the handful of operational primitives an autonomous caller needs without
// being handed the full manual surface, per spec.md §4.2's catalog table.
var agentTools = []string{"agent", "ping", "get_server_status", "job_status", "get_job_status", "cancel_job"}

// manualTools are every individually addressable research, retrieval, KB,
// DB-maintenance, web, and graph tool, per spec.md §4.2 ("40+").
var manualTools = []string{
	// research
	"research", "retrieve", "follow_up", "graph_query",
	// job management
	"job_status", "get_job_status", "cancel_job", "list_jobs", "job_events",
	// report access
	"get_report", "rate_report", "delete_report", "list_reports", "export_report",
	// knowledge base
	"kb_search", "kb_index_document", "kb_delete_document", "kb_list_documents", "kb_reindex",
	// graph
	"graph_upsert_node", "graph_upsert_edge", "graph_neighbors", "graph_find_node", "graph_stats",
	// database maintenance
	"db_vacuum", "db_stats", "db_migrate_status", "db_reembed_missing", "db_gc_expired_idempotency",
	// web / fetch
	"web_fetch", "web_search",
	// operational
	"ping", "get_server_status", "get_config", "get_metrics", "health_check",
	// sessions
	"session_info", "session_list", "session_end",
	// idempotency
	"idempotency_lookup", "idempotency_forget",
}

// Catalog returns the tool names exposed for the given server mode: the 6
// agent tools, the full manual set, or their union, per spec.md §4.2.
func Catalog(mode config.Mode) []string {
	switch mode {
	case config.ModeAgent:
		return append([]string(nil), agentTools...)
	case config.ModeManual:
		return append([]string(nil), manualTools...)
	default:
		return unionTools(agentTools, manualTools)
	}
}

func unionTools(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
