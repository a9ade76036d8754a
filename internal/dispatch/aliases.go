// Package dispatch normalizes tools/call(name, arguments) into typed,
// schema-validated handler invocations, per spec.md §4.2: global and
// per-category parameter aliases, category defaults, type coercion, JSON
// Schema validation, a mode-dependent tool catalog, and the `agent` router
// tool.
package dispatch

import "regexp"

// globalAliases apply to every tool call before category aliases, per
// spec.md §4.2 step 1.
var globalAliases = map[string]string{
	"q":    "query",
	"k":    "limit",
	"cost": "costPreference",
	"aud":  "audienceLevel",
	"fmt":  "outputFormat",
	"src":  "includeSources",
	"imgs": "images",
	"docs": "textDocuments",
	"data": "structuredData",
}

// Category tags the tool-category alias/default table a tool belongs to.
type Category string

const (
	CategoryResearch Category = "research"
	CategorySearch   Category = "search"
	CategoryJob      Category = "job"
	CategoryReport   Category = "report"
	CategoryGraph    Category = "graph"
	CategoryKB       Category = "kb"
	CategoryDB       Category = "db"
	CategoryWeb      Category = "web"
	CategoryMisc     Category = "misc"
)

// categoryAliases apply after global aliases, keyed by tool category, per
// spec.md §4.2 step 2.
var categoryAliases = map[Category]map[string]string{
	CategoryJob: {
		"job_id": "id",
		"jobId":  "id",
	},
	CategoryReport: {
		"reportId":  "id",
		"report_id": "id",
	},
	CategoryGraph: {
		"startNode": "node",
	},
}

// categoryDefaults are merged into arguments before validation whenever the
// caller omits the field, per spec.md §4.2 step 3.
var categoryDefaults = map[Category]map[string]any{
	CategoryResearch: {
		"costPreference": "low",
		"async":          true,
	},
	CategorySearch: {
		"limit": 10,
		"scope": "both",
	},
}

// jobIDPattern recognizes a job id shape so the dispatcher can tell a caller
// apart who mistakenly supplied a job id where a numeric report id belongs,
// per spec.md §4.2 "Cross-alias detection".
var jobIDPattern = regexp.MustCompile(`^job_\d+_[a-z0-9]{6,}$`)

// applyAliases returns a copy of args with keys renamed, first via
// globalAliases then via the category's own alias table; args itself is not
// modified. Later stages never see the raw names.
func applyAliases(args map[string]any, category Category) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if renamed, ok := globalAliases[k]; ok {
			k = renamed
		}
		out[k] = v
	}
	if catAliases, ok := categoryAliases[category]; ok {
		renamed := make(map[string]any, len(out))
		for k, v := range out {
			if r, ok := catAliases[k]; ok {
				k = r
			}
			renamed[k] = v
		}
		out = renamed
	}
	return out
}

// applyDefaults fills in any category default whose key is absent from args.
func applyDefaults(args map[string]any, category Category) map[string]any {
	defaults, ok := categoryDefaults[category]
	if !ok {
		return args
	}
	for k, v := range defaults {
		if _, present := args[k]; !present {
			args[k] = v
		}
	}
	return args
}
