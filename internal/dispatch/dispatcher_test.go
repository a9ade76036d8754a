package dispatch

import (
	"context"
	"testing"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/stretchr/testify/require"
)

func researchSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"costPreference": {"type": "string"},
			"async": {"type": "boolean"},
			"limit": {"type": "integer"}
		},
		"required": ["query"]
	}`)
}

func reportSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {"id": {"type": "integer"}},
		"required": ["id"]
	}`)
}

func newTestDispatcher(t *testing.T, mode config.Mode) *Dispatcher {
	t.Helper()
	d := New(mode)
	require.NoError(t, d.Register(Tool{Name: "research", Category: CategoryResearch, Schema: researchSchema()},
		func(ctx context.Context, args map[string]any) (any, error) { return args, nil }))
	require.NoError(t, d.Register(Tool{Name: "get_report", Category: CategoryReport, Schema: reportSchema()},
		func(ctx context.Context, args map[string]any) (any, error) { return args, nil }))
	require.NoError(t, d.Register(Tool{Name: "retrieve", Category: CategorySearch, Schema: []byte(`{"type":"object"}`)},
		func(ctx context.Context, args map[string]any) (any, error) { return args, nil }))
	return d
}

func TestNormalize_AppliesGlobalAliasAndDefault(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAll)
	out, err := d.Normalize("research", map[string]any{"q": "golang concurrency"})
	require.NoError(t, err)
	require.Equal(t, "golang concurrency", out["query"])
	require.Equal(t, "low", out["costPreference"])
	require.Equal(t, true, out["async"])
}

func TestNormalize_CategoryAliasRenamesReportID(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAll)
	out, err := d.Normalize("get_report", map[string]any{"reportId": 42})
	require.NoError(t, err)
	require.Equal(t, float64(42), out["id"])
}

func TestNormalize_CoercesNumericStringAndBooleanString(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAll)
	out, err := d.Normalize("research", map[string]any{"query": "x", "limit": "10", "async": "false"})
	require.NoError(t, err)
	require.Equal(t, float64(10), out["limit"])
	require.Equal(t, false, out["async"])
}

func TestNormalize_MissingRequiredField_ReturnsValidationError(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAll)
	_, err := d.Normalize("research", map[string]any{})
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestNormalize_CrossAliasDetection_JobIDForReportID(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAll)
	_, err := d.Normalize("get_report", map[string]any{"id": "job_1700000000_ab12cd"})
	require.Error(t, err)
	var ce *CrossAliasError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "id", ce.Field)
}

func TestCatalog_AgentModeExposesSixTools(t *testing.T) {
	require.ElementsMatch(t, agentTools, Catalog(config.ModeAgent))
}

func TestCatalog_AllModeIsUnion(t *testing.T) {
	all := Catalog(config.ModeAll)
	require.GreaterOrEqual(t, len(all), len(manualTools))
	for _, t2 := range agentTools {
		require.Contains(t, all, t2)
	}
}

func TestDispatcher_CatalogFiltersToMode(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAgent)
	require.NotContains(t, d.Catalog(), "research")
}

func TestDispatch_UnexposedToolInAgentMode_Errors(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAgent)
	_, err := d.Dispatch(context.Background(), "research", map[string]any{"query": "x"})
	require.ErrorIs(t, err, ErrToolNotExposed)
}

func TestAgentRouter_ForwardsToResearch(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAgent)
	out, err := d.AgentRouter(context.Background(), map[string]any{"action": "research", "query": "x"})
	require.NoError(t, err)
	args, ok := out.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "x", args["query"])
}

func TestAgentRouter_UnknownAction_Errors(t *testing.T) {
	d := newTestDispatcher(t, config.ModeAgent)
	_, err := d.AgentRouter(context.Background(), map[string]any{"action": "delete_everything"})
	require.Error(t, err)
}
