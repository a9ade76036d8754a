package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oss-mcp/research-engine/internal/mcpproto"
	"github.com/oss-mcp/research-engine/internal/store"
)

// reportURIPrefix namespaces saved research reports as MCP resources,
// matching the report:<id> convention internal/retrieval uses internally
// to unify BM25 and dense candidates (see retrieval.reportItemID), but
// rendered with the "report://" scheme URIs expect on the wire.
const reportURIPrefix = "report://"

func reportURI(id int64) string { return fmt.Sprintf("%s%d", reportURIPrefix, id) }

func parseReportURI(uri string) (int64, bool) {
	if !strings.HasPrefix(uri, reportURIPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(uri, reportURIPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

const listResourcesLimit = 50

func listResources(ctx context.Context, st *store.Store) (mcpproto.ResourcesListResult, error) {
	reports, err := st.ListReports(ctx, listResourcesLimit)
	if err != nil {
		return mcpproto.ResourcesListResult{}, err
	}
	out := make([]mcpproto.ResourceDescriptor, 0, len(reports))
	for _, r := range reports {
		out = append(out, mcpproto.ResourceDescriptor{
			URI:      reportURI(r.ID),
			Name:     r.Query,
			MimeType: "text/plain",
		})
	}
	return mcpproto.ResourcesListResult{Resources: out}, nil
}

func readResource(ctx context.Context, st *store.Store, uri string) (mcpproto.ResourceReadResult, error) {
	id, ok := parseReportURI(uri)
	if !ok {
		return mcpproto.ResourceReadResult{}, fmt.Errorf("unsupported resource uri %q", uri)
	}
	report, err := st.GetReport(ctx, id)
	if err != nil {
		return mcpproto.ResourceReadResult{}, err
	}
	return mcpproto.ResourceReadResult{
		Contents: []mcpproto.ResourceContent{{
			URI:      uri,
			MimeType: "text/plain",
			Text:     report.ReportText,
		}},
	}, nil
}
