package mcpproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupportsProtocolVersion(t *testing.T) {
	require.True(t, SupportsProtocolVersion("2025-06-18"))
	require.False(t, SupportsProtocolVersion("1999-01-01"))
}

func TestRequiredScope_ToolQualified(t *testing.T) {
	scope, ok := RequiredScope("tools/call", "research")
	require.True(t, ok)
	require.Equal(t, "mcp:research:write", scope)
}

func TestRequiredScope_UnknownMethod_NotRequired(t *testing.T) {
	_, ok := RequiredScope("tools/list", "")
	require.False(t, ok)
}
