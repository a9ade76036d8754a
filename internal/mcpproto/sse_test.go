package mcpproto

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSSEEvent_ThenReadSSEEvent_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSEEvent(&buf, "progress", []byte(`{"pct":50}`)))

	event, data, err := ReadSSEEvent(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "progress", event)
	require.Equal(t, `{"pct":50}`, string(data))
}

func TestWriteSSEEvent_MultilineData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSEEvent(&buf, "synthesis_token", []byte("line one\nline two")))

	event, data, err := ReadSSEEvent(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "synthesis_token", event)
	require.Equal(t, "line one\nline two", string(data))
}

func TestReadSSEEvent_SkipsCommentLines(t *testing.T) {
	raw := ": keep-alive\nevent: ping\ndata: {}\n\n"
	event, data, err := ReadSSEEvent(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, "ping", event)
	require.Equal(t, "{}", string(data))
}
