package mcpproto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestID_RoundTripsStringAndNumber(t *testing.T) {
	str := NewStringID("abc")
	raw, err := json.Marshal(str)
	require.NoError(t, err)
	require.JSONEq(t, `"abc"`, string(raw))

	num := NewNumberID(42)
	raw, err = json.Marshal(num)
	require.NoError(t, err)
	require.JSONEq(t, `42`, string(raw))
}

func TestRequest_IsNotification(t *testing.T) {
	require.True(t, Request{Method: "notifications/progress"}.IsNotification())
	require.False(t, Request{Method: "tools/call", ID: NewNumberID(1)}.IsNotification())
}

func TestNewResult_MarshalsPayload(t *testing.T) {
	id := NewNumberID(7)
	resp, err := NewResult(id, map[string]any{"ok": true})
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	require.JSONEq(t, `{"ok":true}`, string(resp.Result))
}

func TestNewError_SetsCode(t *testing.T) {
	resp := NewError(NewNumberID(1), CodeInvalidParams, "bad params", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}
