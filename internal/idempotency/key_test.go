package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_SameCanonicalParams_SameKey(t *testing.T) {
	p1 := Params{"query": "  Rust Async Runtimes  ", "costPreference": "low"}
	p2 := Params{"query": "rust async runtimes", "costPreference": "low", "includeSources": true}

	k1 := Key(p1)
	k2 := Key(p2)

	assert.Equal(t, k1, k2, "defaults applied to p2 should make it canonically equal to p1")
	assert.Len(t, k1, 16)
}

func TestKey_DifferentQuery_DifferentKey(t *testing.T) {
	k1 := Key(Params{"query": "rust async runtimes"})
	k2 := Key(Params{"query": "go concurrency patterns"})
	assert.NotEqual(t, k1, k2)
}

func TestKey_IgnoresNonCanonicalFields(t *testing.T) {
	p1 := Params{"query": "foo", "requestId": "abc-123", "notifyUrl": "https://example.com/hook"}
	p2 := Params{"query": "foo", "requestId": "xyz-999"}
	assert.Equal(t, Key(p1), Key(p2))
}

func TestKey_AttachmentCountAffectsKey(t *testing.T) {
	base := Params{"query": "foo"}
	withOneImage := Params{"query": "foo", "images": []any{map[string]any{"url": "https://x/1.png"}}}
	withTwoImages := Params{"query": "foo", "images": []any{
		map[string]any{"url": "https://x/1.png"},
		map[string]any{"url": "https://x/2.png"},
	}}

	require.NotEqual(t, Key(base), Key(withOneImage))
	require.NotEqual(t, Key(withOneImage), Key(withTwoImages))
}

func TestKey_MaxLengthNilVsSet(t *testing.T) {
	k1 := Key(Params{"query": "foo"})
	k2 := Key(Params{"query": "foo", "maxLength": 500})
	assert.NotEqual(t, k1, k2)
}

func TestPolicy_Allow(t *testing.T) {
	p := Policy{Window: 10 * time.Minute, MaxRetries: 3}
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, p.Allow(now.Add(-5*time.Minute), 1, now), "within window and under max retries")
	assert.False(t, p.Allow(now.Add(-20*time.Minute), 1, now), "outside window")
	assert.False(t, p.Allow(now.Add(-1*time.Minute), 3, now), "at max retries")
}
