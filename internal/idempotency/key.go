// Package idempotency derives stable fingerprints for canonicalized request
// parameters and evaluates the retry policy for failed idempotent jobs, per
// spec.md §4.5.
package idempotency

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Params is the raw set of tool-call arguments the dispatcher hands to the
// idempotency layer. Only the canonical subset named in spec.md §4.5 is
// included in the fingerprint; everything else (requestId, notify URL,
// async flag, clientContext, timestamps, any "_"-prefixed field) is ignored.
type Params map[string]any

// Attachment reduces an attachment array to {count, firstHash} per spec.md §4.5.
type Attachment struct {
	Count     int    `json:"count"`
	FirstHash string `json:"firstHash,omitempty"`
}

// canonical is the normalized map that gets hashed. Field order in the
// struct is irrelevant: json.Marshal on a map always sorts keys, which is
// what gives the "serialize with keys sorted ascending" property.
type canonical struct {
	Query            string      `json:"query"`
	CostPreference   string      `json:"costPreference"`
	AudienceLevel    string      `json:"audienceLevel"`
	OutputFormat     string      `json:"outputFormat"`
	IncludeSources   bool        `json:"includeSources"`
	MaxLength        *int        `json:"maxLength"`
	Images           *Attachment `json:"images,omitempty"`
	TextDocuments    *Attachment `json:"textDocuments,omitempty"`
	StructuredData   *Attachment `json:"structuredData,omitempty"`
}

// Canonicalize builds the canonical map from raw params, applying the
// defaults spec.md §4.5 lists.
func Canonicalize(p Params) canonical {
	c := canonical{
		Query:          strings.TrimSpace(strings.ToLower(stringField(p, "query"))),
		CostPreference: stringFieldDefault(p, "costPreference", "low"),
		AudienceLevel:  stringFieldDefault(p, "audienceLevel", "intermediate"),
		OutputFormat:   stringFieldDefault(p, "outputFormat", "report"),
		IncludeSources: boolFieldDefault(p, "includeSources", true),
	}
	if v, ok := p["maxLength"]; ok && v != nil {
		if n, ok := toInt(v); ok {
			c.MaxLength = &n
		}
	}
	c.Images = attachmentOf(p, "images", imageHash)
	c.TextDocuments = attachmentOf(p, "textDocuments", textDocHash)
	c.StructuredData = attachmentOf(p, "structuredData", structuredDataHash)
	return c
}

// Key computes the 16-hex-character idempotency key for raw params: SHA-256
// over the sorted-key JSON serialization of the canonical map, truncated to
// the first 16 hex characters (~2^64 namespace), per spec.md §4.5.
func Key(p Params) string {
	c := Canonicalize(p)
	// json.Marshal of a struct preserves declared field order, not sorted
	// key order; round-trip through map[string]any to get deterministic
	// sorted-key serialization regardless of struct layout changes.
	raw, _ := json.Marshal(c)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	sorted, _ := json.Marshal(sortedMap(m))
	sum := sha256.Sum256(sorted)
	return fmt.Sprintf("%x", sum)[:16]
}

// sortedMap renders m as an ordered slice of key/value pairs so the JSON
// encoding of nested maps is also key-sorted (json.Marshal already sorts
// top-level map[string]any keys, but this makes the intent explicit and
// keeps the behavior stable even if callers pass nested maps directly).
func sortedMap(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]any:
			out[k] = sortedMap(v)
		default:
			out[k] = v
		}
	}
	return out
}

func stringField(p Params, key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringFieldDefault(p Params, key, def string) string {
	if s := stringField(p, key); s != "" {
		return s
	}
	return def
}

func boolFieldDefault(p Params, key string, def bool) bool {
	if v, ok := p[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func attachmentOf(p Params, key string, hashFirst func(any) string) *Attachment {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return &Attachment{Count: 0}
	}
	return &Attachment{Count: len(arr), FirstHash: hashFirst(arr[0])}
}

func sha256Prefix16(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)[:16]
}

// imageHash hashes the URL of the first image attachment.
func imageHash(v any) string {
	m, _ := v.(map[string]any)
	url, _ := m["url"].(string)
	return sha256Prefix16([]byte(url))
}

// textDocHash hashes the first 1000 characters of the first text document.
func textDocHash(v any) string {
	m, _ := v.(map[string]any)
	text, _ := m["text"].(string)
	if len(text) > 1000 {
		text = text[:1000]
	}
	return sha256Prefix16([]byte(text))
}

// structuredDataHash hashes the JSON-canonical serialization of the first
// structured-data element.
func structuredDataHash(v any) string {
	raw, _ := json.Marshal(v)
	return sha256Prefix16(raw)
}
