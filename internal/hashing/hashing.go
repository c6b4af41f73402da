package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	// ContentHashVersion identifies the raw-text hashing scheme.
	ContentHashVersion = "sha256-v1"
	// PayloadHashVersion identifies the canonical payload hashing scheme.
	PayloadHashVersion = "sha256-v1"
)

// volatilePayloadFields are stripped before hashing so that bookkeeping
// churn (new ids, timestamps, version pointers) never changes the hash.
var volatilePayloadFields = map[string]struct{}{
	"id":            {},
	"created_at":    {},
	"updated_at":    {},
	"version_no":    {},
	"is_current":    {},
	"supersedes_id": {},
	"source_run_id": {},
}

// ContentHash normalizes line endings to \n, encodes UTF-8 and returns the
// sha256 hex digest. Used to detect any byte-level drift between what the app
// last wrote and what currently exists on disk.
func ContentHash(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// CanonicalPayloadHash hashes the semantically meaningful fields of a payload.
// Volatile keys are stripped recursively, object keys sorted, string values
// trimmed and the result serialized with compact separators before hashing.
// Two payloads differing only in volatile fields or key order hash identically.
func CanonicalPayloadHash(payload map[string]any) (string, error) {
	canonical := canonicalize(payload)
	serialized, err := marshalCanonical(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to serialize payload: %w", err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize strips volatile keys and trims strings, recursively.
func canonicalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(v))
		for key, val := range v {
			if _, volatile := volatilePayloadFields[key]; volatile {
				continue
			}
			cleaned[key] = canonicalize(val)
		}
		return cleaned
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = canonicalize(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = strings.TrimSpace(item)
		}
		return out
	case string:
		return strings.TrimSpace(v)
	default:
		return v
	}
}

// marshalCanonical serializes with sorted keys and compact separators.
// encoding/json already sorts map keys; nested maps are handled by recursion
// in canonicalize, so a plain Marshal is deterministic here.
func marshalCanonical(value any) ([]byte, error) {
	if m, ok := value.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			b.Write(kb)
			b.WriteByte(':')
			vb, err := marshalCanonical(m[k])
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	}
	if s, ok := value.([]any); ok {
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range s {
			if i > 0 {
				b.WriteByte(',')
			}
			vb, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	}
	return json.Marshal(value)
}
