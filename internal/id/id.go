// Package id normalizes record identifiers coming from the primary API.
//
// The primary store exports identifiers inconsistently depending on the
// query path: joined queries return plain strings, unjoined ones return
// extended-JSON wrappers such as {"$oid": "..."}. Identifiers are decoded
// once at the boundary into ID and never carried further in wrapped form.
package id

import (
	"bytes"
	"encoding/json"
)

// ID is a canonical record identifier. The zero value is the empty id.
type ID string

// String returns the identifier as a plain string.
func (i ID) String() string {
	return string(i)
}

// IsZero reports whether the identifier is empty.
func (i ID) IsZero() bool {
	return i == ""
}

// UnmarshalJSON decodes any supported identifier shape. It never fails on
// unexpected shapes; they decode to the empty id.
func (i *ID) UnmarshalJSON(data []byte) error {
	*i = ID(Canonical(data))
	return nil
}

// MarshalJSON always encodes the canonical string form.
func (i ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(i))
}

// Canonical extracts the canonical identifier from a raw JSON value.
//
// Accepted shapes:
//
//	"abc"                      -> abc
//	{"$oid": "abc"}            -> abc
//	{"_id": <any shape>}       -> canonical of the nested value
//	{"id": <any shape>}        -> canonical of the nested value
//	null, absent, other        -> ""
func Canonical(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		for _, key := range []string{"$oid", "_id", "id"} {
			if nested, ok := obj[key]; ok {
				if v := Canonical(nested); v != "" {
					return v
				}
			}
		}
		return ""
	default:
		return ""
	}
}

// FromValue extracts the canonical identifier from an already-decoded JSON
// value (string, map[string]any, nil). It follows the same rules as
// Canonical.
func FromValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case ID:
		return string(val)
	case map[string]any:
		for _, key := range []string{"$oid", "_id", "id"} {
			if nested, ok := val[key]; ok {
				if s := FromValue(nested); s != "" {
					return s
				}
			}
		}
		return ""
	default:
		return ""
	}
}

// First returns the first non-empty identifier, or the empty id.
//
// Application records resolve their candidate id with
// First(app.UserID, app.User.ID, app.ID): explicit userId, then the nested
// user's id (or the user field itself when it is a plain string), then the
// application's own id.
func First(ids ...ID) ID {
	for _, candidate := range ids {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Strings converts ids to plain strings, dropping empty ones and
// duplicates while preserving first-seen order.
func Strings(ids []ID) []string {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, string(v))
	}
	return out
}
