// Package record extracts structured records from raw HTTP response
// bodies using RFC 6901 JSON Pointers, and represents the records
// handed back to the host. Pointer resolution is grounded on the
// pack's use of github.com/tidwall/gjson for response parsing (see the
// teacher's sibling datafeed/marble dispatcher code), chosen over a
// pointer-shaped library like PaesslerAG/jsonpath because gjson can
// resolve a single path against raw bytes without a full unmarshal,
// which matters when a response body is large and most of it is never
// touched.
package record

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ToGJSONPath converts an RFC 6901 JSON Pointer (e.g. "/data/0/id") into
// gjson's dotted path syntax ("data.0.id"), unescaping "~1" to "/" and
// "~0" to "~" per the RFC.
func ToGJSONPath(pointer string) string {
	if pointer == "" || pointer == "/" {
		return ""
	}
	p := strings.TrimPrefix(pointer, "/")
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		segments[i] = escapeGJSON(seg)
	}
	return strings.Join(segments, ".")
}

// escapeGJSON backslash-escapes gjson path metacharacters that might
// appear literally in a JSON key name.
func escapeGJSON(seg string) string {
	if strings.ContainsAny(seg, ".*?|#@") {
		var b strings.Builder
		for _, r := range seg {
			switch r {
			case '.', '*', '?', '|', '#', '@':
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		return b.String()
	}
	return seg
}

// Resolve evaluates an RFC 6901 pointer against raw JSON bytes,
// reporting whether a value was found at all (as distinct from a JSON
// null, which Exists reports as found).
func Resolve(body []byte, pointer string) (gjson.Result, bool) {
	path := ToGJSONPath(pointer)
	if path == "" {
		return gjson.ParseBytes(body), true
	}
	res := gjson.GetBytes(body, path)
	return res, res.Exists()
}

// ResolveString resolves pointer and returns its value as a string,
// or "" if missing or null.
func ResolveString(body []byte, pointer string) (string, bool) {
	res, ok := Resolve(body, pointer)
	if !ok || res.Type == gjson.Null {
		return "", false
	}
	return res.String(), true
}

// ResolveInt resolves pointer and returns its value as an int, or ok=false
// if missing, null, or not numeric.
func ResolveInt(body []byte, pointer string) (int, bool) {
	res, ok := Resolve(body, pointer)
	if !ok || res.Type == gjson.Null {
		return 0, false
	}
	if res.Type != gjson.Number {
		if n, err := strconv.Atoi(res.String()); err == nil {
			return n, true
		}
		return 0, false
	}
	return int(res.Int()), true
}
