// Package redact masks secrets in bridge command parameters before they
// are written to the audit log.
package redact

import (
	"regexp"
	"strings"
)

// Mask replaces redacted values.
const Mask = "***"

// DefaultKeys are parameter names whose values are always masked.
var DefaultKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "auth", "credential", "private_key", "cookie",
}

// credKVRe matches key=value or key: value pairs where the key suggests a
// secret.
var credKVRe = regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api_key|apikey|auth)([ \t]*[=:][ \t]*)\S+`)

// bearerRe matches HTTP bearer credentials.
var bearerRe = regexp.MustCompile(`(?i)\b(bearer)(\s+)[A-Za-z0-9\-._~+/]+=*`)

// MaskValue replaces a value with Mask. Nil and bools are preserved.
func MaskValue(v any) any {
	switch v.(type) {
	case nil, bool:
		return v
	default:
		return Mask
	}
}

// String masks credential-looking fragments of s, keeping the key.
func String(s string) string {
	s = credKVRe.ReplaceAllString(s, "${1}${2}"+Mask)
	return bearerRe.ReplaceAllString(s, "${1}${2}"+Mask)
}

// Params returns a copy of params with secret keys masked, at any depth,
// and credential fragments masked inside string values. extraKeys adds to
// DefaultKeys. Keys match case-insensitively.
func Params(params map[string]any, extraKeys ...string) map[string]any {
	if params == nil {
		return nil
	}
	keys := make(map[string]bool, len(DefaultKeys)+len(extraKeys))
	for _, k := range DefaultKeys {
		keys[k] = true
	}
	for _, k := range extraKeys {
		keys[strings.ToLower(k)] = true
	}
	return redactMap(params, keys)
}

func redactMap(data map[string]any, keys map[string]bool) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if keys[strings.ToLower(k)] {
			out[k] = MaskValue(v)
			continue
		}
		out[k] = redactValue(v, keys)
	}
	return out
}

func redactValue(v any, keys map[string]bool) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		return redactMap(t, keys)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, keys)
		}
		return out
	default:
		return v
	}
}
