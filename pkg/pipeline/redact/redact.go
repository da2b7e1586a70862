package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings, including the
	// Azure "api-key" header and the env var names this tool reads.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(azure[_-]?openai[_-]?api[_-]?key|gemini[_-]?api[_-]?key|openai[_-]?key|api[_-]?key)\b\s*[:=]\s*[^\s"'&]+`)

	// Gemini REST URLs carry the key as a query parameter.
	queryKeyRe = regexp.MustCompile(`([?&])key=[^&\s"']+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = queryKeyRe.ReplaceAllString(out, "${1}key=<redacted>")
	return strings.TrimSpace(out)
}

// Truncate redacts s and caps it at max bytes, flattening newlines. A "..." suffix
// marks truncation.
func Truncate(s string, max int) string {
	if s == "" {
		return ""
	}
	cut := s
	if max > 0 && len(cut) > max {
		cut = cut[:max]
	}
	out := Secrets(cut)
	out = strings.ReplaceAll(out, "\n", " ")
	out = strings.ReplaceAll(out, "\r", " ")
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}
	if max > 0 && len(s) > max {
		return out + "..."
	}
	return out
}
