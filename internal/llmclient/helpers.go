package llmclient

import (
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// asStatusError best-effort extracts an HTTP status from a provider SDK
// error, returning nil if the error doesn't carry one. anthropic-sdk-go's
// *anthropic.Error exposes StatusCode as a plain field, not a method, so
// this matches on the concrete type the way the pack's own haiku clients
// do (var apiErr *anthropic.Error; errors.As(err, &apiErr)) rather than
// through an interface.
func asStatusError(err error) *StatusError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return nil
}

func errAs(err error, target **StatusError) bool {
	return errors.As(err, target)
}

// extractJSON pulls the first top-level {...} object out of a response
// that may contain surrounding prose or markdown code fences.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
