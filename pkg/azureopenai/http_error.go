package azureopenai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/redact"
)

// errorEnvelope is the error shape returned by Azure OpenAI.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// HTTPError is a sanitized summary of a non-2xx response.
//
// The message always carries the numeric status, so rate limits read "status=429 ...".
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Code       string

	// Message is the redacted, truncated error message or body snippet.
	Message string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "azure openai http error"
	}
	status := strings.TrimSpace(e.Status)
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	parts := []string{
		fmt.Sprintf("azure openai error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(status)),
	}
	if strings.TrimSpace(e.Code) != "" {
		parts = append(parts, "code="+strings.TrimSpace(e.Code))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	return strings.Join(parts, " ")
}

const maxErrorSnippet = 256

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.Code = strings.TrimSpace(env.Error.Code)
		if msg := strings.TrimSpace(env.Error.Message); msg != "" {
			h.Message = redact.Truncate(msg, maxErrorSnippet)
			return h
		}
		if h.Code != "" {
			return h
		}
	}

	h.Message = redact.Truncate(string(body), maxErrorSnippet)
	return h
}
