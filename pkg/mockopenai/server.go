// Package mockopenai serves a scripted fake of the Azure OpenAI chat-completions route.
package mockopenai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method     string
	Path       string
	Deployment string
	APIVersion string
	APIKey     string
	Body       ChatRequest
}

// ChatRequest mirrors the request body the mock decodes.
type ChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ReasoningEffort string `json:"reasoning_effort"`
}

// MessageContent returns the content of the first message with role, or "".
func (r ChatRequest) MessageContent(role string) string {
	for _, m := range r.Messages {
		if m.Role == role {
			return m.Content
		}
	}
	return ""
}

// Reply is one scripted response.
type Reply struct {
	// Status defaults to 200.
	Status int
	// Content is the first choice's message content. Nil encodes JSON null.
	Content *string
	// NoChoices returns an empty choices array.
	NoChoices bool
	// ErrorCode and ErrorMessage populate the Azure error envelope for non-2xx replies.
	ErrorCode    string
	ErrorMessage string
}

// Text is a successful reply with content s.
func Text(s string) Reply {
	return Reply{Status: http.StatusOK, Content: &s}
}

// Empty is a successful reply whose content is "".
func Empty() Reply {
	return Text("")
}

// Null is a successful reply whose content is null.
func Null() Reply {
	return Reply{Status: http.StatusOK}
}

// RateLimited is a 429 reply.
func RateLimited() Reply {
	return Reply{
		Status:       http.StatusTooManyRequests,
		ErrorCode:    "429",
		ErrorMessage: "Requests to the ChatCompletions_Create Operation have exceeded call rate limit.",
	}
}

// Failure is a reply with an arbitrary error status.
func Failure(status int, msg string) Reply {
	return Reply{Status: status, ErrorCode: http.StatusText(status), ErrorMessage: msg}
}

// Server is a minimal "Azure-OpenAI-like" chat-completions surface.
type Server struct {
	mu       sync.Mutex
	calls    []Call
	script   []Reply
	fallback Reply

	expectedAPIKey string
}

// New constructs a server that answers every request with fallback once the script
// is drained.
func New(fallback Reply) *Server {
	return &Server{fallback: fallback}
}

// RequireAPIKey enforces that requests carry a matching api-key header.
// If key is empty, the header is not checked.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedAPIKey = strings.TrimSpace(key)
}

// Enqueue appends replies served in order before the fallback.
func (s *Server) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, replies...)
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/openai/deployments/", s.handleDeployments)
	return mux
}

func (s *Server) handleDeployments(w http.ResponseWriter, r *http.Request) {
	// /openai/deployments/{deployment}/chat/completions
	rest := strings.TrimPrefix(r.URL.Path, "/openai/deployments/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "chat" || parts[2] != "completions" || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	call := Call{
		Method:     r.Method,
		Path:       r.URL.Path,
		Deployment: parts[0],
		APIVersion: r.URL.Query().Get("api-version"),
		APIKey:     r.Header.Get("api-key"),
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(b, &call.Body); err != nil {
		http.Error(w, fmt.Sprintf("invalid json body: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	expected := s.expectedAPIKey
	reply := s.fallback
	if len(s.script) > 0 {
		reply = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if expected != "" && call.APIKey != expected {
		writeError(w, http.StatusUnauthorized, "401", "Access denied due to invalid subscription key.")
		return
	}
	if call.APIVersion == "" {
		writeError(w, http.StatusNotFound, "404", "Resource not found")
		return
	}
	s.writeReply(w, call, reply)
}

func (s *Server) writeReply(w http.ResponseWriter, call Call, reply Reply) {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status/100 != 2 {
		writeError(w, status, reply.ErrorCode, reply.ErrorMessage)
		return
	}

	choices := []map[string]any{}
	if !reply.NoChoices {
		var content any
		if reply.Content != nil {
			content = *reply.Content
		}
		choices = append(choices, map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
		})
	}
	writeJSON(w, status, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock-%d", len(s.Calls())),
		"object":  "chat.completion",
		"model":   call.Deployment,
		"choices": choices,
	})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
