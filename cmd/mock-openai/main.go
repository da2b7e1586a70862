package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/docdiff-reasoner/pkg/mockopenai"
)

func main() {
	addr := defaultString("MOCK_OPENAI_ADDR", ":8080")
	reply := defaultString("MOCK_OPENAI_REPLY", "# Mock report\n\nThe two versions are identical.")
	apiKey := defaultString("MOCK_OPENAI_API_KEY", "")
	script := defaultString("MOCK_OPENAI_SCRIPT", "")

	fs := flag.NewFlagSet("mock-openai", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&reply, "reply", reply, "Content returned once the script is drained")
	fs.StringVar(&apiKey, "api-key", apiKey, "Require this api-key header (empty disables the check)")
	fs.StringVar(&script, "script", script, "Comma-separated replies served first: empty, null, 429, 500 (also supports env: MOCK_OPENAI_SCRIPT)")
	_ = fs.Parse(os.Args[1:])

	srv := mockopenai.New(mockopenai.Text(reply))
	srv.RequireAPIKey(apiKey)
	for _, step := range splitCSV(script) {
		r, err := scriptedReply(step)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "invalid script: %v\n", err)
			os.Exit(2)
		}
		srv.Enqueue(r)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-openai listening on %s (script=%q)\n", addr, script)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func scriptedReply(step string) (mockopenai.Reply, error) {
	switch strings.ToLower(step) {
	case "empty":
		return mockopenai.Empty(), nil
	case "null":
		return mockopenai.Null(), nil
	case "429":
		return mockopenai.RateLimited(), nil
	case "500":
		return mockopenai.Failure(http.StatusInternalServerError, "scripted failure"), nil
	default:
		return mockopenai.Reply{}, fmt.Errorf("unknown step %q", step)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
