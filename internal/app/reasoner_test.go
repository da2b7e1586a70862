package app_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shpitdev/docdiff-reasoner/internal/app"
	"github.com/shpitdev/docdiff-reasoner/internal/metrics"
	"github.com/shpitdev/docdiff-reasoner/internal/prompt"
	"github.com/shpitdev/docdiff-reasoner/pkg/azureopenai"
	"github.com/shpitdev/docdiff-reasoner/pkg/mockopenai"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/retry"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/schema"
)

// textConverter treats every source file as already-extracted text. Files whose
// contents start with "CORRUPT" fail conversion.
var textConverter = core.ConvertFunc(func(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(string(b), "CORRUPT") {
		return "", errors.New("malformed PDF")
	}
	return string(b), nil
})

type countingCompleter struct {
	calls int
	last  core.Request
	reply string
}

func (c *countingCompleter) Complete(_ context.Context, req core.Request) (string, error) {
	c.calls++
	c.last = req
	return c.reply, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

type workspace struct {
	source, interim, output string
}

func newWorkspace(t *testing.T, files map[string]string) workspace {
	t.Helper()
	root := t.TempDir()
	ws := workspace{
		source:  filepath.Join(root, "source"),
		interim: filepath.Join(root, "interim"),
		output:  filepath.Join(root, "output"),
	}
	require.NoError(t, os.MkdirAll(ws.source, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(ws.source, name), []byte(body), 0o644))
	}
	return ws
}

func (ws workspace) config() app.Config {
	return app.Config{
		SourceDir:   ws.source,
		InterimDir:  ws.interim,
		OutputDir:   ws.output,
		Provider:    "azure",
		Model:       "o3-mini",
		Effort:      schema.EffortMedium,
		Instruction: prompt.NewInstruction("compare"),
		RunID:       "test-run",
	}
}

func TestRun_DocumentCountMustBeTwo(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		found string
	}{
		{name: "none", files: map[string]string{}, found: "found 0"},
		{name: "one", files: map[string]string{"a.pdf": "A"}, found: "found 1"},
		{name: "three", files: map[string]string{"a.pdf": "A", "b.pdf": "B", "c.pdf": "C"}, found: "found 3"},
		{name: "pdf_and_txt", files: map[string]string{"a.pdf": "A", "b.txt": "B"}, found: "found 1"},
		{name: "uppercase_extension_is_ignored", files: map[string]string{"a.pdf": "A", "b.PDF": "B"}, found: "found 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspace(t, tt.files)
			stub := &countingCompleter{reply: "report"}

			_, err := app.Run(context.Background(), ws.config(), app.Deps{Converter: textConverter, Completer: stub})
			require.Error(t, err)
			assert.ErrorIs(t, err, app.ErrDocumentCount)
			assert.True(t, app.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.found)
			assert.Equal(t, 0, stub.calls, "no network call before the count check passes")

			for _, dir := range []string{ws.interim, ws.output} {
				_, statErr := os.Stat(dir)
				assert.True(t, os.IsNotExist(statErr), "%s must not be created", dir)
			}
		})
	}
}

func TestRun_MissingSourceDir(t *testing.T) {
	ws := newWorkspace(t, nil)
	cfg := ws.config()
	cfg.SourceDir = filepath.Join(t.TempDir(), "nope")
	stub := &countingCompleter{reply: "report"}

	_, err := app.Run(context.Background(), cfg, app.Deps{Converter: textConverter, Completer: stub})
	assert.ErrorIs(t, err, app.ErrSourceDirMissing)
	assert.True(t, app.IsConfigError(err))
	assert.Equal(t, 0, stub.calls)
}

func TestRun_HappyPathWritesArtifacts(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a-v1.pdf": "alpha", "a-v2.pdf": "beta", "notes.txt": "ignored"})
	stub := &countingCompleter{reply: "# Differences\n"}
	reg := metrics.New()
	cfg := ws.config()
	cfg.MetricsFile = filepath.Join(t.TempDir(), "reasoner.prom")

	rep, err := app.Run(context.Background(), cfg, app.Deps{Converter: textConverter, Completer: stub, Metrics: reg})
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 1, rep.Attempts)
	assert.Equal(t, retry.DefaultBudget, rep.Remaining)

	assert.Equal(t, "compare", stub.last.Instruction)
	assert.Equal(t, "o3-mini", stub.last.Model)
	assert.Equal(t, "medium", stub.last.Effort)
	assert.Equal(t, prompt.Assemble("alpha", "beta"), stub.last.User, "os.ReadDir order is lexical")

	out, err := os.ReadFile(filepath.Join(ws.output, app.OutputFilename))
	require.NoError(t, err)
	assert.Equal(t, "# Differences\n", string(out))

	for stem, want := range map[string]string{"a-v1": "alpha", "a-v2": "beta"} {
		b, err := os.ReadFile(filepath.Join(ws.interim, stem+".md"))
		require.NoError(t, err)
		assert.Equal(t, want, string(b))
	}

	mb, err := os.ReadFile(rep.ManifestPath)
	require.NoError(t, err)
	m, err := schema.UnmarshalManifest(mb)
	require.NoError(t, err)
	assert.Equal(t, "test-run", m.RunID)
	assert.Equal(t, 2, m.Ingested())
	require.NotNil(t, m.Invocation)
	assert.Equal(t, "succeeded", m.Invocation.Outcome)
	assert.Equal(t, rep.OutputPath, m.OutputPath)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `reasoner_documents_total{status="ok"} 2`)
}

func TestRun_IsIdempotent(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"one.pdf": "A", "two.pdf": "B"})
	stub := &countingCompleter{reply: "same report"}
	deps := app.Deps{Converter: textConverter, Completer: stub}

	for i := 0; i < 2; i++ {
		_, err := app.Run(context.Background(), ws.config(), deps)
		require.NoError(t, err, "run %d", i+1)
	}

	interim, err := os.ReadDir(ws.interim)
	require.NoError(t, err)
	var names []string
	for _, e := range interim {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"one.md", "two.md", app.ManifestFilename}, names)

	output, err := os.ReadDir(ws.output)
	require.NoError(t, err)
	require.Len(t, output, 1)
	b, err := os.ReadFile(filepath.Join(ws.output, app.OutputFilename))
	require.NoError(t, err)
	assert.Equal(t, "same report", string(b))
}

func TestRun_FailedDocumentIsSkippedAndLogged(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"good.pdf": "fine", "scanned.pdf": "CORRUPT"})
	stub := &countingCompleter{reply: "partial report"}
	obsCore, logs := observer.New(zapcore.DebugLevel)

	rep, err := app.Run(context.Background(), ws.config(), app.Deps{
		Converter: textConverter,
		Completer: stub,
		Logger:    zap.New(obsCore),
	})
	require.NoError(t, err)
	assert.Equal(t, prompt.Assemble("fine"), stub.last.User, "failed documents contribute nothing")
	require.Len(t, rep.Documents, 2)
	assert.False(t, rep.Documents[1].OK())

	warn := logs.FilterMessage("failed to parse source").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "scanned", warn[0].ContextMap()["doc"])
	assert.Equal(t, "test-run", warn[0].ContextMap()["run"])
	assert.Len(t, logs.FilterMessage("continuing with a reduced prompt").All(), 1)

	mb, err := os.ReadFile(rep.ManifestPath)
	require.NoError(t, err)
	m, err := schema.UnmarshalManifest(mb)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Ingested())
	assert.Equal(t, schema.DocumentFailed, m.Documents[1].Status)
}

func TestRun_StrictModeAborts(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"good.pdf": "fine", "scanned.pdf": "CORRUPT"})
	stub := &countingCompleter{reply: "report"}
	cfg := ws.config()
	cfg.Strict = true

	_, err := app.Run(context.Background(), cfg, app.Deps{Converter: textConverter, Completer: stub})
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrStrictIngest)
	assert.Contains(t, err.Error(), "scanned")
	assert.False(t, app.IsConfigError(err))
	assert.Equal(t, 0, stub.calls)

	_, statErr := os.Stat(filepath.Join(ws.output, app.OutputFilename))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_ExhaustionWritesNoOutput(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.pdf": "A", "b.pdf": "B"})
	failing := core.CompleteFunc(func(context.Context, core.Request) (string, error) {
		return "", errors.New("azure openai error: status=429 Too Many Requests")
	})

	rep, err := app.Run(context.Background(), ws.config(), app.Deps{
		Converter: textConverter,
		Completer: failing,
		Sleep:     noSleep,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.False(t, app.IsConfigError(err))
	assert.Equal(t, 10, rep.Attempts)

	_, statErr := os.Stat(filepath.Join(ws.output, app.OutputFilename))
	assert.True(t, os.IsNotExist(statErr), "no partial output")

	mb, err := os.ReadFile(rep.ManifestPath)
	require.NoError(t, err)
	m, err := schema.UnmarshalManifest(mb)
	require.NoError(t, err)
	require.NotNil(t, m.Invocation)
	assert.Equal(t, "failed", m.Invocation.Outcome)
	assert.Equal(t, 10, m.Invocation.Attempts)
}

func TestRun_EndToEndAgainstMockAzure(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"contract-2023.pdf": "Term: 12 months", "contract-2024.pdf": "Term: 24 months"})

	mock := mockopenai.New(mockopenai.Text("The term doubled."))
	mock.RequireAPIKey("dummy-key")
	mock.Enqueue(mockopenai.Null(), mockopenai.RateLimited(), mockopenai.Failure(500, "upstream hiccup"))
	ts := httptest.NewServer(mock.Handler())
	defer ts.Close()

	client, err := azureopenai.NewClient(azureopenai.Config{APIKey: "dummy-key", Endpoint: ts.URL})
	require.NoError(t, err)

	var waits []time.Duration
	rep, err := app.Run(context.Background(), ws.config(), app.Deps{
		Converter: textConverter,
		Completer: client,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "The term doubled.", rep.Text)
	assert.Equal(t, 4, rep.Attempts)
	assert.Equal(t, 10-1-1-2, rep.Remaining)
	assert.Equal(t, []time.Duration{0, 10 * time.Second, time.Second}, waits)

	calls := mock.Calls()
	require.Len(t, calls, 4)
	last := calls[3]
	assert.Equal(t, "o3-mini", last.Deployment)
	assert.Equal(t, azureopenai.DefaultAPIVersion, last.APIVersion)
	assert.Equal(t, "compare", last.Body.MessageContent("developer"))
	assert.Equal(t, prompt.Assemble("Term: 12 months", "Term: 24 months"), last.Body.MessageContent("user"))
	assert.Equal(t, "medium", last.Body.ReasoningEffort)
}
