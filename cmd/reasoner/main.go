package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shpitdev/docdiff-reasoner/internal/app"
	"github.com/shpitdev/docdiff-reasoner/internal/gemini"
	"github.com/shpitdev/docdiff-reasoner/internal/logging"
	"github.com/shpitdev/docdiff-reasoner/internal/metrics"
	"github.com/shpitdev/docdiff-reasoner/internal/prompt"
	"github.com/shpitdev/docdiff-reasoner/internal/version"
	"github.com/shpitdev/docdiff-reasoner/pkg/azureopenai"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/redact"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/schema"
)

const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 2
)

// exitError carries the process exit code out of cobra.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configErr(msg string, err error) error { return &exitError{code: exitConfig, msg: msg, err: err} }

func runErr(msg string, err error) error { return &exitError{code: exitRun, msg: msg, err: err} }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintf(stderr, "%s\n", redact.Secrets(err.Error()))

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Anything cobra rejects before RunE (unknown flag, bad value) is a usage error.
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reasoner",
		Short: "Compare two versions of a document with a reasoning model",
		Long: `reasoner converts the two PDFs in the source directory to text, sends both to a
reasoning model with a fixed instruction, and writes the model's report to
<output-dir>/output.md.

Every flag falls back to its environment variable, then to the default shown.
A .env file in the working directory is loaded first and never overrides
variables that are already set.`,
		Version:       version.Current,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return configErr("load .env", err)
			}
			s, err := resolveSettings(cmd.Flags())
			if err != nil {
				return configErr("config error", err)
			}
			return run(cmd.Context(), s, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	registerFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, s settings, stdout, stderr io.Writer) error {
	if err := s.requireCredentials(); err != nil {
		return configErr("config error", err)
	}
	effort, err := schema.ParseEffort(s.Effort)
	if err != nil {
		return configErr("config error", err)
	}
	instruction, err := prompt.LoadInstruction(s.InstructionFile)
	if err != nil {
		return configErr("config error", err)
	}

	logger := logging.New(s.Verbose, stderr)
	defer func() {
		_ = logger.Sync()
	}()

	completer, err := newCompleter(ctx, s)
	if err != nil {
		return configErr(s.Provider+" config error", err)
	}

	m := metrics.New()
	rep, err := app.Run(ctx, app.Config{
		SourceDir:      s.SourceDir,
		InterimDir:     s.InterimDir,
		OutputDir:      s.OutputDir,
		Provider:       s.Provider,
		Model:          s.Model,
		Effort:         effort,
		Instruction:    instruction,
		Strict:         s.Strict,
		RequestTimeout: s.RequestTimeout,
		RateLimitRPS:   s.RateLimitRPS,
		MetricsFile:    s.MetricsFile,
	}, app.Deps{
		Completer: completer,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		if app.IsConfigError(err) {
			return configErr("config error", err)
		}
		return runErr("run failed", err)
	}

	_, _ = fmt.Fprintln(stdout, "Reasoning completed!")
	_, _ = fmt.Fprintf(stdout, "Report written to %s\n", rep.OutputPath)
	if s.Render {
		renderReport(stdout, logger, rep.Text)
	}
	return nil
}

func newCompleter(ctx context.Context, s settings) (core.Completer, error) {
	if s.Provider == providerGemini {
		return gemini.New(ctx, gemini.Config{APIKey: s.GeminiKey, BaseURL: s.GeminiBaseURL})
	}
	return azureopenai.NewClient(azureopenai.Config{
		APIKey:     s.OpenAIKey,
		Endpoint:   s.OpenAIEndpoint,
		APIVersion: s.OpenAIAPIVersion,
	})
}

func renderReport(w io.Writer, logger *zap.Logger, text string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		var out string
		if out, err = r.Render(text); err == nil {
			_, _ = fmt.Fprint(w, out)
			return
		}
	}
	logger.Warn("failed to render report", zap.String("error", redact.Secrets(err.Error())))
	_, _ = fmt.Fprintln(w, text)
}
