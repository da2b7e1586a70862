package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/docdiff-reasoner/internal/ingest"
	"github.com/shpitdev/docdiff-reasoner/internal/invoke"
	"github.com/shpitdev/docdiff-reasoner/internal/metrics"
	"github.com/shpitdev/docdiff-reasoner/internal/prompt"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	localio "github.com/shpitdev/docdiff-reasoner/pkg/pipeline/io/local"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/redact"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/retry"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/schema"
)

const (
	// RequiredDocuments is the exact number of eligible sources a run accepts.
	RequiredDocuments = 2

	OutputFilename   = "output.md"
	ManifestFilename = "manifest.yaml"
)

var (
	ErrSourceDirMissing = errors.New("source directory does not exist")
	ErrDocumentCount    = errors.New("exactly 2 source documents are required")
	ErrStrictIngest     = errors.New("document ingestion failed")
)

// IsConfigError reports whether err is a fatal configuration problem detected before
// any network call.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrSourceDirMissing) ||
		errors.Is(err, ErrDocumentCount) ||
		errors.Is(err, prompt.ErrInstructionUnreadable)
}

type Config struct {
	SourceDir  string
	InterimDir string
	OutputDir  string

	Provider string
	Model    string
	Effort   schema.Effort

	// Instruction defaults to the embedded text when nil.
	Instruction *prompt.Instruction

	// Strict aborts the run when any document fails ingestion. Off by default: failed
	// documents are logged and left out of the prompt.
	Strict bool

	RequestTimeout time.Duration
	RateLimitRPS   float64
	Policy         retry.Policy

	// MetricsFile, when set, receives the run's Prometheus textfile.
	MetricsFile string

	// RunID defaults to a random UUID.
	RunID string
}

type Deps struct {
	// Converter defaults to ingest.PDFConverter.
	Converter core.Converter
	Completer core.Completer
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	// Sleep defaults to retry.Sleep.
	Sleep retry.Sleeper
}

// Report describes a completed run.
type Report struct {
	RunID        string
	OutputPath   string
	ManifestPath string
	Text         string
	Documents    []ingest.Outcome
	Attempts     int
	Remaining    int
}

// Run discovers exactly two source documents, ingests them, sends the assembled
// prompt for reasoning and writes <output-dir>/output.md.
//
// Configuration problems (missing source dir, wrong document count) abort before
// anything is created or sent. A document that fails conversion is skipped unless
// cfg.Strict is set.
func Run(ctx context.Context, cfg Config, deps Deps) (Report, error) {
	if deps.Completer == nil {
		return Report{}, errors.New("app: completer is required")
	}
	if deps.Converter == nil {
		deps.Converter = ingest.PDFConverter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Instruction == nil {
		cfg.Instruction = prompt.DefaultInstruction()
	}
	if cfg.Effort == "" {
		cfg.Effort = schema.EffortMedium
	}
	runID := strings.TrimSpace(cfg.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	log := deps.Logger.With(zap.String("run", runID))
	runStart := time.Now()
	report := Report{RunID: runID}

	if err := localio.RequireDir(cfg.SourceDir); err != nil {
		if localio.IsNotExist(err) {
			return report, fmt.Errorf("%w: %s", ErrSourceDirMissing, cfg.SourceDir)
		}
		return report, fmt.Errorf("%w: %w", ErrSourceDirMissing, err)
	}

	sources, err := localio.ListSources(cfg.SourceDir, ingest.SupportedExtensions)
	if err != nil {
		return report, err
	}
	if len(sources) != RequiredDocuments {
		return report, fmt.Errorf("%w: found %d %s file(s) in %s",
			ErrDocumentCount, len(sources), strings.Join(ingest.SupportedExtensions, "/"), cfg.SourceDir)
	}

	for _, dir := range []string{cfg.InterimDir, cfg.OutputDir} {
		if err := localio.EnsureDir(dir); err != nil {
			return report, err
		}
	}

	log.Info("run start",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("effort", string(cfg.Effort)),
		zap.String("instruction", cfg.Instruction.Source()),
		zap.Int("documents", len(sources)),
	)

	manifest := schema.Manifest{
		Version:   schema.ManifestVersion,
		RunID:     runID,
		StartedAt: runStart.UTC(),
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		Effort:    cfg.Effort,
	}
	report.ManifestPath = filepath.Join(cfg.InterimDir, ManifestFilename)

	ing := ingest.New(deps.Converter, cfg.InterimDir, log)
	var asm prompt.Assembler
	var failed []string
	for _, src := range sources {
		out, err := ing.Ingest(ctx, src)
		if err != nil {
			return report, fmt.Errorf("ingest %s: %w", src.Name, err)
		}
		report.Documents = append(report.Documents, out)
		manifest.Documents = append(manifest.Documents, out.ManifestEntry())
		deps.Metrics.ObserveDocument(string(out.Status))
		if !out.OK() {
			failed = append(failed, src.Stem)
			continue
		}
		asm.Add(out.Text)
	}

	if len(failed) > 0 {
		if cfg.Strict {
			if err := writeManifest(report.ManifestPath, manifest); err != nil {
				return report, err
			}
			return report, fmt.Errorf("%w: %s", ErrStrictIngest, strings.Join(failed, ", "))
		}
		log.Warn("continuing with a reduced prompt",
			zap.Int("ingested", asm.Len()),
			zap.Strings("skipped", failed),
		)
	}
	if err := writeManifest(report.ManifestPath, manifest); err != nil {
		return report, err
	}

	client := invoke.New(deps.Completer, invoke.Options{
		Policy:         cfg.Policy,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		Sleep:          deps.Sleep,
		Logger:         log,
		Metrics:        deps.Metrics,
	})
	log.Info("requesting reasoning", zap.Int("prompt_chars", len([]rune(asm.String()))))

	invokeStart := time.Now()
	res, err := client.Invoke(ctx, core.Request{
		Instruction: cfg.Instruction.Text(),
		User:        asm.String(),
		Model:       cfg.Model,
		Effort:      string(cfg.Effort),
	})
	report.Attempts = res.Attempts
	report.Remaining = res.Remaining
	manifest.Invocation = &schema.Invocation{
		Attempts:  res.Attempts,
		Remaining: res.Remaining,
		Duration:  time.Since(invokeStart).Round(time.Millisecond).String(),
	}
	if err != nil {
		manifest.Invocation.Outcome = "failed"
		manifest.Invocation.Error = redact.Truncate(err.Error(), 512)
		if werr := writeManifest(report.ManifestPath, manifest); werr != nil {
			log.Error("failed to rewrite manifest", zap.String("error", redact.Secrets(werr.Error())))
		}
		writeMetrics(log, deps.Metrics, cfg.MetricsFile)
		return report, fmt.Errorf("reasoning failed: %w", err)
	}
	manifest.Invocation.Outcome = "succeeded"

	report.Text = res.Text
	report.OutputPath = filepath.Join(cfg.OutputDir, OutputFilename)
	if err := localio.WriteText(report.OutputPath, res.Text); err != nil {
		return report, err
	}
	manifest.OutputPath = report.OutputPath
	if err := writeManifest(report.ManifestPath, manifest); err != nil {
		return report, err
	}
	writeMetrics(log, deps.Metrics, cfg.MetricsFile)

	log.Info("run complete",
		zap.String("output", report.OutputPath),
		zap.Int("attempts", res.Attempts),
		zap.Int("remaining", res.Remaining),
		zap.Duration("duration", time.Since(runStart).Round(time.Millisecond)),
	)
	return report, nil
}

func writeManifest(path string, m schema.Manifest) error {
	b, err := schema.MarshalManifest(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return localio.WriteText(path, string(b))
}

// writeMetrics logs and drops export failures.
func writeMetrics(log *zap.Logger, m *metrics.Metrics, path string) {
	if err := m.WriteTextfile(path); err != nil {
		log.Warn("failed to write metrics", zap.String("error", redact.Secrets(err.Error())))
	}
}
