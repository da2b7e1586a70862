package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/shpitdev/docdiff-reasoner/pkg/azureopenai"
)

const (
	providerAzure  = "azure"
	providerGemini = "gemini"

	defaultAzureModel  = "o3-mini"
	defaultGeminiModel = "gemini-2.5-pro"
)

// settings is the fully resolved CLI configuration.
type settings struct {
	Provider string

	OpenAIKey        string
	OpenAIEndpoint   string
	OpenAIAPIVersion string

	GeminiKey     string
	GeminiBaseURL string

	Model  string
	Effort string

	SourceDir  string
	InterimDir string
	OutputDir  string

	InstructionFile string
	Strict          bool
	RateLimitRPS    float64
	RequestTimeout  time.Duration
	MetricsFile     string
	Render          bool
	Verbose         bool
}

// registerFlags declares every setting. Flag defaults only document the fallback;
// resolution happens in resolveSettings so the environment can sit in between.
func registerFlags(fs *pflag.FlagSet) {
	fs.String("provider", providerAzure, "Reasoning backend: azure or gemini (env: REASONING_PROVIDER)")
	fs.String("openai-key", "", "Azure OpenAI API key (env: AZURE_OPENAI_API_KEY)")
	fs.String("openai-endpoint", "", "Azure OpenAI endpoint (env: AZURE_OPENAI_ENDPOINT)")
	fs.String("openai-api-version", azureopenai.DefaultAPIVersion, "Azure OpenAI API version (env: AZURE_OPENAI_API_VERSION)")
	fs.String("gemini-key", "", "Gemini API key, provider gemini only (env: GEMINI_API_KEY)")
	fs.String("gemini-base-url", "", "Gemini API base URL override (env: GEMINI_BASE_URL)")
	fs.String("reasoning-model", defaultAzureModel, "Model or deployment name (env: REASONING_MODEL)")
	fs.String("reason-effort", "medium", "Reasoning effort: low, medium or high (env: REASON_EFFORT)")
	fs.String("source-dir", "source", "Directory holding the two source PDFs (env: SOURCE_DIR)")
	fs.String("interim-dir", "interim", "Directory for extracted text and the run manifest (env: INTERIM_DIR)")
	fs.String("output-dir", "output", "Directory for output.md (env: OUTPUT_DIR)")
	fs.String("instruction-file", "", "Override the built-in instruction text (env: REASONING_PROMPT_FILE)")
	fs.Bool("strict", false, "Abort if any document fails to convert (env: STRICT_INGEST)")
	fs.Float64("rate-limit-rps", 0, "Max request attempts per second, 0 disables (env: RATE_LIMIT_RPS)")
	fs.Duration("request-timeout", 0, "Per-attempt timeout, 0 uses the client default (env: REQUEST_TIMEOUT)")
	fs.String("metrics-file", "", "Write Prometheus metrics to this textfile (env: METRICS_FILE)")
	fs.Bool("render", false, "Render the report to stdout as formatted markdown (env: RENDER_REPORT)")
	fs.Bool("verbose", false, "Enable debug logging (env: VERBOSE)")
}

// resolveSettings applies flag (if set) > environment > default for every setting.
func resolveSettings(fs *pflag.FlagSet) (settings, error) {
	var s settings
	var err error

	strs := []struct {
		dst      *string
		flag     string
		env      string
		fallback string
	}{
		{&s.Provider, "provider", "REASONING_PROVIDER", providerAzure},
		{&s.OpenAIKey, "openai-key", "AZURE_OPENAI_API_KEY", ""},
		{&s.OpenAIEndpoint, "openai-endpoint", "AZURE_OPENAI_ENDPOINT", ""},
		{&s.OpenAIAPIVersion, "openai-api-version", "AZURE_OPENAI_API_VERSION", azureopenai.DefaultAPIVersion},
		{&s.GeminiKey, "gemini-key", "GEMINI_API_KEY", ""},
		{&s.GeminiBaseURL, "gemini-base-url", "GEMINI_BASE_URL", ""},
		{&s.Model, "reasoning-model", "REASONING_MODEL", ""},
		{&s.Effort, "reason-effort", "REASON_EFFORT", "medium"},
		{&s.SourceDir, "source-dir", "SOURCE_DIR", "source"},
		{&s.InterimDir, "interim-dir", "INTERIM_DIR", "interim"},
		{&s.OutputDir, "output-dir", "OUTPUT_DIR", "output"},
		{&s.InstructionFile, "instruction-file", "REASONING_PROMPT_FILE", ""},
		{&s.MetricsFile, "metrics-file", "METRICS_FILE", ""},
	}
	for _, f := range strs {
		if *f.dst, err = stringSetting(fs, f.flag, f.env, f.fallback); err != nil {
			return settings{}, err
		}
	}

	bools := []struct {
		dst  *bool
		flag string
		env  string
	}{
		{&s.Strict, "strict", "STRICT_INGEST"},
		{&s.Render, "render", "RENDER_REPORT"},
		{&s.Verbose, "verbose", "VERBOSE"},
	}
	for _, f := range bools {
		if *f.dst, err = boolSetting(fs, f.flag, f.env); err != nil {
			return settings{}, err
		}
	}

	if s.RateLimitRPS, err = floatSetting(fs, "rate-limit-rps", "RATE_LIMIT_RPS", 0); err != nil {
		return settings{}, err
	}
	if s.RequestTimeout, err = durationSetting(fs, "request-timeout", "REQUEST_TIMEOUT", 0); err != nil {
		return settings{}, err
	}

	s.Provider = strings.ToLower(s.Provider)
	switch s.Provider {
	case providerAzure:
		if s.Model == "" {
			s.Model = defaultAzureModel
		}
	case providerGemini:
		if s.Model == "" {
			s.Model = defaultGeminiModel
		}
	default:
		return settings{}, fmt.Errorf("invalid provider %q (want azure or gemini)", s.Provider)
	}
	if s.RateLimitRPS < 0 {
		return settings{}, fmt.Errorf("invalid rate limit %g: must be >= 0", s.RateLimitRPS)
	}
	if s.RequestTimeout < 0 {
		return settings{}, fmt.Errorf("invalid request timeout %s: must be >= 0", s.RequestTimeout)
	}
	return s, nil
}

// requireCredentials checks the secrets the selected provider needs.
func (s settings) requireCredentials() error {
	switch s.Provider {
	case providerGemini:
		if s.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required (or --gemini-key)")
		}
	default:
		if s.OpenAIKey == "" {
			return fmt.Errorf("AZURE_OPENAI_API_KEY is required (or --openai-key)")
		}
		if s.OpenAIEndpoint == "" {
			return fmt.Errorf("AZURE_OPENAI_ENDPOINT is required (or --openai-endpoint)")
		}
	}
	return nil
}

func stringSetting(fs *pflag.FlagSet, name, envVar, fallback string) (string, error) {
	if fs.Changed(name) {
		v, err := fs.GetString(name)
		return strings.TrimSpace(v), err
	}
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v, nil
	}
	return fallback, nil
}

func boolSetting(fs *pflag.FlagSet, name, envVar string) (bool, error) {
	if fs.Changed(name) {
		return fs.GetBool(name)
	}
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return false, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", envVar, v, err)
	}
	return out, nil
}

func floatSetting(fs *pflag.FlagSet, name, envVar string, fallback float64) (float64, error) {
	if fs.Changed(name) {
		return fs.GetFloat64(name)
	}
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", envVar, v, err)
	}
	return out, nil
}

func durationSetting(fs *pflag.FlagSet, name, envVar string, fallback time.Duration) (time.Duration, error) {
	if fs.Changed(name) {
		return fs.GetDuration(name)
	}
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", envVar, v, err)
	}
	return out, nil
}
