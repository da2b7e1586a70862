package schema_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/schema"
)

func TestParseEffort(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    schema.Effort
		wantErr bool
	}{
		{name: "default", in: "", want: schema.EffortMedium},
		{name: "low", in: "low", want: schema.EffortLow},
		{name: "mixed case", in: " High ", want: schema.EffortHigh},
		{name: "unknown", in: "extreme", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.ParseEffort(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseEffort(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEffort(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseEffort(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestManifestYAML(t *testing.T) {
	in := schema.Manifest{
		RunID:     "run-1",
		StartedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Provider:  "azure",
		Model:     "o3-mini",
		Effort:    schema.EffortMedium,
		Documents: []schema.Document{
			{Name: "v1.pdf", Stem: "v1", InterimPath: "interim/v1.md", Characters: 42, Status: schema.DocumentOK},
			{Name: "v2.pdf", Stem: "v2", Status: schema.DocumentFailed, Error: "malformed PDF"},
		},
		Invocation: &schema.Invocation{Outcome: "succeeded", Attempts: 2, Remaining: 9},
	}

	b, err := schema.MarshalManifest(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), "run_id: run-1") || !strings.Contains(string(b), "remaining_budget: 9") {
		t.Fatalf("unexpected yaml:\n%s", b)
	}

	got, err := schema.UnmarshalManifest(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	in.Version = schema.ManifestVersion
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
	if got.Ingested() != 1 {
		t.Fatalf("Ingested()=%d want=1", got.Ingested())
	}
}

func TestUnmarshalManifestRejectsUnknownVersion(t *testing.T) {
	if _, err := schema.UnmarshalManifest([]byte("version: 7\nrun_id: x\n")); err == nil {
		t.Fatalf("expected version error")
	}
	if _, err := schema.UnmarshalManifest([]byte("version: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}
