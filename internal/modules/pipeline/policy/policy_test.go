package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.MaxAutoAttempts != 3 || p.EventHistoryLimit != 500 {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p.Routes["pipeline"] != "/pipelines" {
		t.Fatalf("unexpected routes %v", p.Routes)
	}
	if p.Retry().MaxAttempts != 3 {
		t.Fatalf("unexpected retry policy %+v", p.Retry())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("max_auto_attempts: 5\nroutes:\n  render: /studio\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.MaxAutoAttempts != 5 || p.EventHistoryLimit != DefaultEventHistoryLimit || p.Routes["render"] != "/studio" {
		t.Fatalf("unexpected policy %+v", p)
	}
	if got := p.WithMaxAutoAttempts(2).MaxAutoAttempts; got != 2 {
		t.Fatalf("override not applied: %d", got)
	}
	if got := p.WithMaxAutoAttempts(0).MaxAutoAttempts; got != 5 {
		t.Fatalf("zero override must be ignored: %d", got)
	}
}

func TestParseRejectsBadPolicies(t *testing.T) {
	bad := []string{
		"pipeline: learning_build\n",
		"max_auto_attempts: -1\n",
		"routes:\n  render: creations\n",
		"max_auto_attempts: [\n",
	}
	for _, in := range bad {
		if _, err := Parse([]byte(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
