package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeValueRedactsSecretsAndHashesIDs(t *testing.T) {
	if got := sanitizeValue("access_token", "abc"); got != "[REDACTED]" {
		t.Fatalf("token: want redacted, got %v", got)
	}
	if got := sanitizeValue("signed_url", "https://storage/x?sig=1"); got != "[REDACTED]" {
		t.Fatalf("signed url: want redacted, got %v", got)
	}
	got, ok := sanitizeValue("owner_user_id", "7f1c").(string)
	if !ok || len(got) != len("hash:")+12 {
		t.Fatalf("user id: want short hash, got %v", got)
	}
	if got := sanitizeValue("pipeline_id", "p-1"); got != "p-1" {
		t.Fatalf("pipeline id should pass through, got %v", got)
	}
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"phase", "style_review", "orphan"})
	if len(out) != 3 || out[2] != "orphan" {
		t.Fatalf("unexpected kvs: %v", out)
	}
}

func TestNewTeesIntoLogPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	t.Setenv("LOG_PATH", path)
	log, err := New("prod")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("pipeline advanced", "phase", "style_pending")
	log.Sync()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"pipeline advanced"`) {
		t.Fatalf("log file missing entry: %s", raw)
	}
}
