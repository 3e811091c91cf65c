package simproc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grapheneaffiliate/plogic-core/internal/workerpool"
)

func TestParseJSONOrRaw(t *testing.T) {
	out := ParseJSONOrRaw(`{"logic_margin": 5.0}`)
	var m map[string]float64
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("expected structured JSON back: %v", err)
	}
	if m["logic_margin"] != 5.0 {
		t.Fatalf("expected logic_margin 5.0, got %v", m)
	}

	out = ParseJSONOrRaw("margin: 4.2\nsome diagnostic text")
	var wrapped map[string]string
	if err := json.Unmarshal(out, &wrapped); err != nil {
		t.Fatalf("raw wrapper should be valid JSON: %v", err)
	}
	if !strings.Contains(wrapped["raw"], "margin: 4.2") {
		t.Fatalf("expected raw text preserved, got %q", wrapped["raw"])
	}
}

func TestBuildEnvAppendsSourceDirOnlyWhenPresent(t *testing.T) {
	inherited := []string{"HOME=/root"}

	if got := buildEnv(inherited, ""); len(got) != 1 {
		t.Fatalf("empty source dir must not modify env, got %v", got)
	}
	if got := buildEnv(inherited, "/does/not/exist"); len(got) != 1 {
		t.Fatalf("missing source dir must not modify env, got %v", got)
	}

	dir := t.TempDir()
	got := buildEnv(inherited, dir)
	last := got[len(got)-1]
	if !strings.HasPrefix(last, "PYTHONPATH=") || !strings.Contains(last, dir) {
		t.Fatalf("expected PYTHONPATH entry with %s, got %v", dir, got)
	}
}

func TestCLIRunnerCapturesExitCodeAndStreams(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	r, err := NewCLIRunner([]string{"/bin/sh", "-c"}, "", pool)
	if err != nil {
		t.Fatalf("NewCLIRunner: %v", err)
	}

	out, err := r.Run(context.Background(), []string{`echo '{"ok":true}'; echo oops >&2; exit 3`})
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if out.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", out.ExitCode)
	}
	if !strings.Contains(out.Stdout, `"ok":true`) {
		t.Fatalf("stdout not captured: %q", out.Stdout)
	}
	if !strings.Contains(out.Stderr, "oops") {
		t.Fatalf("stderr not captured: %q", out.Stderr)
	}
}

func TestCLIRunnerHonorsDeadline(t *testing.T) {
	pool := workerpool.New(1)
	defer pool.Close()

	r, err := NewCLIRunner([]string{"/bin/sh", "-c"}, "", pool)
	if err != nil {
		t.Fatalf("NewCLIRunner: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = r.Run(ctx, []string{"sleep 5"})
	if err == nil {
		t.Fatalf("expected deadline error")
	}
	if ctx.Err() == nil {
		t.Fatalf("context should have expired")
	}
}

func TestCLIRunnerWritesToWorkDir(t *testing.T) {
	pool := workerpool.New(1)
	defer pool.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "table.csv")
	r, err := NewCLIRunner([]string{"/bin/sh", "-c"}, "", pool)
	if err != nil {
		t.Fatalf("NewCLIRunner: %v", err)
	}
	if _, err := r.Run(context.Background(), []string{"echo a,b > " + target}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected output file written: %v", err)
	}
}
