package simproc

import (
	"testing"
)

func TestSanitizeExtraAcceptsWellFormedFlags(t *testing.T) {
	in := []string{
		"--beta=30.5",
		"--xpm-mode=physics",
		"--n2=1e-17",
		"--verbose",
		"--a-eff=0.5e-12",
		"--Seed=42",
	}
	out := SanitizeExtra(in)
	if len(out) != len(in) {
		t.Fatalf("expected all %d flags accepted, got %d: %v", len(in), len(out), out)
	}
}

func TestSanitizeExtraDropsInjectionAttempts(t *testing.T) {
	in := []string{
		"; rm -rf /",
		"--beta=30.5",
		"$(reboot)",
		"--flag=va lue",
		"-x",
		"--=3",
		"--1bad",
		"beta=1",
	}
	out := SanitizeExtra(in)
	if len(out) != 1 || out[0] != "--beta=30.5" {
		t.Fatalf("expected only --beta=30.5 to survive, got %v", out)
	}
	for _, kept := range out {
		if kept == "; rm -rf /" {
			t.Fatalf("injection attempt survived sanitization")
		}
	}
}

func TestSanitizeExtraEmpty(t *testing.T) {
	if out := SanitizeExtra(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}

func TestSanitizeExtraAllRejectedIsNil(t *testing.T) {
	// "nothing survived" and "nothing was given" must be the same value, so
	// downstream cache identities see one canonical empty form.
	out := SanitizeExtra([]string{"; rm -rf /", "$(reboot)"})
	if out != nil {
		t.Fatalf("expected nil when every entry is rejected, got %#v", out)
	}
}
