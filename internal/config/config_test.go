package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Annotator != AnnotatorSelf {
		t.Errorf("Annotator = %q, want %q", cfg.Annotator, AnnotatorSelf)
	}
	if !cfg.Enabled {
		t.Error("Enabled = false, want true")
	}
	if cfg.TokenBudget != DefaultTokenBudget {
		t.Errorf("TokenBudget = %d, want %d", cfg.TokenBudget, DefaultTokenBudget)
	}
}

func TestApplyEnvPrefersDistillKey(t *testing.T) {
	t.Setenv("DISTILL_API_KEY", "distill-key")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")

	cfg := Default()
	applyEnv(cfg)
	if cfg.APIKey != "distill-key" {
		t.Errorf("APIKey = %q, want distill-key", cfg.APIKey)
	}
}

func TestApplyEnvFallsBackToAnthropicKey(t *testing.T) {
	t.Setenv("DISTILL_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")

	cfg := Default()
	applyEnv(cfg)
	if cfg.APIKey != "anthropic-key" {
		t.Errorf("APIKey = %q, want anthropic-key", cfg.APIKey)
	}
}

func TestMergeFileConfigExplicitFalseDisables(t *testing.T) {
	cfg := Default()
	f := false
	mergeFileConfig(cfg, &rawConfig{Enabled: &f})
	if cfg.Enabled {
		t.Error("Enabled = true, want false after explicit false in file")
	}
}

func TestMergeFileConfigAbsentKeepsDefault(t *testing.T) {
	cfg := Default()
	mergeFileConfig(cfg, &rawConfig{})
	if !cfg.Enabled {
		t.Error("Enabled = false, want true (absent key should not override default)")
	}
}

func TestProjectEnabledMarkerFiles(t *testing.T) {
	dir := t.TempDir()

	if !ProjectEnabled(dir, true) {
		t.Error("expected global=true with no markers to be enabled")
	}
	if ProjectEnabled(dir, false) {
		t.Error("expected global=false with no markers to be disabled")
	}

	if err := os.WriteFile(filepath.Join(dir, ".distill"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !ProjectEnabled(dir, false) {
		t.Error(".distill marker should force-enable regardless of global flag")
	}

	os.Remove(filepath.Join(dir, ".distill"))
	if err := os.WriteFile(filepath.Join(dir, ".nodistill"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if ProjectEnabled(dir, true) {
		t.Error(".nodistill marker should force-disable regardless of global flag")
	}
}
