package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

type testConfig struct {
	Var1 string `envconfig:"VAR1"`
	Var2 string `envconfig:"VAR2"`
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	return path
}

// unset clears key for the test and restores it afterwards.
func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadConfigFiles(t *testing.T) {
	unset(t, "VAR1")
	unset(t, "VAR2")
	path := writeEnv(t, "VAR1=hello\nVAR2=world\n")

	var cfg testConfig
	if err := LoadConfigFiles(&ConfigFile{Path: path, Config: &cfg}); err != nil {
		t.Fatalf("LoadConfigFiles: %v", err)
	}
	if cfg.Var1 != "hello" || cfg.Var2 != "world" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigs(t *testing.T) {
	t.Setenv("VAR1", "foo")
	t.Setenv("VAR2", "bar")

	var cfg testConfig
	if err := LoadConfigs(&cfg); err != nil {
		t.Fatalf("LoadConfigs: %v", err)
	}
	if cfg.Var1 != "foo" || cfg.Var2 != "bar" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFiles_FileNotFound(t *testing.T) {
	var cfg testConfig
	err := LoadConfigFiles(&ConfigFile{Path: "nonexistent.env", Config: &cfg})
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	unset(t, "VAR1")
	t.Setenv("VAR2", "from-env")
	path := writeEnv(t, "VAR1=from-file\nVAR2=from-file\n")

	var cfg testConfig
	if err := LoadEnv(path, &cfg, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if cfg.Var1 != "from-file" || cfg.Var2 != "from-env" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	t.Setenv("VAR1", "only-env")

	var cfg testConfig
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env"), &cfg, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("LoadEnv with a missing file: %v", err)
	}
	if cfg.Var1 != "only-env" {
		t.Errorf("Var1 = %q", cfg.Var1)
	}
}
