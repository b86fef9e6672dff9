package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStorage(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Get(ctx, "a"); ok || err != nil {
		t.Fatalf("Get on empty storage = %v, %v", ok, err)
	}
	if err := s.Set(ctx, "a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "b", "2"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := s.Get(ctx, "a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
	if err := s.Delete(ctx, "a", "b", "missing"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Error("b survived Delete")
	}
}

func TestStorageSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.gob")

	s, err := NewWithFile(path)
	if err != nil {
		t.Fatalf("NewWithFile on missing file: %v", err)
	}
	if err := s.Set(ctx, "registrar.credential", "ghp_x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "registrar.roster", `{"records":[]}`); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "registrar.roster"); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewWithFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok, _ := reopened.Get(ctx, "registrar.credential"); !ok || v != "ghp_x" {
		t.Errorf("credential after restart = %q, %v", v, ok)
	}
	if _, ok, _ := reopened.Get(ctx, "registrar.roster"); ok {
		t.Error("deleted key came back after restart")
	}
}
