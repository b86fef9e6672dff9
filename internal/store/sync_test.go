package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap/zaptest"

	"registrar/internal/credential"
	"registrar/internal/document"
	"registrar/internal/domain"
	"registrar/internal/github"
	"registrar/internal/github/githubtest"
	"registrar/internal/model"
	"registrar/internal/repository/memory"
)

const syncToken = "ghp_sync"

var (
	rosterLoc  = github.Location{Owner: "club", Repo: "verify", Path: "registrants.json"}
	revenueLoc = github.Location{Owner: "club", Repo: "income", Path: "revenues.json"}
)

// newSession wires a store the way the binary does, against srv.
func newSession(t *testing.T, srv *githubtest.Server) *Store {
	t.Helper()
	logger := zaptest.NewLogger(t)
	storage := memory.New()
	creds := credential.NewKeeper(storage, credential.DefaultKey)
	if err := creds.Set(context.Background(), syncToken); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	client := github.NewClient(srv.URL, creds, logger)
	return New(Config{
		Roster:      document.NewRoster(client.File(rosterLoc), logger),
		Storage:     storage,
		Ledger:      document.NewRevenue(client.File(revenueLoc), 0, logger),
		Credentials: creds,
		Verifier:    client,
	}, logger)
}

func TestConcurrentSessionsConflict(t *testing.T) {
	srv := githubtest.NewServer(t, syncToken)
	ctx := context.Background()
	a, b := newSession(t, srv), newSession(t, srv)

	for _, s := range []*Store{a, b} {
		if _, err := s.Load(ctx, true); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}

	if _, err := a.Create(ctx, jane()); err != nil {
		t.Fatalf("session A Create: %v", err)
	}

	in := jane()
	in.Name, in.Roll = "John Roe", "1202425012399"
	in.Gender = model.GenderFemale
	if _, err := b.Create(ctx, in); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("session B Create = %v, want conflict", err)
	}

	if _, err := b.Load(ctx, true); err != nil {
		t.Fatalf("session B reload: %v", err)
	}
	got, err := b.Create(ctx, in)
	if err != nil {
		t.Fatalf("session B Create after reload: %v", err)
	}
	if got.RegistrationID != "SC-G-0002" {
		t.Errorf("id = %q, want SC-G-0002", got.RegistrationID)
	}

	raw, _ := srv.Content("club/verify/registrants.json")
	records, err := document.DecodeRoster(raw)
	if err != nil || len(records) != 2 {
		t.Fatalf("remote roster = %d records, %v", len(records), err)
	}
	revenue, ok := srv.Content("club/income/revenues.json")
	if !ok {
		t.Fatal("no revenue document written")
	}
	var entries []map[string]any
	if err := json.Unmarshal(revenue, &entries); err != nil || len(entries) != 2 {
		t.Errorf("revenue entries = %d, %v", len(entries), err)
	}
}

func TestRevenueFailureKeepsRegistration(t *testing.T) {
	srv := githubtest.NewServer(t, syncToken)
	ctx := context.Background()
	s := newSession(t, srv)
	if _, err := s.Load(ctx, true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// roster GET is served from memory, so the next GET is the revenue fetch
	srv.FailNext(http.MethodGet, http.StatusBadGateway)
	if _, err := s.Create(ctx, jane()); err != nil {
		t.Fatalf("Create = %v, want success", err)
	}
	if _, ok := srv.Content("club/income/revenues.json"); ok {
		t.Error("revenue document written despite the failure")
	}
	if _, ok := srv.Content("club/verify/registrants.json"); !ok {
		t.Error("registration was not persisted")
	}
}

func TestRejectedCredentialIsForgotten(t *testing.T) {
	srv := githubtest.NewServer(t, "ghp_other")
	ctx := context.Background()
	s := newSession(t, srv)

	if _, err := s.Load(ctx, true); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Load = %v, want auth error", err)
	}
	if ok, _ := s.Authenticated(ctx); ok {
		t.Error("rejected credential is still stored")
	}
	if _, err := s.Load(ctx, true); !errors.Is(err, domain.ErrAuth) {
		t.Errorf("Load without credential = %v, want auth error", err)
	}
	if err := s.Login(ctx, "ghp_other"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := s.Load(ctx, true); err != nil {
		t.Errorf("Load after login: %v", err)
	}
}
