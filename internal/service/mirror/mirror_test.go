package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"registrar/internal/model"
	"registrar/internal/store"
)

type fakeSource struct {
	mu      sync.Mutex
	loads   []bool
	err     error
	records []model.Registrant
}

func (f *fakeSource) Load(_ context.Context, force bool) (store.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, force)
	return store.SourceCache, f.err
}

func (f *fakeSource) Records() []model.Registrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records
}

type fakeSheet struct {
	writes chan []model.Registrant
}

func (f *fakeSheet) WriteRoster(_ context.Context, records []model.Registrant) error {
	f.writes <- records
	return nil
}

func TestForceUpdateWritesRoster(t *testing.T) {
	src := &fakeSource{records: []model.Registrant{{Name: "A", RegistrationID: "SC-B-0001"}}}
	sheet := &fakeSheet{writes: make(chan []model.Registrant, 1)}
	m := NewMirror(sheet, src, time.Hour, zaptest.NewLogger(t))
	defer m.Stop()

	m.ForceUpdate()
	select {
	case got := <-sheet.writes:
		if len(got) != 1 || got[0].Name != "A" {
			t.Errorf("written records = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no write after ForceUpdate")
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.loads) != 1 || src.loads[0] {
		t.Errorf("loads = %v, want one unforced load", src.loads)
	}
}

func TestLoadFailureSkipsWrite(t *testing.T) {
	src := &fakeSource{err: errors.New("offline")}
	sheet := &fakeSheet{writes: make(chan []model.Registrant, 1)}
	m := NewMirror(sheet, src, 10*time.Millisecond, zaptest.NewLogger(t))

	deadline := time.Now().Add(5 * time.Second)
	for {
		src.mu.Lock()
		n := len(src.loads)
		src.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	select {
	case <-sheet.writes:
		t.Error("roster written after a failed load")
	default:
	}
}
