package domain

import (
	"context"
	"time"

	"registrar/internal/model"
)

type RosterRemote interface {
	// Fetch returns the full roster and its revision. A missing document
	// yields an empty roster and an empty revision.
	Fetch(ctx context.Context) ([]model.Registrant, string, error)

	// Put replaces the whole roster iff revision matches the remote one.
	// An empty revision asserts that the document does not exist yet.
	Put(ctx context.Context, records []model.Registrant, revision, message string) (string, error)
}

type RevenueLedger interface {
	// RecordRegistration appends a registration fee entry for r.
	RecordRegistration(ctx context.Context, r model.Registrant, at time.Time) error
}

// SessionStorage is the session-local persistent key/value storage.
type SessionStorage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
