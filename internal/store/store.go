// Package store is the session-side registrant store: an in-memory roster
// backed by one remote JSON document, a session cache with a staleness
// policy, and the business rules for creating, updating and deleting
// registrants.
//
// A Store is one session. It is not safe for concurrent use; callers run its
// operations one after another, the way UI event handlers do. Ordering
// between sessions comes only from the compare-and-swap on the remote
// document revision.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"registrar/internal/credential"
	"registrar/internal/domain"
	"registrar/internal/model"
)

const (
	DefaultTTL = 5 * time.Minute

	defaultKeyPrefix = "registrar.roster"
)

// Source tells where Load took the roster from.
type Source int

const (
	SourceRemote Source = iota
	SourceCache
	SourceStaleCache
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "cache"
	case SourceStaleCache:
		return "stale cache"
	}
	return "unknown"
}

// Verifier validates a credential before it is stored.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) error
}

type Config struct {
	Roster  domain.RosterRemote
	Storage domain.SessionStorage

	// Optional.
	Ledger      domain.RevenueLedger
	Credentials *credential.Keeper
	Verifier    Verifier
	TTL         time.Duration
	Clock       func() time.Time
	KeyPrefix   string
}

type Store struct {
	roster   domain.RosterRemote
	storage  domain.SessionStorage
	ledger   domain.RevenueLedger
	creds    *credential.Keeper
	verifier Verifier
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	snapshotKey string
	cachedAtKey string

	records  []model.Registrant
	revision string
}

type snapshot struct {
	Records  []model.Registrant `json:"records"`
	Revision string             `json:"revision"`
}

func New(cfg Config, logger *zap.Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &Store{
		roster:      cfg.Roster,
		storage:     cfg.Storage,
		ledger:      cfg.Ledger,
		creds:       cfg.Credentials,
		verifier:    cfg.Verifier,
		logger:      logger,
		ttl:         cfg.TTL,
		now:         cfg.Clock,
		snapshotKey: cfg.KeyPrefix,
		cachedAtKey: cfg.KeyPrefix + ".cached_at",
	}
}

// Load fills the session with the roster. A cache entry younger than the
// TTL is adopted without contacting the remote unless force is set. When
// the fetch fails, any cache entry is adopted however old it is; the error
// is returned only when there is nothing to fall back to, or when the
// credential was rejected.
func (s *Store) Load(ctx context.Context, force bool) (Source, error) {
	snap, cachedAt, cached := s.readCache(ctx)
	if cached && !force && s.fresh(cachedAt) {
		s.adopt(snap)
		s.logger.Debug("roster loaded from cache",
			zap.Int("records", len(s.records)),
			zap.Time("cached_at", cachedAt),
		)
		return SourceCache, nil
	}

	records, revision, err := s.roster.Fetch(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			s.forgetCredential(ctx)
			return SourceRemote, err
		}
		if cached {
			s.adopt(snap)
			s.logger.Warn("roster fetch failed, using cached copy",
				zap.Error(err),
				zap.Time("cached_at", cachedAt),
				zap.Int("records", len(s.records)),
			)
			return SourceStaleCache, nil
		}
		return SourceRemote, err
	}

	s.records, s.revision = records, revision
	s.writeCache(ctx)
	s.logger.Info("roster loaded from remote",
		zap.Int("records", len(records)),
		zap.String("revision", revision),
	)
	return SourceRemote, nil
}

// Revision returns the revision of the last known persisted roster.
func (s *Store) Revision() string {
	return s.revision
}

// Login verifies token and keeps it as the session credential.
func (s *Store) Login(ctx context.Context, token string) error {
	if s.creds == nil {
		return errors.New("store has no credential keeper")
	}
	if s.verifier != nil {
		if err := s.verifier.VerifyToken(ctx, token); err != nil {
			return err
		}
	}
	if err := s.creds.Set(ctx, token); err != nil {
		return err
	}
	s.logger.Info("credential stored")
	return nil
}

// Authenticated reports whether a credential is stored.
func (s *Store) Authenticated(ctx context.Context) (bool, error) {
	if s.creds == nil {
		return false, nil
	}
	_, ok, err := s.creds.Get(ctx)
	return ok, err
}

// Logout removes the credential and the cached roster together and empties
// the session.
func (s *Store) Logout(ctx context.Context) error {
	err := s.clearSession(ctx)
	s.logger.Info("session cleared")
	return err
}

func (s *Store) clearSession(ctx context.Context) error {
	var err error
	if s.creds != nil {
		err = multierr.Append(err, s.creds.Forget(ctx))
	}
	err = multierr.Append(err, s.storage.Delete(ctx, s.snapshotKey, s.cachedAtKey))
	s.records, s.revision = nil, ""
	return err
}

// forgetCredential drops a rejected credential together with the cached
// roster and its timestamp, so the next credential starts from the remote.
func (s *Store) forgetCredential(ctx context.Context) {
	if err := s.clearSession(ctx); err != nil {
		s.logger.Error("failed to clear session after rejected credential", zap.Error(err))
		return
	}
	s.logger.Warn("credential rejected by remote, session cleared")
}

func (s *Store) fresh(cachedAt time.Time) bool {
	return !cachedAt.IsZero() && s.now().Sub(cachedAt) < s.ttl
}

func (s *Store) adopt(snap snapshot) {
	s.records = snap.Records
	if s.records == nil {
		s.records = []model.Registrant{}
	}
	s.revision = snap.Revision
}

func (s *Store) readCache(ctx context.Context) (snapshot, time.Time, bool) {
	raw, ok, err := s.storage.Get(ctx, s.snapshotKey)
	if err != nil {
		s.logger.Warn("failed to read cached roster", zap.Error(err))
		return snapshot{}, time.Time{}, false
	}
	if !ok {
		return snapshot{}, time.Time{}, false
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.logger.Warn("cached roster is corrupt, ignoring it", zap.Error(err))
		return snapshot{}, time.Time{}, false
	}

	// a missing or unreadable timestamp only makes the entry stale
	var cachedAt time.Time
	if ts, ok, err := s.storage.Get(ctx, s.cachedAtKey); err == nil && ok {
		cachedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return snap, cachedAt, true
}

func (s *Store) writeCache(ctx context.Context) {
	raw, err := json.Marshal(snapshot{Records: s.records, Revision: s.revision})
	if err != nil {
		s.logger.Warn("failed to encode roster for cache", zap.Error(err))
		return
	}
	err = multierr.Combine(
		s.storage.Set(ctx, s.snapshotKey, string(raw)),
		s.storage.Set(ctx, s.cachedAtKey, s.now().Format(time.RFC3339Nano)),
	)
	if err != nil {
		s.logger.Warn("failed to write roster cache", zap.Error(err))
	}
}
