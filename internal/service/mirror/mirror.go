// Package mirror copies the roster into a spreadsheet in the background.
package mirror

import (
	"context"
	"sync"
	"time"

	"registrar/internal/domain"
	"registrar/internal/model"
	"registrar/internal/store"

	"go.uber.org/zap"
)

const DefaultInterval = 10 * time.Minute

// RosterSource is the part of a store session the mirror reads from.
type RosterSource interface {
	Load(ctx context.Context, force bool) (store.Source, error)
	Records() []model.Registrant
}

type Mirror struct {
	logger       *zap.Logger
	SheetService domain.SheetService
	Roster       RosterSource

	ticker        *time.Ticker
	forceUpdateCh chan struct{}
	stopCh        chan struct{}
	doneCh        chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
}

// NewMirror starts the background loop. The mirror must own roster: a store
// session is not shared with any other caller.
func NewMirror(sheetService domain.SheetService, roster RosterSource, interval time.Duration, logger *zap.Logger) *Mirror {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		logger:        logger,
		SheetService:  sheetService,
		Roster:        roster,
		ticker:        time.NewTicker(interval),
		forceUpdateCh: make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	go m.backgroundSync()
	return m
}

func (m *Mirror) backgroundSync() {
	defer close(m.doneCh)
	for {
		select {
		case <-m.ticker.C:
			m.sync()
		case <-m.forceUpdateCh:
			m.sync()
		case <-m.stopCh:
			m.ticker.Stop()
			return
		}
	}
}

func (m *Mirror) sync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, err := m.Roster.Load(m.ctx, false)
	if err != nil {
		m.logger.Error("error loading roster for mirror", zap.Error(err))
		return
	}
	records := m.Roster.Records()
	if err := m.SheetService.WriteRoster(m.ctx, records); err != nil {
		m.logger.Error("error writing roster to sheet", zap.Error(err), zap.Int("records", len(records)))
		return
	}
	m.logger.Info("roster mirrored to sheet",
		zap.Int("records", len(records)),
		zap.Stringer("source", source),
	)
}

// ForceUpdate asks for a sync right away. It does not wait for it.
func (m *Mirror) ForceUpdate() {
	select {
	case m.forceUpdateCh <- struct{}{}:
	default:
	}
}

// Stop ends the loop and waits for a running sync to finish.
func (m *Mirror) Stop() {
	close(m.stopCh)
	m.cancel()
	<-m.doneCh
}
