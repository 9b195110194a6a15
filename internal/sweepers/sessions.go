// Package sweepers contains background maintenance loops.
package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pileworks/bom-service/internal/kvstore"
	"github.com/pileworks/bom-service/internal/metrics"
	"github.com/pileworks/bom-service/internal/session"
	"github.com/pileworks/bom-service/internal/storage"
)

// SessionSweeper periodically removes expired sessions from the key-value
// store and deletes their uploaded files from blob storage.
type SessionSweeper struct {
	store    kvstore.Store
	gateway  *session.Gateway
	blobs    storage.Blobs
	recorder *metrics.Recorder
	logger   *zerolog.Logger
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
}

// NewSessionSweeper creates a new sweeper for session expiry.
func NewSessionSweeper(store kvstore.Store, gateway *session.Gateway, blobs storage.Blobs, recorder *metrics.Recorder, logger *zerolog.Logger, ttl, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{
		store:    store,
		gateway:  gateway,
		blobs:    blobs,
		recorder: recorder,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic expiry sweep.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("ttl", s.ttl).
		Msg("Starting session sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Session sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Session sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.SweepExpired(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to sweep expired sessions")
			}
		}
	}
}

// Stop signals the sweeper to stop.
func (s *SessionSweeper) Stop() {
	close(s.stopChan)
}

// SweepExpired removes every persisted session older than the TTL, along
// with its uploaded files.
func (s *SessionSweeper) SweepExpired(ctx context.Context) error {
	s.logger.Debug().Msg("Running session expiry sweep")

	keys, err := s.store.List(ctx, session.AllPrefix)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.ttl)
	swept := 0
	for _, key := range keys {
		id, ok := session.IDFromMetaKey(key)
		if !ok {
			continue
		}
		restored, found := s.gateway.Load(ctx, id)
		if found && restored.Session.SavedAt.After(cutoff) {
			continue
		}
		// A session whose meta cannot be parsed is unrecoverable; remove
		// it along with expired ones.
		if err := s.gateway.Delete(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("session", id).Msg("Failed to delete expired session")
			continue
		}
		if s.blobs != nil {
			if err := s.blobs.DeletePrefix(ctx, storage.UploadPrefix(id)); err != nil {
				s.logger.Warn().Err(err).Str("session", id).Msg("Failed to delete uploaded files")
			}
		}
		swept++
	}

	if swept > 0 {
		if s.recorder != nil {
			s.recorder.RecordSessionsSwept(swept)
		}
		s.logger.Info().Int("swept", swept).Msg("Removed expired sessions")
	}

	return nil
}
