package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jwebster45206/questline/pkg/state"
)

// DefaultSaveKey is where the snapshot lives unless configured otherwise.
const DefaultSaveKey = "questline:save"

// SnapshotStore persists the single game snapshot under a fixed key.
// Its methods never return errors: failures are logged and reported as
// false so that a broken store cannot stop play.
type SnapshotStore struct {
	backend Backend
	key     string
	logger  *slog.Logger
	now     func() time.Time
}

// NewSnapshotStore wraps backend. An empty key selects DefaultSaveKey.
func NewSnapshotStore(backend Backend, key string, logger *slog.Logger) *SnapshotStore {
	if key == "" {
		key = DefaultSaveKey
	}
	return &SnapshotStore{
		backend: backend,
		key:     key,
		logger:  logger,
		now:     time.Now,
	}
}

// Key returns the storage key.
func (s *SnapshotStore) Key() string { return s.key }

// Backend returns the wrapped backend.
func (s *SnapshotStore) Backend() Backend { return s.backend }

// Save stamps the save time and writes gs. It reports success.
func (s *SnapshotStore) Save(ctx context.Context, gs *state.GameState) bool {
	if gs == nil {
		s.logger.Error("Refusing to save nil gamestate", "key", s.key)
		return false
	}
	gs.SaveTime = s.now()

	data, err := json.Marshal(gs)
	if err != nil {
		s.logger.Error("Failed to marshal gamestate", "id", gs.ID, "error", err)
		return false
	}

	if err := s.backend.Set(ctx, s.key, data); err != nil {
		s.logger.Error("Failed to save gamestate", "id", gs.ID, "key", s.key, "error", err)
		return false
	}

	s.logger.Debug("Gamestate saved", "id", gs.ID, "bytes", len(data))
	return true
}

// Load returns the saved snapshot. A missing, unreadable, corrupt or
// version-mismatched blob yields false; the last two are deleted.
func (s *SnapshotStore) Load(ctx context.Context) (*state.GameState, bool) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.logger.Error("Failed to load gamestate", "key", s.key, "error", err)
		return nil, false
	}
	if data == nil {
		s.logger.Info("No saved gamestate found", "key", s.key)
		return nil, false
	}

	var gs state.GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		s.logger.Warn("Discarding corrupt gamestate", "key", s.key, "error", err)
		s.discard(ctx)
		return nil, false
	}

	if gs.Version != state.Version {
		s.logger.Warn("Discarding gamestate from another version",
			"key", s.key,
			"saved_version", gs.Version,
			"current_version", state.Version)
		s.discard(ctx)
		return nil, false
	}

	gs.Normalize()
	s.logger.Info("Gamestate loaded", "id", gs.ID, "level", gs.CurrentLevel, "saved_at", gs.SaveTime)
	return &gs, true
}

// Clear deletes the saved snapshot.
func (s *SnapshotStore) Clear(ctx context.Context) bool {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.logger.Error("Failed to clear gamestate", "key", s.key, "error", err)
		return false
	}
	return true
}

func (s *SnapshotStore) discard(ctx context.Context) {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.logger.Error("Failed to delete discarded gamestate", "key", s.key, "error", err)
	}
}

// Ping checks the backend.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close closes the backend.
func (s *SnapshotStore) Close() error {
	return s.backend.Close()
}
