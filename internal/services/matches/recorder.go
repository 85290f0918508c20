// Package matches records finished-match results, collapsing repeated
// submissions of the same result into one record.
package matches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/arcaderooms/internal/dependencies/clock"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/notify"
	"github.com/mcoot/arcaderooms/internal/storage"
	"github.com/mcoot/arcaderooms/internal/syncutil"
)

const (
	// DefaultDedupWindow is how far back a submission looks for a duplicate
	DefaultDedupWindow = 10 * time.Second

	// DefaultListLimit caps List when the caller gives no limit
	DefaultListLimit = 50

	// MaxListLimit caps List regardless of the caller
	MaxListLimit = 500
)

// Recorder stores match results
type Recorder struct {
	store     storage.MatchStore
	publisher notify.Publisher
	clock     clock.Clock
	locks     *syncutil.KeyedMutex
	window    time.Duration
	logger    *slog.Logger
}

// NewRecorder creates a Recorder. A non-positive window uses
// DefaultDedupWindow.
func NewRecorder(store storage.MatchStore, publisher notify.Publisher, clock clock.Clock, window time.Duration, logger *slog.Logger) *Recorder {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Recorder{
		store:     store,
		publisher: publisher,
		clock:     clock,
		locks:     syncutil.NewKeyedMutex(),
		window:    window,
		logger:    logger.With(slog.String("component", "matches")),
	}
}

// SubmitParams are the inputs of Submit
type SubmitParams struct {
	RoomCode *model.RoomCode // nil for matches played outside a room
	Address  string
	Score    int64
	Coins    int64
	Mode     model.Mode
}

// SubmitResult is the stored match plus whether it was already there
type SubmitResult struct {
	Match     *model.Match
	Duplicate bool
}

func (p SubmitParams) validate() error {
	if p.Address == "" {
		return fmt.Errorf("%w: address is required", model.ErrValidation)
	}
	if !p.Mode.IsValid() {
		return fmt.Errorf("%w: mode must be one of %v", model.ErrValidation, model.ValidModes())
	}
	if p.RoomCode != nil {
		if err := p.RoomCode.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Submit records a match result. A result with the same room, address and
// score recorded within the de-dup window is returned instead of a new one.
func (r *Recorder) Submit(ctx context.Context, p SubmitParams) (*SubmitResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	key := model.MatchKey{RoomCode: p.RoomCode, Address: p.Address, Score: p.Score}
	unlock := r.locks.Lock(key.String())
	defer unlock()

	now := r.clock.Now()
	existing, err := r.store.FindRecentMatch(ctx, key, now.Add(-r.window))
	switch {
	case err == nil:
		r.logger.Info("duplicate match submission",
			slog.String("match_id", string(existing.ID)),
			slog.String("address", p.Address),
			slog.Int64("score", p.Score))
		return &SubmitResult{Match: existing, Duplicate: true}, nil
	case !errors.Is(err, model.ErrMatchNotFound):
		return nil, fmt.Errorf("failed to look up recent match: %w", err)
	}

	match := &model.Match{
		ID:        model.MatchID(uuid.NewString()),
		RoomCode:  p.RoomCode,
		Address:   p.Address,
		Score:     p.Score,
		Coins:     p.Coins,
		Mode:      p.Mode,
		CreatedAt: now,
	}
	if err := r.store.InsertMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to save match: %w", err)
	}

	r.logger.Info("match recorded",
		slog.String("match_id", string(match.ID)),
		slog.String("address", match.Address),
		slog.Int64("score", match.Score),
		slog.String("mode", string(match.Mode)))

	event := model.LifecycleEvent{
		Type:      model.LifecycleMatchRecorded,
		Address:   match.Address,
		MatchID:   match.ID,
		Score:     match.Score,
		Timestamp: now,
	}
	if match.RoomCode != nil {
		event.RoomCode = *match.RoomCode
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish match event",
			slog.String("match_id", string(match.ID)),
			slog.String("error", err.Error()))
	}

	return &SubmitResult{Match: match}, nil
}

// List returns an address's matches, newest first
func (r *Recorder) List(ctx context.Context, address string, limit int) ([]*model.Match, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", model.ErrValidation)
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return r.store.ListMatches(ctx, address, limit)
}
