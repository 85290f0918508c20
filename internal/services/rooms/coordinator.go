// Package rooms owns the room state machine: create, join, ready, start and
// finish. Every transition is safe to repeat.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/arcaderooms/internal/dependencies/clock"
	"github.com/mcoot/arcaderooms/internal/dependencies/random"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/notify"
	"github.com/mcoot/arcaderooms/internal/services/shipcache"
	"github.com/mcoot/arcaderooms/internal/storage"
	"github.com/mcoot/arcaderooms/internal/syncutil"
)

// errUnchanged aborts an UpdateRoom without writing
var errUnchanged = errors.New("room unchanged")

// Config tunes coordinator behaviour
type Config struct {
	// ReadBackRetries is how many extra reads a freshly created room gets
	// before it is declared lost
	ReadBackRetries int

	// ReadBackDelay is the pause before each extra read
	ReadBackDelay time.Duration

	// StrictLifecycle makes start/finish on an unknown room without an
	// address fail with ErrRoomNotFound instead of succeeding silently
	StrictLifecycle bool
}

// DefaultConfig returns the coordinator defaults
func DefaultConfig() Config {
	return Config{
		ReadBackRetries: 1,
		ReadBackDelay:   200 * time.Millisecond,
		StrictLifecycle: false,
	}
}

// Coordinator manages the room state machine
type Coordinator struct {
	store     storage.RoomStore
	ships     *shipcache.Cache
	publisher notify.Publisher
	clock     clock.Clock
	random    random.Random
	locks     *syncutil.KeyedMutex
	cfg       Config
	logger    *slog.Logger
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(
	store storage.RoomStore,
	ships *shipcache.Cache,
	publisher notify.Publisher,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		store:     store,
		ships:     ships,
		publisher: publisher,
		clock:     clock,
		random:    random,
		locks:     syncutil.NewKeyedMutex(),
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "rooms")),
	}
}

// CreateParams are the inputs of Create
type CreateParams struct {
	Code    model.RoomCode
	Mode    model.Mode
	Address string
	Ship    *model.ShipLoadout // nil keeps whatever loadout is cached
}

// CreateResult is a room view plus whether this call inserted the room
type CreateResult struct {
	View    *model.RoomView
	Created bool
}

// JoinParams are the inputs of Join
type JoinParams struct {
	Code    model.RoomCode
	Address string
	Ship    *model.ShipLoadout
}

// JoinResult is a room view plus whether the caller already held the guest slot
type JoinResult struct {
	View          *model.RoomView
	AlreadyJoined bool
}

// TransitionParams are the inputs of Start and Finish. Address and Mode are
// optional and only used when the room has to be created.
type TransitionParams struct {
	Code    model.RoomCode
	Address string
	Mode    model.Mode
}

// TransitionResult reports the outcome of Start or Finish
type TransitionResult struct {
	// Room is nil when the room does not exist and could not be created
	Room *model.Room

	// Created is true when the room was created directly in the target status
	Created bool

	// Skipped is true when the room was already at or past the target status,
	// or was missing with no address to create it from
	Skipped bool
}

func validateMode(mode model.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: mode must be one of %v", model.ErrValidation, model.ValidModes())
	}
	return nil
}

func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", model.ErrValidation)
	}
	return nil
}

// Create creates a room, or returns the existing one when the code is taken.
// An existing room has its mode updated and the host's loadout refreshed.
func (c *Coordinator) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	if err := p.Code.Validate(); err != nil {
		return nil, err
	}
	if err := validateMode(p.Mode); err != nil {
		return nil, err
	}
	if err := validateAddress(p.Address); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(p.Code.Key())
	defer unlock()

	existing, err := c.store.FindRoomFold(ctx, p.Code)
	switch {
	case err == nil:
		return c.reenterCreate(ctx, existing, p)
	case !errors.Is(err, model.ErrRoomNotFound):
		return nil, fmt.Errorf("look up room: %w", err)
	}

	now := c.clock.Now()
	room := &model.Room{
		Code:        p.Code,
		Mode:        p.Mode,
		HostAddress: p.Address,
		Status:      model.RoomStatusWaiting,
		Seed:        c.random.Seed(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	res, err := c.store.InsertRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	if !res.Created {
		// Lost the race to another writer; behave as if the room had existed
		return c.reenterCreate(ctx, res.Room, p)
	}

	c.storeShip(p.Code, model.RoleHost, p.Ship)

	stored, err := c.readBack(ctx, p.Code)
	if err != nil {
		return nil, err
	}

	c.logger.Info("room created",
		slog.String("room_code", string(stored.Code)),
		slog.String("mode", string(stored.Mode)),
		slog.String("host", stored.HostAddress),
	)
	c.publish(ctx, model.LifecycleRoomCreated, stored, stored.HostAddress)

	return &CreateResult{View: c.view(stored), Created: true}, nil
}

// reenterCreate is the idempotent branch of Create for a room that exists
func (c *Coordinator) reenterCreate(ctx context.Context, existing *model.Room, p CreateParams) (*CreateResult, error) {
	if existing.Mode != p.Mode {
		_, err := c.store.UpdateRoom(ctx, existing.Code, func(r *model.Room) error {
			if r.Mode == p.Mode {
				return errUnchanged
			}
			if r.HasGuest() && p.Mode != model.ModeMultiplayer {
				return model.ErrModeLocked
			}
			r.Mode = p.Mode
			r.UpdatedAt = c.clock.Now()
			return nil
		})
		if err != nil && !errors.Is(err, errUnchanged) {
			return nil, fmt.Errorf("update room mode: %w", err)
		}
	}

	if existing.HostAddress == p.Address {
		c.storeShip(existing.Code, model.RoleHost, p.Ship)
	}

	// Re-read so the returned view never carries a stale mode
	room, err := c.store.FindRoomFold(ctx, existing.Code)
	if err != nil {
		return nil, fmt.Errorf("reload room: %w", err)
	}
	return &CreateResult{View: c.view(room), Created: false}, nil
}

// readBack waits for a freshly inserted room to become visible
func (c *Coordinator) readBack(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	for attempt := 0; ; attempt++ {
		room, err := c.store.FindRoomFold(ctx, code)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, model.ErrRoomNotFound) {
			return nil, fmt.Errorf("read back room: %w", err)
		}
		if attempt >= c.cfg.ReadBackRetries {
			c.logger.Error("created room never became visible",
				slog.String("room_code", string(code)),
				slog.Int("attempts", attempt+1),
			)
			return nil, model.ErrRoomNotPersisted
		}

		timer := time.NewTimer(c.cfg.ReadBackDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Get returns a room by code, trying an exact match before a
// case-insensitive one
func (c *Coordinator) Get(ctx context.Context, code model.RoomCode) (*model.RoomView, error) {
	if err := code.Validate(); err != nil {
		return nil, err
	}
	room, err := c.find(ctx, code)
	if err != nil {
		return nil, err
	}
	return c.view(room), nil
}

func (c *Coordinator) find(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	room, err := c.store.GetRoom(ctx, code)
	if errors.Is(err, model.ErrRoomNotFound) {
		room, err = c.store.FindRoomFold(ctx, code)
	}
	return room, err
}

// Join places the caller in the guest slot of a multiplayer room. Repeating
// the call as the current guest succeeds with AlreadyJoined set.
func (c *Coordinator) Join(ctx context.Context, p JoinParams) (*JoinResult, error) {
	if err := p.Code.Validate(); err != nil {
		return nil, err
	}
	if err := validateAddress(p.Address); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(p.Code.Key())
	defer unlock()

	alreadyJoined := false
	room, err := c.store.UpdateRoom(ctx, p.Code, func(r *model.Room) error {
		if r.Mode != model.ModeMultiplayer {
			return model.ErrNotMultiplayer
		}
		if r.HasGuest() {
			if r.GuestAddress == p.Address {
				alreadyJoined = true
				return errUnchanged
			}
			return model.ErrRoomFull
		}
		if r.HostAddress == p.Address {
			return model.ErrHostCannotJoin
		}
		if r.Status == model.RoomStatusFinished {
			return model.ErrRoomNotJoinable
		}
		r.GuestAddress = p.Address
		r.GuestReady = false
		// Status is left alone: a room a participant already started keeps playing
		r.UpdatedAt = c.clock.Now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		room, err = c.store.FindRoomFold(ctx, p.Code)
	}
	if err != nil {
		return nil, err
	}

	c.storeShip(room.Code, model.RoleGuest, p.Ship)

	if !alreadyJoined {
		c.logger.Info("guest joined room",
			slog.String("room_code", string(room.Code)),
			slog.String("guest", room.GuestAddress),
		)
		c.publish(ctx, model.LifecycleRoomJoined, room, p.Address)
	}

	return &JoinResult{View: c.view(room), AlreadyJoined: alreadyJoined}, nil
}

// SetReady sets the caller's ready flag. It never changes the room's status.
func (c *Coordinator) SetReady(ctx context.Context, code model.RoomCode, address string, ready bool) (*model.RoomView, error) {
	if err := code.Validate(); err != nil {
		return nil, err
	}
	if err := validateAddress(address); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(code.Key())
	defer unlock()

	room, err := c.store.UpdateRoom(ctx, code, func(r *model.Room) error {
		role, ok := r.RoleOf(address)
		if !ok {
			return model.ErrNotParticipant
		}
		if role == model.RoleHost {
			r.HostReady = ready
		} else {
			r.GuestReady = ready
		}
		r.UpdatedAt = c.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.view(room), nil
}

// Start moves a room to playing
func (c *Coordinator) Start(ctx context.Context, p TransitionParams) (*TransitionResult, error) {
	return c.transition(ctx, p, model.RoomStatusPlaying, model.LifecycleRoomStarted)
}

// Finish moves a room to finished
func (c *Coordinator) Finish(ctx context.Context, p TransitionParams) (*TransitionResult, error) {
	return c.transition(ctx, p, model.RoomStatusFinished, model.LifecycleRoomFinished)
}

func (c *Coordinator) transition(ctx context.Context, p TransitionParams, target model.RoomStatus, event string) (*TransitionResult, error) {
	if err := p.Code.Validate(); err != nil {
		return nil, err
	}
	if p.Mode != "" {
		if err := validateMode(p.Mode); err != nil {
			return nil, err
		}
	}

	unlock := c.locks.Lock(p.Code.Key())
	defer unlock()

	result, err := c.advance(ctx, p.Code, target)
	if errors.Is(err, model.ErrRoomNotFound) {
		result, err = c.createInStatus(ctx, p, target)
	}
	if err != nil {
		return nil, err
	}

	if result.Room != nil && !result.Skipped {
		c.logger.Info("room status changed",
			slog.String("room_code", string(result.Room.Code)),
			slog.String("status", string(target)),
			slog.Bool("created", result.Created),
		)
		c.publish(ctx, event, result.Room, p.Address)
	}
	return result, nil
}

// advance moves an existing room forward; it never moves one backwards
func (c *Coordinator) advance(ctx context.Context, code model.RoomCode, target model.RoomStatus) (*TransitionResult, error) {
	room, err := c.store.UpdateRoom(ctx, code, func(r *model.Room) error {
		if !r.Advance(target, c.clock.Now()) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		room, err = c.store.FindRoomFold(ctx, code)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Room: room, Skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &TransitionResult{Room: room}, nil
}

// createInStatus handles start/finish for a room the store does not know.
// With an address the room is created directly in the target status.
func (c *Coordinator) createInStatus(ctx context.Context, p TransitionParams, target model.RoomStatus) (*TransitionResult, error) {
	if p.Address == "" {
		if c.cfg.StrictLifecycle {
			return nil, model.ErrRoomNotFound
		}
		c.logger.Warn("lifecycle call for unknown room ignored",
			slog.String("room_code", string(p.Code)),
			slog.String("status", string(target)),
		)
		return &TransitionResult{Skipped: true}, nil
	}

	mode := p.Mode
	if mode == "" {
		mode = model.ModeMultiplayer
	}

	now := c.clock.Now()
	res, err := c.store.InsertRoom(ctx, &model.Room{
		Code:        p.Code,
		Mode:        mode,
		HostAddress: p.Address,
		Status:      target,
		Seed:        c.random.Seed(),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	if !res.Created {
		// Someone else created it meanwhile; advance theirs instead
		return c.advance(ctx, p.Code, target)
	}

	c.logger.Info("room created by lifecycle call",
		slog.String("room_code", string(p.Code)),
		slog.String("status", string(target)),
	)
	c.publish(ctx, model.LifecycleRoomCreated, res.Room, p.Address)
	return &TransitionResult{Room: res.Room, Created: true}, nil
}

func (c *Coordinator) storeShip(code model.RoomCode, role model.Role, ship *model.ShipLoadout) {
	if ship == nil {
		return
	}
	c.ships.SetShip(code, role, *ship)
}

// view joins a room with its cached loadouts. A missing host loadout, or a
// missing loadout for a present guest, is filled with the baseline.
func (c *Coordinator) view(room *model.Room) *model.RoomView {
	ships := c.ships.Ships(room.Code)
	v := &model.RoomView{
		Room:     *room,
		HostShip: model.BaselineShip(),
	}
	if ships.Host != nil {
		v.HostShip = *ships.Host
	}
	if room.HasGuest() {
		guest := model.BaselineShip()
		if ships.Guest != nil {
			guest = *ships.Guest
		}
		v.GuestShip = &guest
	}
	return v
}

func (c *Coordinator) publish(ctx context.Context, eventType string, room *model.Room, address string) {
	event := model.LifecycleEvent{
		Type:      eventType,
		RoomCode:  room.Code,
		Address:   address,
		Status:    string(room.Status),
		Timestamp: c.clock.Now(),
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish room event",
			slog.String("type", eventType),
			slog.String("room_code", string(room.Code)),
			slog.String("error", err.Error()),
		)
	}
}
