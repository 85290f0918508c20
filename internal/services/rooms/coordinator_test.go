package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/arcaderooms/internal/dependencies/mocks"
	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/services/shipcache"
	"github.com/mcoot/arcaderooms/internal/storage"
	"github.com/mcoot/arcaderooms/internal/storage/memory"
	"github.com/mcoot/arcaderooms/internal/testutil"
)

// laggyStore hides rooms from FindRoomFold to imitate read-after-write lag
type laggyStore struct {
	*memory.Storage

	mu sync.Mutex
	// lagAfterInsert is how many reads miss after a successful insert
	lagAfterInsert int
	// missNext is how many upcoming reads miss regardless of inserts
	missNext int
	hidden   int
}

func (l *laggyStore) InsertRoom(ctx context.Context, room *model.Room) (storage.InsertResult, error) {
	res, err := l.Storage.InsertRoom(ctx, room)
	if err == nil && res.Created {
		l.mu.Lock()
		l.hidden = l.lagAfterInsert
		l.mu.Unlock()
	}
	return res, err
}

func (l *laggyStore) FindRoomFold(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	l.mu.Lock()
	if l.missNext > 0 {
		l.missNext--
		l.mu.Unlock()
		return nil, model.ErrRoomNotFound
	}
	if l.hidden > 0 {
		l.hidden--
		l.mu.Unlock()
		return nil, model.ErrRoomNotFound
	}
	l.mu.Unlock()
	return l.Storage.FindRoomFold(ctx, code)
}

type CoordinatorSuite struct {
	suite.Suite
	store       *laggyStore
	ships       *shipcache.Cache
	publisher   *mocks.MockPublisher
	clock       *mocks.MockClock
	random      *mocks.MockRandom
	cfg         Config
	coordinator *Coordinator
	ctx         context.Context
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.store = &laggyStore{Storage: memory.New()}
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.publisher = mocks.NewMockPublisher()
	s.ships = shipcache.New(s.clock, shipcache.DefaultConfig(), testutil.NopLogger())
	s.cfg = DefaultConfig()
	s.cfg.ReadBackDelay = time.Millisecond
	s.rebuild()
	s.ctx = context.Background()
}

func (s *CoordinatorSuite) rebuild() {
	s.coordinator = NewCoordinator(s.store, s.ships, s.publisher, s.clock, s.random, s.cfg, testutil.NopLogger())
}

var viper = &model.ShipLoadout{Rarity: "rare", Name: "Viper", Class: "interceptor", Image: "ships/viper.png"}

func (s *CoordinatorSuite) create(code model.RoomCode, mode model.Mode, host string) *model.RoomView {
	res, err := s.coordinator.Create(s.ctx, CreateParams{Code: code, Mode: mode, Address: host})
	s.Require().NoError(err)
	return res.View
}

func (s *CoordinatorSuite) join(code model.RoomCode, guest string) *model.RoomView {
	res, err := s.coordinator.Join(s.ctx, JoinParams{Code: code, Address: guest})
	s.Require().NoError(err)
	return res.View
}

// Create tests

func (s *CoordinatorSuite) TestCreateSucceeds() {
	s.random.QueueSeed(7)

	res, err := s.coordinator.Create(s.ctx, CreateParams{
		Code: "ABC1", Mode: model.ModeMultiplayer, Address: "0xhost", Ship: viper,
	})
	s.Require().NoError(err)

	s.True(res.Created)
	room := res.View.Room
	s.Equal(model.RoomCode("ABC1"), room.Code)
	s.Equal(model.ModeMultiplayer, room.Mode)
	s.Equal("0xhost", room.HostAddress)
	s.Empty(room.GuestAddress)
	s.False(room.HostReady)
	s.False(room.GuestReady)
	s.Equal(model.RoomStatusWaiting, room.Status)
	s.Equal(int64(7), room.Seed)
	s.Equal(s.clock.Now(), room.CreatedAt)
	s.Equal(*viper, res.View.HostShip)
	s.Nil(res.View.GuestShip)
	s.Equal([]string{model.LifecycleRoomCreated}, s.publisher.Types())
}

func (s *CoordinatorSuite) TestCreateWithoutShipUsesBaseline() {
	view := s.create("ABC1", model.ModeSolo, "0xhost")
	s.Equal(model.BaselineShip(), view.HostShip)
}

func (s *CoordinatorSuite) TestCreateIsIdempotent() {
	first := s.create("ABC1", model.ModeMultiplayer, "0xhost")

	res, err := s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeMultiplayer, Address: "0xhost"})
	s.Require().NoError(err)

	s.False(res.Created)
	s.Equal(first.Room.HostAddress, res.View.Room.HostAddress)
	s.Equal(first.Room.Status, res.View.Room.Status)
	s.Equal(first.Room.Seed, res.View.Room.Seed)
	s.Equal([]string{model.LifecycleRoomCreated}, s.publisher.Types())
}

func (s *CoordinatorSuite) TestCreateIsCaseInsensitive() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")

	res, err := s.coordinator.Create(s.ctx, CreateParams{Code: "abc1", Mode: model.ModeMultiplayer, Address: "0xhost"})
	s.Require().NoError(err)
	s.False(res.Created)
	s.Equal(model.RoomCode("ABC1"), res.View.Room.Code)
}

func (s *CoordinatorSuite) TestCreateUpdatesModeOfExistingRoom() {
	s.create("ABC1", model.ModeSolo, "0xhost")

	res, err := s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeVersus, Address: "0xhost"})
	s.Require().NoError(err)
	s.Equal(model.ModeVersus, res.View.Room.Mode)

	view, err := s.coordinator.Get(s.ctx, "ABC1")
	s.Require().NoError(err)
	s.Equal(model.ModeVersus, view.Room.Mode)
}

func (s *CoordinatorSuite) TestCreateCannotDropMultiplayerWithGuest() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")
	s.join("ABC1", "0xguest")

	_, err := s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeSolo, Address: "0xhost"})
	s.ErrorIs(err, model.ErrModeLocked)

	view, err := s.coordinator.Get(s.ctx, "ABC1")
	s.Require().NoError(err)
	s.Equal(model.ModeMultiplayer, view.Room.Mode)
}

func (s *CoordinatorSuite) TestCreateRefreshesShipOnlyForHost() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")

	_, err := s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeMultiplayer, Address: "0xother", Ship: viper})
	s.Require().NoError(err)
	view, _ := s.coordinator.Get(s.ctx, "ABC1")
	s.Equal(model.BaselineShip(), view.HostShip)

	_, err = s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeMultiplayer, Address: "0xhost", Ship: viper})
	s.Require().NoError(err)
	view, _ = s.coordinator.Get(s.ctx, "ABC1")
	s.Equal(*viper, view.HostShip)
}

func (s *CoordinatorSuite) TestCreateValidation() {
	tests := []CreateParams{
		{Code: "", Mode: model.ModeSolo, Address: "0xhost"},
		{Code: "AB C", Mode: model.ModeSolo, Address: "0xhost"},
		{Code: "ABC1", Mode: "coop", Address: "0xhost"},
		{Code: "ABC1", Mode: "", Address: "0xhost"},
		{Code: "ABC1", Mode: model.ModeSolo, Address: ""},
	}
	for _, p := range tests {
		_, err := s.coordinator.Create(s.ctx, p)
		s.ErrorIs(err, model.ErrValidation, "%+v", p)
	}

	_, err := s.coordinator.Get(s.ctx, "ABC1")
	s.ErrorIs(err, model.ErrRoomNotFound, "rejected requests leave no room behind")
}

func (s *CoordinatorSuite) TestCreateRetriesReadBack() {
	s.store.lagAfterInsert = 1

	res, err := s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeSolo, Address: "0xhost"})
	s.Require().NoError(err)
	s.True(res.Created)
	s.Equal(model.RoomCode("ABC1"), res.View.Room.Code)
}

func (s *CoordinatorSuite) TestCreateFailsWhenRoomNeverVisible() {
	s.store.lagAfterInsert = 2

	_, err := s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeSolo, Address: "0xhost"})
	s.ErrorIs(err, model.ErrRoomNotPersisted)
	s.NotErrorIs(err, model.ErrRoomNotFound)
}

func (s *CoordinatorSuite) TestCreateReadBackHonoursContext() {
	s.store.lagAfterInsert = 5
	s.cfg.ReadBackRetries = 3
	s.cfg.ReadBackDelay = time.Hour
	s.rebuild()

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()

	_, err := s.coordinator.Create(ctx, CreateParams{Code: "ABC1", Mode: model.ModeSolo, Address: "0xhost"})
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *CoordinatorSuite) TestCreateLostInsertRace() {
	_, err := s.store.Storage.InsertRoom(s.ctx, &model.Room{
		Code: "ABC1", Mode: model.ModeMultiplayer, HostAddress: "0xfirst", Status: model.RoomStatusWaiting,
	})
	s.Require().NoError(err)
	// The pre-insert lookup misses, as if the other writer's row were not yet visible
	s.store.missNext = 1

	res, err := s.coordinator.Create(s.ctx, CreateParams{Code: "abc1", Mode: model.ModeMultiplayer, Address: "0xsecond"})
	s.Require().NoError(err)
	s.False(res.Created)
	s.Equal("0xfirst", res.View.Room.HostAddress)
	s.Empty(s.publisher.Types())
}

func (s *CoordinatorSuite) TestConcurrentCreateInsertsOnce() {
	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		hosts   = map[string]bool{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := model.RoomCode("RACE")
			if i%2 == 1 {
				code = "race"
			}
			res, err := s.coordinator.Create(s.ctx, CreateParams{Code: code, Mode: model.ModeMultiplayer, Address: fmt.Sprintf("0x%02d", i)})
			s.NoError(err)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Created {
				created++
			}
			hosts[res.View.Room.HostAddress] = true
		}(i)
	}
	wg.Wait()

	s.Equal(1, created)
	s.Len(hosts, 1, "every caller sees the same host")
}

// Get tests

func (s *CoordinatorSuite) TestGetExactAndFolded() {
	s.create("AbC1", model.ModeSolo, "0xhost")

	view, err := s.coordinator.Get(s.ctx, "AbC1")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("AbC1"), view.Room.Code)

	view, err = s.coordinator.Get(s.ctx, "ABC1")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("AbC1"), view.Room.Code)
}

func (s *CoordinatorSuite) TestGetNotFound() {
	_, err := s.coordinator.Get(s.ctx, "NOPE")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *CoordinatorSuite) TestGetFillsGuestShipWithBaseline() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")
	s.join("ABC1", "0xguest")

	view, err := s.coordinator.Get(s.ctx, "ABC1")
	s.Require().NoError(err)
	s.Require().NotNil(view.GuestShip)
	s.Equal(model.BaselineShip(), *view.GuestShip)
}

// Join tests

func (s *CoordinatorSuite) TestJoinSucceeds() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")

	res, err := s.coordinator.Join(s.ctx, JoinParams{Code: "abc1", Address: "0xguest", Ship: viper})
	s.Require().NoError(err)

	s.False(res.AlreadyJoined)
	s.Equal("0xguest", res.View.Room.GuestAddress)
	s.Equal(model.RoomStatusWaiting, res.View.Room.Status)
	s.Require().NotNil(res.View.GuestShip)
	s.Equal(*viper, *res.View.GuestShip)
	s.Equal([]string{model.LifecycleRoomCreated, model.LifecycleRoomJoined}, s.publisher.Types())
}

func (s *CoordinatorSuite) TestJoinNonMultiplayerFails() {
	for _, mode := range []model.Mode{model.ModeSolo, model.ModeVersus} {
		code := model.RoomCode("R-" + string(mode))
		s.create(code, mode, "0xhost")

		_, err := s.coordinator.Join(s.ctx, JoinParams{Code: code, Address: "0xguest"})
		s.ErrorIs(err, model.ErrNotMultiplayer)
		s.Equal(model.KindConflict, model.KindOf(err))
	}
}

func (s *CoordinatorSuite) TestJoinAgainAsGuestIsIdempotent() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")
	s.join("ABC1", "0xguest")
	before, _ := s.coordinator.Get(s.ctx, "ABC1")

	s.clock.Advance(time.Minute)
	res, err := s.coordinator.Join(s.ctx, JoinParams{Code: "ABC1", Address: "0xguest", Ship: viper})
	s.Require().NoError(err)

	s.True(res.AlreadyJoined)
	s.Equal("0xguest", res.View.Room.GuestAddress)
	s.Equal(before.Room.UpdatedAt, res.View.Room.UpdatedAt, "room is unchanged")
	s.Equal(*viper, *res.View.GuestShip, "loadout is refreshed")
	s.Equal([]string{model.LifecycleRoomCreated, model.LifecycleRoomJoined}, s.publisher.Types())
}

func (s *CoordinatorSuite) TestJoinThirdAddressIsRoomFull() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")
	s.join("ABC1", "0xguest")

	_, err := s.coordinator.Join(s.ctx, JoinParams{Code: "ABC1", Address: "0xthird"})
	s.ErrorIs(err, model.ErrRoomFull)

	view, _ := s.coordinator.Get(s.ctx, "ABC1")
	s.Equal("0xguest", view.Room.GuestAddress)
}

func (s *CoordinatorSuite) TestJoinOwnRoomFails() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")

	_, err := s.coordinator.Join(s.ctx, JoinParams{Code: "ABC1", Address: "0xhost"})
	s.ErrorIs(err, model.ErrHostCannotJoin)
}

func (s *CoordinatorSuite) TestJoinFinishedRoomFails() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")
	_, err := s.coordinator.Finish(s.ctx, TransitionParams{Code: "ABC1"})
	s.Require().NoError(err)

	_, err = s.coordinator.Join(s.ctx, JoinParams{Code: "ABC1", Address: "0xguest"})
	s.ErrorIs(err, model.ErrRoomNotJoinable)
}

func (s *CoordinatorSuite) TestJoinStartedRoomKeepsPlaying() {
	_, err := s.coordinator.Start(s.ctx, TransitionParams{Code: "ABC1", Address: "0xhost"})
	s.Require().NoError(err)

	view := s.join("ABC1", "0xguest")
	s.Equal(model.RoomStatusPlaying, view.Room.Status)
}

func (s *CoordinatorSuite) TestJoinMissingRoom() {
	_, err := s.coordinator.Join(s.ctx, JoinParams{Code: "NOPE", Address: "0xguest"})
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *CoordinatorSuite) TestConcurrentJoinsSeatOneGuest() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		full   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.coordinator.Join(s.ctx, JoinParams{Code: "ABC1", Address: fmt.Sprintf("0xg%d", i)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, model.ErrRoomFull):
				full++
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, joined)
	s.Equal(7, full)
}

// SetReady tests

func (s *CoordinatorSuite) TestSetReadyPerRole() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")
	s.join("ABC1", "0xguest")

	view, err := s.coordinator.SetReady(s.ctx, "ABC1", "0xhost", true)
	s.Require().NoError(err)
	s.True(view.Room.HostReady)
	s.False(view.Room.GuestReady)

	view, err = s.coordinator.SetReady(s.ctx, "ABC1", "0xguest", true)
	s.Require().NoError(err)
	s.True(view.Room.GuestReady)
	s.Equal(model.RoomStatusWaiting, view.Room.Status, "ready never starts the room")

	view, err = s.coordinator.SetReady(s.ctx, "ABC1", "0xhost", false)
	s.Require().NoError(err)
	s.False(view.Room.HostReady)
}

func (s *CoordinatorSuite) TestSetReadyForbiddenForStranger() {
	s.create("ABC1", model.ModeMultiplayer, "0xhost")

	_, err := s.coordinator.SetReady(s.ctx, "ABC1", "0xstranger", true)
	s.ErrorIs(err, model.ErrNotParticipant)
	s.Equal(model.KindForbidden, model.KindOf(err))
}

// Start / Finish tests

func (s *CoordinatorSuite) TestFullLifecycleScenario() {
	view := s.create("ABC1", model.ModeMultiplayer, "0xH")
	s.Equal(model.RoomStatusWaiting, view.Room.Status)
	s.Empty(view.Room.GuestAddress)

	view = s.join("ABC1", "0xG")
	s.Equal("0xG", view.Room.GuestAddress)
	s.Equal(model.RoomStatusWaiting, view.Room.Status)

	_, err := s.coordinator.SetReady(s.ctx, "ABC1", "0xH", true)
	s.Require().NoError(err)
	view, err = s.coordinator.SetReady(s.ctx, "ABC1", "0xG", true)
	s.Require().NoError(err)
	s.True(view.Room.HostReady)
	s.True(view.Room.GuestReady)

	res, err := s.coordinator.Start(s.ctx, TransitionParams{Code: "ABC1"})
	s.Require().NoError(err)
	s.Equal(model.RoomStatusPlaying, res.Room.Status)

	res, err = s.coordinator.Finish(s.ctx, TransitionParams{Code: "ABC1"})
	s.Require().NoError(err)
	s.Equal(model.RoomStatusFinished, res.Room.Status)

	res, err = s.coordinator.Start(s.ctx, TransitionParams{Code: "ABC1"})
	s.Require().NoError(err)
	s.True(res.Skipped)
	s.Equal(model.RoomStatusFinished, res.Room.Status)

	view, err = s.coordinator.Get(s.ctx, "ABC1")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusFinished, view.Room.Status)

	s.Equal([]string{
		model.LifecycleRoomCreated,
		model.LifecycleRoomJoined,
		model.LifecycleRoomStarted,
		model.LifecycleRoomFinished,
	}, s.publisher.Types())
}

func (s *CoordinatorSuite) TestStatusNeverRegresses() {
	s.create("ABC1", model.ModeSolo, "0xhost")

	calls := []func() (*TransitionResult, error){
		func() (*TransitionResult, error) { return s.coordinator.Finish(s.ctx, TransitionParams{Code: "ABC1"}) },
		func() (*TransitionResult, error) { return s.coordinator.Start(s.ctx, TransitionParams{Code: "ABC1"}) },
		func() (*TransitionResult, error) { return s.coordinator.Start(s.ctx, TransitionParams{Code: "abc1"}) },
		func() (*TransitionResult, error) { return s.coordinator.Finish(s.ctx, TransitionParams{Code: "ABC1"}) },
	}

	last := model.RoomStatusWaiting
	for _, call := range calls {
		res, err := call()
		s.Require().NoError(err)
		s.False(res.Room.Status.Before(last))
		last = res.Room.Status
	}
	s.Equal(model.RoomStatusFinished, last)
}

func (s *CoordinatorSuite) TestStartTwiceIsNoop() {
	s.create("ABC1", model.ModeSolo, "0xhost")

	first, err := s.coordinator.Start(s.ctx, TransitionParams{Code: "ABC1"})
	s.Require().NoError(err)
	s.False(first.Skipped)

	second, err := s.coordinator.Start(s.ctx, TransitionParams{Code: "ABC1"})
	s.Require().NoError(err)
	s.True(second.Skipped)
	s.Equal(model.RoomStatusPlaying, second.Room.Status)
}

func (s *CoordinatorSuite) TestStartMissingRoomWithAddressCreatesIt() {
	s.random.QueueSeed(99)

	res, err := s.coordinator.Start(s.ctx, TransitionParams{Code: "NEW1", Address: "0xhost", Mode: model.ModeVersus})
	s.Require().NoError(err)

	s.True(res.Created)
	s.Equal(model.RoomStatusPlaying, res.Room.Status)
	s.Equal(model.ModeVersus, res.Room.Mode)
	s.Equal("0xhost", res.Room.HostAddress)
	s.Equal(int64(99), res.Room.Seed)
	s.Equal([]string{model.LifecycleRoomCreated, model.LifecycleRoomStarted}, s.publisher.Types())
}

func (s *CoordinatorSuite) TestFinishMissingRoomDefaultsToMultiplayer() {
	res, err := s.coordinator.Finish(s.ctx, TransitionParams{Code: "NEW1", Address: "0xhost"})
	s.Require().NoError(err)

	s.True(res.Created)
	s.Equal(model.RoomStatusFinished, res.Room.Status)
	s.Equal(model.ModeMultiplayer, res.Room.Mode)
}

func (s *CoordinatorSuite) TestStartMissingRoomWithoutAddressIsLenient() {
	res, err := s.coordinator.Start(s.ctx, TransitionParams{Code: "NOPE"})
	s.Require().NoError(err)
	s.True(res.Skipped)
	s.Nil(res.Room)

	_, err = s.coordinator.Get(s.ctx, "NOPE")
	s.ErrorIs(err, model.ErrRoomNotFound)
	s.Empty(s.publisher.Types())
}

func (s *CoordinatorSuite) TestStrictLifecycleRejectsUnknownRoom() {
	s.cfg.StrictLifecycle = true
	s.rebuild()

	_, err := s.coordinator.Finish(s.ctx, TransitionParams{Code: "NOPE"})
	s.ErrorIs(err, model.ErrRoomNotFound)

	res, err := s.coordinator.Finish(s.ctx, TransitionParams{Code: "NOPE", Address: "0xhost"})
	s.Require().NoError(err)
	s.True(res.Created, "the address recovery path stays available")
}

func (s *CoordinatorSuite) TestStartRejectsInvalidMode() {
	_, err := s.coordinator.Start(s.ctx, TransitionParams{Code: "ABC1", Address: "0xhost", Mode: "coop"})
	s.ErrorIs(err, model.ErrValidation)
}

func (s *CoordinatorSuite) TestPublishFailureDoesNotFailCall() {
	s.publisher.Err = errors.New("bus down")

	res, err := s.coordinator.Create(s.ctx, CreateParams{Code: "ABC1", Mode: model.ModeSolo, Address: "0xhost"})
	s.Require().NoError(err)
	s.True(res.Created)
}
