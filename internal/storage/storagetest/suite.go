// Package storagetest holds the behaviour every storage backend must share.
// Backend packages embed Suite in their own test suites.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/storage"
)

// Suite runs the storage contract against the backend returned by NewStorage
type Suite struct {
	suite.Suite

	// NewStorage returns an empty store; it is called before every test
	NewStorage func() storage.Storage

	Store storage.Storage
	Ctx   context.Context
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func (s *Suite) SetupTest() {
	s.Store = s.NewStorage()
	s.Ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

func newRoom(code model.RoomCode) *model.Room {
	return &model.Room{
		Code:        code,
		Mode:        model.ModeMultiplayer,
		HostAddress: "0xhost",
		Status:      model.RoomStatusWaiting,
		Seed:        42,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

// Room tests

func (s *Suite) TestInsertAndGetRoom() {
	res, err := s.Store.InsertRoom(s.Ctx, newRoom("ABC1"))
	s.Require().NoError(err)
	s.True(res.Created)

	room, err := s.Store.GetRoom(s.Ctx, "ABC1")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC1"), room.Code)
	s.Equal(model.ModeMultiplayer, room.Mode)
	s.Equal("0xhost", room.HostAddress)
	s.Equal(int64(42), room.Seed)
	s.True(baseTime.Equal(room.CreatedAt))
}

func (s *Suite) TestInsertRoomReturnsExistingOnFoldedCollision() {
	_, err := s.Store.InsertRoom(s.Ctx, newRoom("ABC1"))
	s.Require().NoError(err)

	other := newRoom("abc1")
	other.HostAddress = "0xother"
	res, err := s.Store.InsertRoom(s.Ctx, other)
	s.Require().NoError(err)
	s.False(res.Created)
	s.Equal(model.RoomCode("ABC1"), res.Room.Code)
	s.Equal("0xhost", res.Room.HostAddress)
}

func (s *Suite) TestGetRoomIsExact() {
	_, err := s.Store.InsertRoom(s.Ctx, newRoom("ABC1"))
	s.Require().NoError(err)

	_, err = s.Store.GetRoom(s.Ctx, "abc1")
	s.ErrorIs(err, model.ErrRoomNotFound)

	room, err := s.Store.FindRoomFold(s.Ctx, "abc1")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC1"), room.Code)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Store.GetRoom(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrRoomNotFound)

	_, err = s.Store.FindRoomFold(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestUpdateRoom() {
	_, err := s.Store.InsertRoom(s.Ctx, newRoom("ABC1"))
	s.Require().NoError(err)

	updated, err := s.Store.UpdateRoom(s.Ctx, "abc1", func(r *model.Room) error {
		r.GuestAddress = "0xguest"
		r.HostReady = true
		return nil
	})
	s.Require().NoError(err)
	s.Equal("0xguest", updated.GuestAddress)
	s.Equal(model.RoomCode("ABC1"), updated.Code)

	room, err := s.Store.GetRoom(s.Ctx, "ABC1")
	s.Require().NoError(err)
	s.Equal("0xguest", room.GuestAddress)
	s.True(room.HostReady)
}

func (s *Suite) TestUpdateRoomMutateErrorAbortsWrite() {
	_, err := s.Store.InsertRoom(s.Ctx, newRoom("ABC1"))
	s.Require().NoError(err)

	_, err = s.Store.UpdateRoom(s.Ctx, "ABC1", func(r *model.Room) error {
		r.GuestAddress = "0xguest"
		return model.ErrRoomFull
	})
	s.ErrorIs(err, model.ErrRoomFull)

	room, err := s.Store.GetRoom(s.Ctx, "ABC1")
	s.Require().NoError(err)
	s.Empty(room.GuestAddress)
}

func (s *Suite) TestUpdateRoomNotFound() {
	_, err := s.Store.UpdateRoom(s.Ctx, "missing", func(r *model.Room) error { return nil })
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestConcurrentUpdatesAreNotLost() {
	_, err := s.Store.InsertRoom(s.Ctx, newRoom("ABC1"))
	s.Require().NoError(err)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Store.UpdateRoom(s.Ctx, "ABC1", func(r *model.Room) error {
				r.Seed++
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	room, err := s.Store.GetRoom(s.Ctx, "ABC1")
	s.Require().NoError(err)
	s.Equal(int64(42+workers), room.Seed)
}

func (s *Suite) TestConcurrentInsertCreatesOnce() {
	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Store.InsertRoom(s.Ctx, newRoom("RACE"))
			s.NoError(err)
			if err == nil && res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, created)
}

// Match tests

func matchFor(id model.MatchID, room *model.RoomCode, address string, score int64, at time.Time) *model.Match {
	return &model.Match{
		ID:        id,
		RoomCode:  room,
		Address:   address,
		Score:     score,
		Coins:     3,
		Mode:      model.ModeVersus,
		CreatedAt: at,
	}
}

func (s *Suite) TestFindRecentMatchWithinWindow() {
	code := model.RoomCode("ABC1")
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("11111111-1111-1111-1111-111111111111", &code, "0xa", 100, baseTime)))

	lower := model.RoomCode("abc1")
	found, err := s.Store.FindRecentMatch(s.Ctx, model.MatchKey{RoomCode: &lower, Address: "0xa", Score: 100}, baseTime.Add(-10*time.Second))
	s.Require().NoError(err)
	s.Equal(model.MatchID("11111111-1111-1111-1111-111111111111"), found.ID)
	s.Require().NotNil(found.RoomCode)
	s.Equal(code, *found.RoomCode)
}

func (s *Suite) TestFindRecentMatchOutsideWindow() {
	code := model.RoomCode("ABC1")
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("11111111-1111-1111-1111-111111111111", &code, "0xa", 100, baseTime)))

	_, err := s.Store.FindRecentMatch(s.Ctx, model.MatchKey{RoomCode: &code, Address: "0xa", Score: 100}, baseTime.Add(time.Second))
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestFindRecentMatchSeparatesNullRoom() {
	code := model.RoomCode("ABC1")
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("11111111-1111-1111-1111-111111111111", &code, "0xa", 100, baseTime)))

	since := baseTime.Add(-time.Second)
	_, err := s.Store.FindRecentMatch(s.Ctx, model.MatchKey{Address: "0xa", Score: 100}, since)
	s.ErrorIs(err, model.ErrMatchNotFound)

	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("22222222-2222-2222-2222-222222222222", nil, "0xa", 100, baseTime)))
	found, err := s.Store.FindRecentMatch(s.Ctx, model.MatchKey{Address: "0xa", Score: 100}, since)
	s.Require().NoError(err)
	s.Equal(model.MatchID("22222222-2222-2222-2222-222222222222"), found.ID)
	s.Nil(found.RoomCode)
}

func (s *Suite) TestFindRecentMatchDifferentScore() {
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("11111111-1111-1111-1111-111111111111", nil, "0xa", 100, baseTime)))

	_, err := s.Store.FindRecentMatch(s.Ctx, model.MatchKey{Address: "0xa", Score: 101}, baseTime.Add(-time.Second))
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestFindRecentMatchSeparatorsDoNotCollide() {
	stored := model.RoomCode("a:5")
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("11111111-1111-1111-1111-111111111111", &stored, "x", 1, baseTime)))

	other := model.RoomCode("a")
	_, err := s.Store.FindRecentMatch(s.Ctx, model.MatchKey{RoomCode: &other, Address: "1:x", Score: 5}, baseTime.Add(-time.Second))
	s.ErrorIs(err, model.ErrMatchNotFound)

	found, err := s.Store.FindRecentMatch(s.Ctx, model.MatchKey{RoomCode: &stored, Address: "x", Score: 1}, baseTime.Add(-time.Second))
	s.Require().NoError(err)
	s.Equal(model.MatchID("11111111-1111-1111-1111-111111111111"), found.ID)
}

func (s *Suite) TestListMatchesNewestFirst() {
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("11111111-1111-1111-1111-111111111111", nil, "0xa", 1, baseTime)))
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("22222222-2222-2222-2222-222222222222", nil, "0xa", 2, baseTime.Add(time.Minute))))
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("33333333-3333-3333-3333-333333333333", nil, "0xa", 3, baseTime.Add(2*time.Minute))))
	s.Require().NoError(s.Store.InsertMatch(s.Ctx, matchFor("44444444-4444-4444-4444-444444444444", nil, "0xb", 4, baseTime)))

	matches, err := s.Store.ListMatches(s.Ctx, "0xa", 2)
	s.Require().NoError(err)
	s.Require().Len(matches, 2)
	s.Equal(int64(3), matches[0].Score)
	s.Equal(int64(2), matches[1].Score)

	matches, err = s.Store.ListMatches(s.Ctx, "0xnobody", 10)
	s.Require().NoError(err)
	s.Empty(matches)
}
