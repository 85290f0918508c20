package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	rooms   map[string]*model.Room // keyed by case-folded code
	matches []*model.Match         // insertion order
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		rooms: make(map[string]*model.Room),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) Ping(ctx context.Context) error { return nil }

func (s *Storage) Close() error { return nil }

// Room operations

func (s *Storage) InsertRoom(ctx context.Context, room *model.Room) (storage.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rooms[room.Code.Key()]; ok {
		return storage.InsertResult{Room: existing.Clone(), Created: false}, nil
	}
	s.rooms[room.Code.Key()] = room.Clone()
	return storage.InsertResult{Room: room.Clone(), Created: true}, nil
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code.Key()]
	if !ok || room.Code != code {
		return nil, model.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Storage) FindRoomFold(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code.Key()]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Storage) UpdateRoom(ctx context.Context, code model.RoomCode, mutate func(*model.Room) error) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code.Key()]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	updated := room.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	// The code is the identity of the row and is never rewritten
	updated.Code = room.Code
	s.rooms[code.Key()] = updated
	return updated.Clone(), nil
}

// Match operations

func (s *Storage) FindRecentMatch(ctx context.Context, key model.MatchKey, since time.Time) (*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *model.Match
	for _, m := range s.matches {
		if !key.Matches(m) || m.CreatedAt.Before(since) {
			continue
		}
		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			found = m
		}
	}
	if found == nil {
		return nil, model.ErrMatchNotFound
	}
	return cloneMatch(found), nil
}

func (s *Storage) InsertMatch(ctx context.Context, match *model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, cloneMatch(match))
	return nil
}

func (s *Storage) ListMatches(ctx context.Context, address string, limit int) ([]*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.Match, 0)
	for _, m := range s.matches {
		if m.Address == address {
			result = append(result, cloneMatch(m))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneMatch(m *model.Match) *model.Match {
	c := *m
	if m.RoomCode != nil {
		code := *m.RoomCode
		c.RoomCode = &code
	}
	return &c
}
