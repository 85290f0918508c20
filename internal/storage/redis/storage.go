package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// unavailable marks a client failure so callers can map it to a 503
func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, model.ErrStoreUnavailable, err)
}

// Room operations

func (s *Storage) InsertRoom(ctx context.Context, room *model.Room) (storage.InsertResult, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return storage.InsertResult{}, err
	}

	key := roomKey(room.Code)
	for {
		ok, err := s.client.SetNX(ctx, key, data, s.cfg.RoomTTL).Result()
		if err != nil {
			return storage.InsertResult{}, unavailable("insert room", err)
		}
		if ok {
			return storage.InsertResult{Room: room.Clone(), Created: true}, nil
		}

		existing, err := s.loadRoom(ctx, s.client, key)
		if errors.Is(err, model.ErrRoomNotFound) {
			// Expired between SETNX and GET; try to claim it again
			continue
		}
		if err != nil {
			return storage.InsertResult{}, err
		}
		return storage.InsertResult{Room: existing, Created: false}, nil
	}
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	room, err := s.loadRoom(ctx, s.client, roomKey(code))
	if err != nil {
		return nil, err
	}
	if room.Code != code {
		return nil, model.ErrRoomNotFound
	}
	return room, nil
}

func (s *Storage) FindRoomFold(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	return s.loadRoom(ctx, s.client, roomKey(code))
}

func (s *Storage) UpdateRoom(ctx context.Context, code model.RoomCode, mutate func(*model.Room) error) (*model.Room, error) {
	key := roomKey(code)

	for attempt := 0; attempt < s.cfg.MaxTxRetries; attempt++ {
		var (
			updated   *model.Room
			mutateErr error
		)

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			room, err := s.loadRoom(ctx, tx, key)
			if err != nil {
				return err
			}

			original := room.Code
			if mutateErr = mutate(room); mutateErr != nil {
				return mutateErr
			}
			room.Code = original

			data, err := json.Marshal(room)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.cfg.RoomTTL)
				return nil
			})
			updated = room
			return err
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case mutateErr != nil:
			return nil, mutateErr
		case errors.Is(err, model.ErrRoomNotFound), errors.Is(err, model.ErrStoreUnavailable):
			return nil, err
		case err != nil:
			return nil, unavailable("update room", err)
		}
		return updated, nil
	}

	return nil, unavailable("update room", fmt.Errorf("gave up after %d conflicting writes", s.cfg.MaxTxRetries))
}

// getter is satisfied by both the client and a watching transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// loadRoom reads a room through either the client or a watching transaction
func (s *Storage) loadRoom(ctx context.Context, c getter, key string) (*model.Room, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, unavailable("get room", err)
	}

	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", key, err)
	}
	return &room, nil
}

// Match operations

func (s *Storage) FindRecentMatch(ctx context.Context, key model.MatchKey, since time.Time) (*model.Match, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, matchDedupIndexKey(key), &redis.ZRangeBy{
		Max:   "+inf",
		Min:   strconv.FormatInt(since.UnixMilli(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, unavailable("find recent match", err)
	}
	if len(ids) == 0 {
		return nil, model.ErrMatchNotFound
	}

	data, err := s.client.Get(ctx, matchKey(model.MatchID(ids[0]))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrMatchNotFound
		}
		return nil, unavailable("get match", err)
	}

	var match model.Match
	if err := json.Unmarshal(data, &match); err != nil {
		return nil, fmt.Errorf("decode match %s: %w", ids[0], err)
	}
	if !key.Matches(&match) {
		return nil, model.ErrMatchNotFound
	}
	return &match, nil
}

func (s *Storage) InsertMatch(ctx context.Context, match *model.Match) error {
	data, err := json.Marshal(match)
	if err != nil {
		return err
	}

	score := float64(match.CreatedAt.UnixMilli())
	dedupKey := matchDedupIndexKey(match.DedupKey())

	// Use a transaction for atomic save + index update
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, matchKey(match.ID), data, s.cfg.MatchTTL)
		pipe.ZAdd(ctx, dedupKey, redis.Z{Score: score, Member: string(match.ID)})
		pipe.Expire(ctx, dedupKey, s.cfg.DedupIndexTTL)
		pipe.ZAdd(ctx, matchesByAddressIndexKey(match.Address), redis.Z{Score: score, Member: string(match.ID)})
		return nil
	})
	if err != nil {
		return unavailable("insert match", err)
	}
	return nil
}

func (s *Storage) ListMatches(ctx context.Context, address string, limit int) ([]*model.Match, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, matchesByAddressIndexKey(address), 0, stop).Result()
	if err != nil {
		return nil, unavailable("list matches", err)
	}

	matches := make([]*model.Match, 0, len(ids))
	if len(ids) == 0 {
		return matches, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = matchKey(model.MatchID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("list matches", err)
	}

	for _, v := range values {
		// Matches that expired leave a dangling index entry
		str, ok := v.(string)
		if !ok {
			continue
		}
		var match model.Match
		if err := json.Unmarshal([]byte(str), &match); err != nil {
			return nil, fmt.Errorf("decode match: %w", err)
		}
		matches = append(matches, &match)
	}
	return matches, nil
}
