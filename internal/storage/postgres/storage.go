package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/storage"
)

// uniqueViolation is the SQLSTATE raised when a unique index rejects a row
const uniqueViolation = "23505"

const roomColumns = `code, mode, host_address, guest_address, host_ready, guest_ready, status, seed, created_at, updated_at`

const matchColumns = `id, room_code, address, score, coins, mode, created_at`

// Storage is a PostgreSQL-backed implementation of the storage interface
type Storage struct {
	pool *pgxpool.Pool
	cfg  Config
}

// New creates a pool for cfg.URL and verifies the connection
func New(ctx context.Context, cfg Config) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, classify("ping", err)
	}

	return NewWithPool(pool, cfg), nil
}

// NewWithPool wraps an existing pool
func NewWithPool(pool *pgxpool.Pool, cfg Config) *Storage {
	return &Storage{pool: pool, cfg: cfg}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Close releases every pooled connection
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// classify keeps server-side errors as plain failures and marks everything
// else (dial, timeout, closed pool) as the store being unavailable
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres %s: %s (%s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("postgres %s: %w: %w", op, model.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var (
		room         model.Room
		code, mode   string
		status       string
		createdAt    time.Time
		updatedAt    time.Time
		guestAddress string
	)
	err := row.Scan(&code, &mode, &room.HostAddress, &guestAddress, &room.HostReady, &room.GuestReady,
		&status, &room.Seed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	room.Code = model.RoomCode(code)
	room.Mode = model.Mode(mode)
	room.Status = model.RoomStatus(status)
	room.GuestAddress = guestAddress
	room.CreatedAt = createdAt.UTC()
	room.UpdatedAt = updatedAt.UTC()
	return &room, nil
}

// Room operations

func (s *Storage) InsertRoom(ctx context.Context, room *model.Room) (storage.InsertResult, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(room.Code), string(room.Mode), room.HostAddress, room.GuestAddress,
		room.HostReady, room.GuestReady, string(room.Status), room.Seed, room.CreatedAt, room.UpdatedAt,
	)
	if err == nil {
		return storage.InsertResult{Room: room.Clone(), Created: true}, nil
	}
	if !isUniqueViolation(err) {
		return storage.InsertResult{}, classify("insert room", err)
	}

	// Another writer holds this code, possibly with different casing
	existing, err := s.FindRoomFold(ctx, room.Code)
	if err != nil {
		return storage.InsertResult{}, err
	}
	return storage.InsertResult{Room: existing, Created: false}, nil
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code = $1`, string(code))
	return s.roomFromRow("get room", row)
}

func (s *Storage) FindRoomFold(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE lower(code) = lower($1)`, string(code))
	return s.roomFromRow("find room", row)
}

func (s *Storage) roomFromRow(op string, row pgx.Row) (*model.Room, error) {
	room, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrRoomNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return room, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, code model.RoomCode, mutate func(*model.Room) error) (*model.Room, error) {
	var (
		updated   *model.Room
		mutateErr error
	)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE lower(code) = lower($1) FOR UPDATE`, string(code))
		room, err := s.roomFromRow("lock room", row)
		if err != nil {
			return err
		}

		original := room.Code
		if mutateErr = mutate(room); mutateErr != nil {
			return mutateErr
		}
		room.Code = original

		_, err = tx.Exec(ctx,
			`UPDATE rooms SET mode = $2, host_address = $3, guest_address = $4, host_ready = $5,
				guest_ready = $6, status = $7, seed = $8, updated_at = $9
			WHERE code = $1`,
			string(room.Code), string(room.Mode), room.HostAddress, room.GuestAddress,
			room.HostReady, room.GuestReady, string(room.Status), room.Seed, room.UpdatedAt,
		)
		if err != nil {
			return classify("update room", err)
		}
		updated = room
		return nil
	})

	switch {
	case mutateErr != nil:
		return nil, mutateErr
	case errors.Is(err, model.ErrRoomNotFound), errors.Is(err, model.ErrStoreUnavailable):
		return nil, err
	case err != nil:
		return nil, classify("update room", err)
	}
	return updated, nil
}

// Match operations

func scanMatch(row pgx.Row) (*model.Match, error) {
	var (
		match     model.Match
		id, mode  string
		roomCode  *string
		createdAt time.Time
	)
	if err := row.Scan(&id, &roomCode, &match.Address, &match.Score, &match.Coins, &mode, &createdAt); err != nil {
		return nil, err
	}
	match.ID = model.MatchID(id)
	match.Mode = model.Mode(mode)
	match.CreatedAt = createdAt.UTC()
	if roomCode != nil {
		code := model.RoomCode(*roomCode)
		match.RoomCode = &code
	}
	return &match, nil
}

func (s *Storage) FindRecentMatch(ctx context.Context, key model.MatchKey, since time.Time) (*model.Match, error) {
	var row pgx.Row
	if key.RoomCode == nil {
		row = s.pool.QueryRow(ctx,
			`SELECT `+matchColumns+` FROM matches
			WHERE address = $1 AND score = $2 AND room_code IS NULL AND created_at >= $3
			ORDER BY created_at DESC LIMIT 1`,
			key.Address, key.Score, since)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT `+matchColumns+` FROM matches
			WHERE address = $1 AND score = $2 AND lower(room_code) = lower($3) AND created_at >= $4
			ORDER BY created_at DESC LIMIT 1`,
			key.Address, key.Score, string(*key.RoomCode), since)
	}

	match, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrMatchNotFound
	}
	if err != nil {
		return nil, classify("find recent match", err)
	}
	return match, nil
}

func (s *Storage) InsertMatch(ctx context.Context, match *model.Match) error {
	var roomCode *string
	if match.RoomCode != nil {
		code := string(*match.RoomCode)
		roomCode = &code
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO matches (`+matchColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(match.ID), roomCode, match.Address, match.Score, match.Coins, string(match.Mode), match.CreatedAt,
	)
	if err != nil {
		return classify("insert match", err)
	}
	return nil
}

func (s *Storage) ListMatches(ctx context.Context, address string, limit int) ([]*model.Match, error) {
	if limit <= 0 {
		limit = s.cfg.ListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE address = $1 ORDER BY created_at DESC LIMIT $2`,
		address, limit)
	if err != nil {
		return nil, classify("list matches", err)
	}
	defer rows.Close()

	matches := make([]*model.Match, 0)
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, classify("list matches", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list matches", err)
	}
	return matches, nil
}
