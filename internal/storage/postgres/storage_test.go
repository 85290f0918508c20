//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcoot/arcaderooms/internal/model"
	"github.com/mcoot/arcaderooms/internal/storage"
	"github.com/mcoot/arcaderooms/internal/storage/storagetest"
	"github.com/mcoot/arcaderooms/internal/testutil"
)

type StorageSuite struct {
	storagetest.Suite
	dsn string
}

func TestStorageSuite(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("arcade"),
		tcpostgres.WithUsername("arcade"),
		tcpostgres.WithPassword("arcade"),
		tcpostgres.WithSQLDriver("pgx"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(dsn, false, testutil.NopLogger()))
	// A second run finds nothing to apply
	require.NoError(t, Migrate(dsn, false, testutil.NopLogger()))

	s := &StorageSuite{dsn: dsn}
	s.NewStorage = func() storage.Storage {
		cfg := DefaultConfig()
		cfg.URL = s.dsn
		store, err := New(context.Background(), cfg)
		s.Require().NoError(err)
		_, err = store.pool.Exec(context.Background(), `TRUNCATE rooms, matches`)
		s.Require().NoError(err)
		return store
	}
	suite.Run(t, s)
}

func (s *StorageSuite) TestUniqueIndexIsCaseInsensitive() {
	pg := s.Store.(*Storage)
	_, err := pg.pool.Exec(s.Ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ('ABC1', 'solo', '0xa', '', false, false, 'waiting', 1, now(), now())`)
	s.Require().NoError(err)

	_, err = pg.pool.Exec(s.Ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ('abc1', 'solo', '0xb', '', false, false, 'waiting', 1, now(), now())`)
	s.True(isUniqueViolation(err))
}

func (s *StorageSuite) TestUnavailableAfterClose() {
	pg := s.Store.(*Storage)
	pg.pool.Close()

	_, err := pg.GetRoom(s.Ctx, "ABC1")
	s.ErrorIs(err, model.ErrStoreUnavailable)
}
