package kv

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"faucet/pkg/platform/sentinel"
	"faucet/pkg/requestcontext"
)

type PostgresStoreSuite struct {
	suite.Suite
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *PostgresStore
	now   time.Time
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.db = db
	s.mock = mock
	s.store = NewPostgres(db)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.Close()
}

func (s *PostgresStoreSuite) TestGet() {
	s.Run("returns live value", func() {
		s.mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs("faucet:cooldown:alice", s.now).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("123")))

		val, err := s.store.Get(s.ctx, "faucet:cooldown:alice")
		s.Require().NoError(err)
		s.Equal("123", string(val))
	})

	s.Run("maps no rows to not found", func() {
		s.mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs("missing", s.now).
			WillReturnError(sql.ErrNoRows)

		_, err := s.store.Get(s.ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("wraps driver errors", func() {
		s.mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
			WithArgs("k", s.now).
			WillReturnError(errors.New("connection reset"))

		_, err := s.store.Get(s.ctx, "k")
		s.Require().Error(err)
		s.NotErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestSetWithTTL() {
	s.mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs("k", []byte("v"), sql.NullTime{Time: s.now.Add(time.Hour), Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.store.Set(s.ctx, "k", []byte("v"), time.Hour))
}

func (s *PostgresStoreSuite) TestSetWithoutTTL() {
	s.mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs("k", []byte("v"), sql.NullTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.store.Set(s.ctx, "k", []byte("v"), 0))
}

func (s *PostgresStoreSuite) TestSetIfAbsent() {
	expires := sql.NullTime{Time: s.now.Add(30 * time.Second), Valid: true}

	s.mock.ExpectExec(regexp.QuoteMeta(insertIfAbsentQuery)).
		WithArgs("lease", []byte("tok"), expires, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := s.store.SetIfAbsent(s.ctx, "lease", []byte("tok"), 30*time.Second)
	s.Require().NoError(err)
	s.True(ok)

	s.mock.ExpectExec(regexp.QuoteMeta(insertIfAbsentQuery)).
		WithArgs("lease", []byte("tok"), expires, s.now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = s.store.SetIfAbsent(s.ctx, "lease", []byte("tok"), 30*time.Second)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PostgresStoreSuite) TestCompareAndSwap() {
	s.Run("nil prev behaves as insert-if-absent", func() {
		s.mock.ExpectExec(regexp.QuoteMeta(insertIfAbsentQuery)).
			WithArgs("doc", []byte("v1"), sql.NullTime{}, s.now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := s.store.CompareAndSwap(s.ctx, "doc", nil, []byte("v1"), 0)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("conditional update", func() {
		s.mock.ExpectExec(regexp.QuoteMeta(swapQuery)).
			WithArgs("doc", []byte("v2"), sql.NullTime{}, []byte("v1"), s.now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := s.store.CompareAndSwap(s.ctx, "doc", []byte("v1"), []byte("v2"), 0)
		s.Require().NoError(err)
		s.False(ok, "no matching row means a concurrent writer won")
	})
}

func (s *PostgresStoreSuite) TestCompareAndDelete() {
	s.mock.ExpectExec(regexp.QuoteMeta(compareDeleteQuery)).
		WithArgs("lease", []byte("tok"), s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.store.CompareAndDelete(s.ctx, "lease", []byte("tok"))
	s.Require().NoError(err)
	s.True(ok)
}

func (s *PostgresStoreSuite) TestDelete() {
	s.mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s.NoError(s.store.Delete(s.ctx, "k"))
}

func (s *PostgresStoreSuite) TestRemoveExpiredAt() {
	s.mock.ExpectExec(regexp.QuoteMeta(deleteExpiredQuery)).
		WithArgs(s.now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.store.RemoveExpiredAt(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(int64(3), n)
}

func (s *PostgresStoreSuite) TestEnsureSchema() {
	s.mock.ExpectExec(regexp.QuoteMeta(postgresSchema)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s.NoError(s.store.EnsureSchema(s.ctx))
}
