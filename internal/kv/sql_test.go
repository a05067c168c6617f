package kv

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDialect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "composer_kv"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLStore(ctx, db, Postgres, "")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "composer_kv" (state_key, state_value, updated_at) VALUES ($1, $2, $3)`)).
		WithArgs("builder:v1:aurora", `{"order":[]}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Set(ctx, "builder:v1:aurora", `{"order":[]}`))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state_value FROM "composer_kv" WHERE state_key = $1`)).
		WithArgs("builder:v1:aurora").
		WillReturnRows(sqlmock.NewRows([]string{"state_value"}).AddRow(`{"order":[]}`))
	v, err := s.Get(ctx, "builder:v1:aurora")
	require.NoError(t, err)
	assert.Equal(t, `{"order":[]}`, v)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state_value FROM "composer_kv" WHERE state_key = $1`)).
		WithArgs("builder:v1:none").
		WillReturnError(sql.ErrNoRows)
	_, err = s.Get(ctx, "builder:v1:none")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "composer_kv" WHERE state_key = $1`)).
		WithArgs("builder:v1:aurora").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Remove(ctx, "builder:v1:aurora"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDialect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `layouts`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLStore(ctx, db, MySQL, "layouts")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE state_value = VALUES(state_value)")).
		WithArgs("blocks:v1:home", "[]", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Set(ctx, "blocks:v1:home", "[]"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreWrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLStore(ctx, db, Postgres, "")
	require.NoError(t, err)

	boom := errors.New("disk full")
	mock.ExpectExec("INSERT INTO").WillReturnError(boom)
	err = s.Set(ctx, "k", "v")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "postgres store set")

	mock.ExpectQuery("SELECT").WillReturnError(boom)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	_, err = NewSQLStore(context.Background(), db, Postgres, "")
	assert.ErrorContains(t, err, "create table")
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"sqlite", "postgres", "postgresql", "pg", "mysql"} {
		_, ok := DialectFor(name)
		assert.True(t, ok, name)
	}
	_, ok := DialectFor("oracle")
	assert.False(t, ok)
}

func TestOpenSQLRejectsBadMySQLDSN(t *testing.T) {
	_, err := OpenSQL(context.Background(), MySQL, "not a dsn", "")
	assert.ErrorContains(t, err, "invalid dsn")
}
