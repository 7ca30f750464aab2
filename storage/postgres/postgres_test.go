package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bestieapp/authlink/errors"
	"github.com/bestieapp/authlink/storage"
	"github.com/bestieapp/authlink/storage/storagetests"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Conformance tests run against a real database when PG_TEST_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("postgres tests skipped, set PG_TEST_DSN to enable")
	}

	storagetests.Run(t, func() storage.Store {
		db, err := sql.Open("postgres", dsn)
		require.NoError(t, err)
		_, err = db.Exec(`
			DROP SCHEMA IF EXISTS authlink_test CASCADE;
			CREATE SCHEMA authlink_test;
		`)
		require.NoError(t, err)
		db.Close()

		s, err := SafeNew(dsn, WithPrefix("test_"), WithSchema("authlink_test"))
		require.NoError(t, err)
		return s
	})
}

func TestOptions(t *testing.T) {
	s := &store{prefix: "authlink_", schema: "public", autoCreateTable: true}

	WithPrefix("custom_")(s)
	assert.Equal(t, "custom_", s.prefix)

	WithSchema("custom_schema")(s)
	assert.Equal(t, "custom_schema", s.schema)

	WithAutoCreateTable(false)(s)
	assert.False(t, s.autoCreateTable)
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{"NilError", nil, nil},
		{"ErrNoRows", sql.ErrNoRows, storage.ErrNotFound},
		{"UniqueViolation", &pq.Error{Code: "23505"}, storage.ErrAlreadyExists},
		{"UniqueConstraintMessage", errors.New("violates unique constraint"), storage.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := translateError(tt.input)
			if tt.expected == nil {
				assert.NoError(t, result)
			} else {
				require.Error(t, result)
				assert.ErrorIs(t, result, tt.expected)
			}
		})
	}
}

type linkRecord struct {
	ID    string
	Email string
}

func (r linkRecord) PK() string {
	return r.ID
}

func newMockStore(t *testing.T) (storage.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewWithDB(db, WithAutoCreateTable(false))
	require.NoError(t, err)
	return s, mock
}

func TestRead_mocked(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value FROM public.authlink_store WHERE id = .1 AND entity_type = .2").
		WithArgs("u1", "link_records").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`{"ID": "u1", "Email": "a@b.com"}`))

	out := linkRecord{}
	err := s.Read("u1", &out)
	require.NoError(t, err)
	assert.Equal(t, linkRecord{ID: "u1", Email: "a@b.com"}, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRead_mockedNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT value FROM public.authlink_store").
		WithArgs("u2", "link_records").
		WillReturnError(sql.ErrNoRows)

	err := s.Read("u2", &linkRecord{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreate_mocked(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO public.authlink_store").
		ExpectExec().
		WithArgs("u1", "link_records", []byte(`{"ID":"u1","Email":"a@b.com"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.Create(linkRecord{ID: "u1", Email: "a@b.com"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_mockedConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO public.authlink_store").
		ExpectExec().
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := s.Create(linkRecord{ID: "u1"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_mockedNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectPrepare("DELETE FROM public.authlink_store").
		ExpectExec().
		WithArgs("u9", "link_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(linkRecord{ID: "u9"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
