// Package sqlitestore provides a SQLite-backed implementation of
// storage.Store. All models share a single table, keyed by primary key and
// entity type, with the model serialized to a JSON value column.
//
// Examples:
//
//	store := sqlitestore.New(
//		"file:authlink.s3db",
//		sqlitestore.WithTableName("oauth_store"),
//	)
//
//	store := sqlitestore.New(":memory:")
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/bestieapp/authlink/storage"

	"github.com/mattn/go-sqlite3"
)

// Option is a functional option for configuring the store.
type Option func(*store)

// WithTableName overrides the default table name of "authlink_store".
func WithTableName(tableName string) Option {
	return func(s *store) {
		s.tableName = tableName
	}
}

// New returns a store that provides sqlite backed storage. The table is
// created optimistically on initialization; errors at that point are
// considered non-recoverable and will panic.
func New(conn string, opts ...Option) storage.Store {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		panic("failed to open sqlite connection: " + err.Error())
	}
	s := &store{
		db:        db,
		tableName: "authlink_store",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ensureTable()
	return s
}

type store struct {
	db *sql.DB

	tableName string
}

func (s *store) Create(models ...storage.Model) error {
	return s.execModels(
		"INSERT INTO "+s.tableName+" (id, entity_type, value) VALUES (?, ?, ?)",
		func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error) {
			return stmt.Exec(id, entityType, value)
		},
		false,
		models,
	)
}

func (s *store) Update(models ...storage.Model) error {
	return s.execModels(
		"UPDATE "+s.tableName+" SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND entity_type = ?",
		func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error) {
			return stmt.Exec(value, id, entityType)
		},
		true,
		models,
	)
}

func (s *store) Upsert(models ...storage.Model) error {
	return s.execModels(
		`INSERT INTO `+s.tableName+` (id, entity_type, value, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id, entity_type) DO UPDATE SET
		value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error) {
			return stmt.Exec(id, entityType, value)
		},
		false,
		models,
	)
}

// execModels runs the prepared statement for each model within a single
// transaction. When requireRow is set, a statement affecting zero rows maps
// to ErrNotFound.
func (s *store) execModels(
	query string,
	exec func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error),
	requireRow bool,
	models []storage.Model,
) error {
	tx, err := s.db.Begin()
	if err != nil {
		return translateError(err)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return translateError(err)
	}
	defer stmt.Close()

	for _, model := range models {
		value, err := json.Marshal(model)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: %s", storage.ErrInvalidModel, err)
		}
		res, err := exec(stmt, model.PK(), storage.Name(model), value)
		if err != nil {
			tx.Rollback()
			return translateError(err)
		}
		if requireRow {
			if i, err := res.RowsAffected(); i == 0 || err != nil {
				tx.Rollback()
				return storage.ErrNotFound
			}
		}
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return translateError(err)
	}
	return nil
}

func (s *store) Read(id string, model storage.Model) error {
	if err := storage.ValidateReceiver(model); err != nil {
		return err
	}

	query := "SELECT value FROM " + s.tableName + " WHERE id = ? AND entity_type = ?"
	row := s.db.QueryRow(query, id, storage.Name(model))

	var value []byte
	if err := row.Scan(&value); err != nil {
		return translateError(err)
	}
	return json.Unmarshal(value, model)
}

func (s *store) Delete(model storage.Model) error {
	stmt, err := s.db.Prepare("DELETE FROM " + s.tableName + " WHERE id = ? AND entity_type = ?")
	if err != nil {
		return translateError(err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(model.PK(), storage.Name(model))
	if err != nil {
		return translateError(err)
	}
	if i, err := res.RowsAffected(); i == 0 || err != nil {
		return storage.ErrNotFound
	}
	return nil
}

func (s *store) List(models any, filter storage.Model) error {
	modelsVal := reflect.ValueOf(models)
	if modelsVal.Kind() != reflect.Ptr || modelsVal.Elem().Kind() != reflect.Slice {
		return storage.ErrSliceRequired
	}
	sliceVal := modelsVal.Elem()
	elemType := sliceVal.Type().Elem()
	if elemType != reflect.TypeOf(filter) {
		return storage.ErrTypeMismatch
	}

	query, args := s.buildListQuery(filter)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return translateError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return translateError(err)
		}

		newElemPtr := reflect.New(elemType)
		newElem := newElemPtr.Elem()
		if err := json.Unmarshal([]byte(value), newElem.Addr().Interface()); err != nil {
			return fmt.Errorf("%w: %s", storage.ErrInvalidModel, err)
		}

		sliceVal.Set(reflect.Append(sliceVal, newElem))
	}

	return translateError(rows.Err())
}

func (s *store) Exists(id string, model storage.Model) (bool, error) {
	query := "SELECT COUNT(*) FROM " + s.tableName + " WHERE id = ? AND entity_type = ?"
	var count int
	if err := s.db.QueryRow(query, id, storage.Name(model)).Scan(&count); err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

func (s *store) ensureTable() {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
		id TEXT,
		entity_type TEXT,
		value BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id, entity_type)
	);`)
	if err != nil {
		panic("failed to create table: " + err.Error())
	}
}

func (s *store) buildListQuery(model storage.Model) (string, []any) {
	filterValue := reflect.ValueOf(model)

	whereClauses := []string{"entity_type = ?"}
	params := []any{storage.Name(model)}

	for i := 0; i < filterValue.NumField(); i++ {
		field := filterValue.Field(i)
		typeField := filterValue.Type().Field(i)

		// Only include fields that are non-nil pointers or are non-zero values.
		if (field.Kind() == reflect.Ptr && !field.IsNil()) || (!field.IsZero() && field.Kind() != reflect.Ptr) {
			w := fmt.Sprintf("json_extract(value, '$.%s') = ?", storage.JSONFieldName(typeField))
			whereClauses = append(whereClauses, w)
			params = append(params, field.Interface())
		}
	}

	query := fmt.Sprintf("SELECT value FROM %s WHERE %s", s.tableName, strings.Join(whereClauses, " AND "))
	return query, params
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if sqlErr, ok := err.(sqlite3.Error); ok {
		switch sqlErr.Code {
		case sqlite3.ErrNotFound:
			return storage.ErrNotFound
		case sqlite3.ErrConstraint:
			return storage.ErrAlreadyExists
		}
	}
	return err
}
