// Package storagetests provides common acceptance tests for storage.Store
// implementations.
package storagetests

import (
	"testing"

	"github.com/bestieapp/authlink/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type LinkStatus int

const (
	StatusPending LinkStatus = 1
	StatusActive  LinkStatus = 2
	StatusRevoked LinkStatus = 3
	StatusExpired LinkStatus = 4
)

type LinkedAccount struct {
	ID       string
	Provider string
	Status   LinkStatus
	Retries  *int // Ptr fields allow filtering on zero values.
}

func (a LinkedAccount) PK() string {
	return a.ID
}

type Provider struct {
	ID   string
	Name string
}

func (p Provider) PK() string {
	return p.ID
}

type BadModel struct {
	ID    string
	Cycle *BadModel
}

func (b BadModel) PK() string {
	return b.ID
}

func pint(i int) *int {
	return &i
}

// Run exercises every Store operation against the given implementation.
func Run(t *testing.T, newStore func() storage.Store) {

	t.Run("TestCreateReadRoundTrip", func(t *testing.T) {
		a := LinkedAccount{ID: "u1", Provider: "google", Status: StatusActive}
		b := LinkedAccount{ID: "u2", Provider: "google", Status: StatusPending}

		store := newStore()
		err := store.Create(a, b)
		require.Nil(t, err, "unexpected error creating records")

		got := LinkedAccount{}
		err = store.Read("u1", &got)
		require.Nil(t, err, "unexpected error reading record")
		assert.Equal(t, a, got)

		got = LinkedAccount{}
		err = store.Read("u2", &got)
		require.Nil(t, err, "unexpected error reading record")
		assert.Equal(t, b, got)
	})

	t.Run("TestCreateConflict", func(t *testing.T) {
		store := newStore()
		err := store.Create(LinkedAccount{ID: "u1", Provider: "google", Status: StatusActive})
		require.Nil(t, err, "unexpected error creating record")

		err = store.Create(LinkedAccount{ID: "u1", Provider: "google", Status: StatusRevoked})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists, "expected conflict error")
	})

	t.Run("TestCreateBadModel", func(t *testing.T) {
		bm := BadModel{ID: "XXX"}
		bm.Cycle = &bm

		store := newStore()
		err := store.Create(bm)
		assert.ErrorIs(t, err, storage.ErrInvalidModel, "expected invalid model error")
	})

	t.Run("TestReadNotFound", func(t *testing.T) {
		store := newStore()
		err := store.Read("u1", &LinkedAccount{})
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = store.Create(&LinkedAccount{ID: "u1", Provider: "google"})
		require.Nil(t, err, "unexpected error creating record")

		err = store.Read("u2", &LinkedAccount{})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TestReadWithNilPointer", func(t *testing.T) {
		store := newStore()
		err := store.Create(LinkedAccount{ID: "u1", Provider: "google"})
		require.Nil(t, err, "unexpected error creating record")

		var out *LinkedAccount
		err = store.Read("u1", out)
		assert.ErrorIs(t, err, storage.ErrNilModel, "expected nil model error")
	})

	t.Run("TestUpdate", func(t *testing.T) {
		a := LinkedAccount{ID: "u1", Provider: "google", Status: StatusPending}

		store := newStore()
		err := store.Create(a)
		require.Nil(t, err, "unexpected error creating record")

		a.Status = StatusActive
		err = store.Update(a)
		require.Nil(t, err, "unexpected error updating record")

		got := LinkedAccount{}
		err = store.Read("u1", &got)
		require.Nil(t, err, "unexpected error reading record")
		assert.Equal(t, a, got)
	})

	t.Run("TestUpdateNotExists", func(t *testing.T) {
		store := newStore()
		err := store.Update(LinkedAccount{ID: "u1", Provider: "google"})
		assert.ErrorIs(t, err, storage.ErrNotFound, "expected not found error")
	})

	t.Run("TestUpdateBadModel", func(t *testing.T) {
		bm := BadModel{ID: "XXX"}
		bm.Cycle = &bm

		store := newStore()
		err := store.Update(bm)
		assert.ErrorIs(t, err, storage.ErrInvalidModel, "expected invalid model error")
	})

	t.Run("TestUpsert", func(t *testing.T) {
		a := LinkedAccount{ID: "u1", Provider: "google", Status: StatusPending}

		store := newStore()
		err := store.Create(a)
		require.Nil(t, err, "unexpected error creating record")

		a.Status = StatusActive
		b := LinkedAccount{ID: "u2", Provider: "google", Status: StatusPending}
		err = store.Upsert(a, b)
		require.Nil(t, err, "unexpected error upserting records")

		got := LinkedAccount{}
		err = store.Read("u1", &got)
		require.Nil(t, err, "unexpected error reading record")
		assert.Equal(t, a, got)

		got = LinkedAccount{}
		err = store.Read("u2", &got)
		require.Nil(t, err, "unexpected error reading record")
		assert.Equal(t, b, got)
	})

	t.Run("TestUpsertBadModel", func(t *testing.T) {
		bm := BadModel{ID: "XXX"}
		bm.Cycle = &bm

		store := newStore()
		err := store.Upsert(bm)
		assert.ErrorIs(t, err, storage.ErrInvalidModel, "expected invalid model error")
	})

	t.Run("TestDelete", func(t *testing.T) {
		store := newStore()
		err := store.Create(&LinkedAccount{ID: "u4", Provider: "google"})
		assert.Nil(t, err)

		exists, err := store.Exists("u4", &LinkedAccount{})
		assert.True(t, exists)
		assert.Nil(t, err)

		err = store.Delete(&LinkedAccount{ID: "u4"})
		assert.Nil(t, err)

		exists, err = store.Exists("u4", &LinkedAccount{})
		assert.False(t, exists)
		assert.Nil(t, err)

		err = store.Delete(&LinkedAccount{ID: "u4"})
		assert.ErrorIs(t, err, storage.ErrNotFound, "expected not found error")
	})

	t.Run("TestListErrorCases", func(t *testing.T) {
		store := newStore()

		out := []LinkedAccount{}

		tests := []struct {
			name    string
			models  any
			filter  storage.Model
			wantErr error
		}{
			{"Ok", &out, LinkedAccount{}, nil},
			{"Not a slice", LinkedAccount{}, LinkedAccount{}, storage.ErrSliceRequired},
			{"Not a pointer", out, LinkedAccount{}, storage.ErrSliceRequired},
			{"Mismatched type", &out, Provider{}, storage.ErrTypeMismatch},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := store.List(tt.models, tt.filter); err != tt.wantErr {
					t.Errorf("store.List() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("TestList", func(t *testing.T) {
		store := newStore()
		err := store.Create(
			LinkedAccount{"u1", "google", StatusActive, nil},
			LinkedAccount{"u2", "google", StatusPending, nil},
			LinkedAccount{"u3", "github", StatusActive, nil},
		)
		assert.Nil(t, err)

		actual := []LinkedAccount{}
		err = store.List(&actual, LinkedAccount{})
		assert.Nil(t, err)

		expected := []LinkedAccount{
			{"u1", "google", StatusActive, nil},
			{"u2", "google", StatusPending, nil},
			{"u3", "github", StatusActive, nil},
		}
		assert.Equal(t, expected, actual)
	})

	t.Run("TestListFilter", func(t *testing.T) {
		store := newStore()
		err := store.Create(
			LinkedAccount{"u1", "google", StatusActive, nil},
			LinkedAccount{"u2", "google", StatusPending, nil},
			LinkedAccount{"u3", "github", StatusActive, nil},
			LinkedAccount{"u4", "github", StatusRevoked, nil},
			LinkedAccount{"u5", "google", StatusActive, nil},
			LinkedAccount{"u6", "github", StatusExpired, nil},
		)
		assert.Nil(t, err)

		actual := []LinkedAccount{}
		err = store.List(&actual, LinkedAccount{Provider: "google", Status: StatusActive})
		assert.Nil(t, err)

		expected := []LinkedAccount{
			{"u1", "google", StatusActive, nil},
			{"u5", "google", StatusActive, nil},
		}
		assert.Equal(t, expected, actual)
	})

	t.Run("TestListFilterZero", func(t *testing.T) {
		store := newStore()
		err := store.Create(
			LinkedAccount{"u1", "google", StatusActive, pint(4)},
			LinkedAccount{"u2", "google", StatusActive, pint(3)},
			LinkedAccount{"u3", "github", StatusActive, pint(0)},
			LinkedAccount{"u4", "github", StatusActive, pint(0)},
			LinkedAccount{"u5", "google", StatusActive, nil},
		)
		assert.Nil(t, err)

		actual := []LinkedAccount{}
		err = store.List(&actual, LinkedAccount{Retries: pint(0)})
		assert.Nil(t, err)

		expected := []LinkedAccount{
			{"u3", "github", StatusActive, pint(0)},
			{"u4", "github", StatusActive, pint(0)},
		}
		assert.Equal(t, expected, actual)
	})

	t.Run("TestExists", func(t *testing.T) {
		store := newStore()
		exists, err := store.Exists("u3", &LinkedAccount{})
		assert.False(t, exists)
		assert.Nil(t, err)

		err = store.Create(&LinkedAccount{ID: "u3", Provider: "github"})
		assert.Nil(t, err)

		exists, err = store.Exists("u3", &LinkedAccount{})
		assert.True(t, exists)
		assert.Nil(t, err)
	})
}
