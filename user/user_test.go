package user

import (
	"context"
	"testing"

	"github.com/bestieapp/authlink/auth"
	"github.com/bestieapp/authlink/errors"
	"github.com/bestieapp/authlink/storage/memorystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_RegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(memorystore.New())

	u, err := d.Register(ctx, "Bestie@Gmail.com ", "Bestie User")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "bestie@gmail.com", u.Email, "emails are normalized")

	// Lookup is case-insensitive too.
	id, err := d.LookupUserID(ctx, "BESTIE@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	got, err := d.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bestie User", got.Name)
}

func TestDirectory_LookupUnknown(t *testing.T) {
	d := NewDirectory(memorystore.New())
	_, err := d.LookupUserID(context.Background(), "ghost@gmail.com")
	assert.True(t, errors.Is(err, auth.ErrUnknownUser))
}

func TestDirectory_RegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(memorystore.New())

	_, err := d.Register(ctx, "bestie@gmail.com", "")
	require.NoError(t, err)
	_, err = d.Register(ctx, "BESTIE@gmail.com", "")
	assert.True(t, errors.Is(err, ErrDuplicateEmail))
}

func TestDirectory_RegisterEmptyEmail(t *testing.T) {
	d := NewDirectory(memorystore.New())
	_, err := d.Register(context.Background(), "   ", "")
	assert.Error(t, err)
}

func TestDirectory_Exists(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(memorystore.New())

	u, err := d.Register(ctx, "bestie@gmail.com", "")
	require.NoError(t, err)

	ok, err := d.Exists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
