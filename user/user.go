// Package user persists the application's registered users and resolves
// login emails to user ids.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/bestieapp/authlink/auth"
	"github.com/bestieapp/authlink/errors"
	"github.com/bestieapp/authlink/storage"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
)

// ErrDuplicateEmail is returned when registering an email that already
// belongs to a user.
var ErrDuplicateEmail = errors.NewC("user: email already registered", codes.AlreadyExists)

// User is a registered account. Logins resolve against Email, everything
// else keys off ID.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) PK() string {
	return u.ID
}

// Directory is a storage-backed auth.UserDirectory.
type Directory struct {
	db storage.Store
}

var _ auth.UserDirectory = &Directory{}

// NewDirectory returns a Directory backed by the given store.
func NewDirectory(db storage.Store) *Directory {
	return &Directory{db: db}
}

// Register creates a user for the given email, which is normalized to lower
// case first.
func (d *Directory) Register(ctx context.Context, email, name string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, errors.NewC("user: email is required", codes.InvalidArgument)
	}
	if _, err := d.LookupUserID(ctx, email); err == nil {
		return User{}, errors.Mark(ErrDuplicateEmail, 0)
	}
	u := User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := d.db.Create(u); err != nil {
		return User{}, err
	}
	return u, nil
}

// LookupUserID resolves a login email to a user id. The error carries
// codes.Unauthenticated so login failures map to 401, not 500.
func (d *Directory) LookupUserID(_ context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	var users []User
	if err := d.db.List(&users, User{Email: email}); err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", errors.Mark(auth.ErrUnknownUser, 0).Append(email)
	}
	return users[0].ID, nil
}

// Exists reports whether a user id refers to a registered user.
func (d *Directory) Exists(_ context.Context, userID string) (bool, error) {
	return d.db.Exists(userID, User{})
}

// Get reads a user by id.
func (d *Directory) Get(_ context.Context, userID string) (User, error) {
	var u User
	if err := d.db.Read(userID, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
