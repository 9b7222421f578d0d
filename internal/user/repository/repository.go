package repository

import (
	"context"
	"errors"
	"time"

	"costing-api/backend/internal/user/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already taken.
// The unique index is the authority; a prior lookup can race with a
// concurrent registration.
var ErrDuplicateEmail = errors.New("email already in use")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
