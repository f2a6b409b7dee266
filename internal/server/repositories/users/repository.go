// Package users declares the server-side repository contract for user
// identity records and its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository defines persistence operations for users.
type Repository interface {
	// Create inserts user and fills in the server-side timestamps.
	// A duplicate username yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// List returns users ordered by creation time.
	List(ctx context.Context, offset, limit int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)

	// Update writes username, password hash and updated_by of user.
	Update(ctx context.Context, user *models.User) (*models.User, error)

	// Delete removes the user; common.ErrorNotFound when absent.
	Delete(ctx context.Context, id string) error

	// LockForUpdate takes a row lock on the user for the rest of the
	// enclosing transaction.
	LockForUpdate(ctx context.Context, id string) error
}
