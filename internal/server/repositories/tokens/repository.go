// Package tokens declares the repository contract for issued access and
// refresh tokens and its PostgreSQL implementation.
package tokens

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository defines persistence operations for issued tokens. A token row is
// active while it is neither revoked nor expired.
type Repository interface {
	// Create inserts token and sets its ID and timestamps.
	Create(ctx context.Context, token *models.Token) (*models.Token, error)

	// FindActive returns the active row holding value. An empty typ matches
	// any token type. common.ErrorNotFound when no active row exists.
	FindActive(ctx context.Context, value string, typ models.TokenType) (*models.Token, error)

	// Delete removes the row with the given id. Missing rows are not an error.
	Delete(ctx context.Context, id int64) error

	// DeleteByValue removes every row holding value and reports how many
	// rows went away.
	DeleteByValue(ctx context.Context, value string) (int64, error)

	// MarkExpired flags the row as expired.
	MarkExpired(ctx context.Context, id int64) error

	// PurgeInactive deletes the user's revoked or expired rows.
	PurgeInactive(ctx context.Context, userID string) (int64, error)

	CountActiveRefresh(ctx context.Context, userID string) (int64, error)

	// ListActiveRefresh returns the user's active refresh rows, oldest first.
	ListActiveRefresh(ctx context.Context, userID string) ([]*models.Token, error)

	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
