package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

const tokenColumns = `id, user_id, token, token_type, revoked, expired, created_at, updated_at, created_by, updated_by`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.Token) (*models.Token, error) {
	query := `
		INSERT INTO tokens (user_id, token, token_type, revoked, expired, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		token.UserID, token.Token, string(token.Type), token.Revoked, token.Expired, token.CreatedBy, token.UpdatedBy,
	).Scan(&token.ID, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return nil, dbError(err)
	}
	return token, nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, value string, typ models.TokenType) (*models.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE token = $1 AND ($2 = '' OR token_type = $2) AND NOT revoked AND NOT expired
	`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, value, string(typ)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbError(err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, id); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByValue(ctx context.Context, value string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM tokens WHERE token = $1`, value)
}

func (r *PostgresRepository) MarkExpired(ctx context.Context, id int64) error {
	query := `UPDATE tokens SET expired = TRUE, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *PostgresRepository) PurgeInactive(ctx context.Context, userID string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM tokens WHERE user_id = $1 AND (revoked OR expired)`, userID)
}

func (r *PostgresRepository) CountActiveRefresh(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM tokens
		WHERE user_id = $1 AND token_type = 'REFRESH' AND NOT revoked AND NOT expired
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

func (r *PostgresRepository) ListActiveRefresh(ctx context.Context, userID string) ([]*models.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE user_id = $1 AND token_type = 'REFRESH' AND NOT revoked AND NOT expired
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var result []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, dbError(err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM tokens WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*models.Token, error) {
	t := &models.Token{}
	var typ string
	err := s.Scan(&t.ID, &t.UserID, &t.Token, &typ, &t.Revoked, &t.Expired,
		&t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.UpdatedBy)
	if err != nil {
		return nil, err
	}
	t.Type = models.TokenType(typ)
	return t, nil
}

func dbError(err error) error {
	return fmt.Errorf("%w: %w", common.ErrorStorage, err)
}
