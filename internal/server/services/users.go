package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 128
	minPasswordLen = 6

	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// UserService manages user identity records.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	retry       dbx.RetryPolicy
	log         logging.Logger
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher auth.PasswordHasher, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		retry:       retryPolicy(cfg),
		log:         log.With("module", "users"),
	}
}

// UserUpdate carries the optional fields of an update; nil leaves a field as is.
type UserUpdate struct {
	Username *string
	Password *string
}

// Create registers a new user. actor is recorded in the audit columns and may
// be empty for self-registration.
func (s *UserService) Create(ctx context.Context, username, password, actor string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedBy:    actorOrNil(actor),
		UpdatedBy:    actorOrNil(actor),
	}

	var created *models.User
	err = dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		var err error
		created, err = s.repomanager.Users(s.db).Create(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user created", "user_id", created.ID)
	return created, nil
}

// Get returns the user with the given id or common.ErrorNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		var err error
		user, err = s.repomanager.Users(s.db).GetByID(ctx, id)
		return err
	})
	return user, err
}

// List returns one page of users. limit is clamped to 1..MaxPageLimit and
// defaults to DefaultPageLimit.
func (s *UserService) List(ctx context.Context, offset, limit int) (*dbx.Page[*models.User], error) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	page := &dbx.Page[*models.User]{Offset: offset, Limit: limit}
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		repo := s.repomanager.Users(s.db)
		items, err := repo.List(ctx, offset, limit)
		if err != nil {
			return err
		}
		total, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		page.Items, page.Total = items, total
		return nil
	})
	if err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []*models.User{}
	}
	return page, nil
}

// Update applies upd to the user and records actor as the last editor.
// A rename ends every session of the user.
func (s *UserService) Update(ctx context.Context, id string, upd UserUpdate, actor string) (*models.User, error) {
	var newHash string
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
		h, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, err
		}
		newHash = h
	}
	var newName string
	if upd.Username != nil {
		newName = strings.TrimSpace(*upd.Username)
		if err := validateUsername(newName); err != nil {
			return nil, err
		}
	}

	var updated *models.User
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Users(tx)
			user, err := repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			renamed := upd.Username != nil && newName != user.Username
			if renamed {
				// tokens carry the old name as subject
				if _, err := s.repomanager.Tokens(tx).DeleteByUser(ctx, id); err != nil {
					return err
				}
				user.Username = newName
			}
			if upd.Password != nil {
				user.PasswordHash = newHash
			}
			user.UpdatedBy = actorOrNil(actor)
			updated, err = repo.Update(ctx, user)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user updated", "user_id", id)
	return updated, nil
}

// Delete removes the user together with every token issued to it.
func (s *UserService) Delete(ctx context.Context, id string) error {
	var revoked int64
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			revoked, err = s.repomanager.Tokens(tx).DeleteByUser(ctx, id)
			if err != nil {
				return err
			}
			return s.repomanager.Users(tx).Delete(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "user deleted", "user_id", id, "tokens_removed", revoked)
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d..%d characters", common.ErrorValidation, minUsernameLen, maxUsernameLen)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLen)
	}
	return nil
}

func actorOrNil(actor string) *string {
	if actor == "" {
		return nil
	}
	return &actor
}
