// Package services contains server-side business logic. This file implements
// SessionPolicy, which issues, rotates and ends token sessions and enforces
// the per-user cap on active refresh tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("gophauth/services")

// SessionPolicy owns the token lifecycle. Every mutation runs in its own
// transaction, retried as a whole on transient storage errors.
type SessionPolicy struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	maxSessions int
	retry       dbx.RetryPolicy
	log         logging.Logger
}

// NewSessionPolicy constructs a SessionPolicy using repositories and server config.
func NewSessionPolicy(db *sql.DB, m repomanager.RepositoryManager, codec *auth.Codec, cfg *config.Config, log logging.Logger) *SessionPolicy {
	maxSessions := cfg.MaxActiveSessions
	if maxSessions < 1 {
		maxSessions = 2
	}
	return &SessionPolicy{
		db:          db,
		repomanager: m,
		codec:       codec,
		maxSessions: maxSessions,
		retry:       retryPolicy(cfg),
		log:         log.With("module", "sessions"),
	}
}

func retryPolicy(cfg *config.Config) dbx.RetryPolicy {
	return dbx.RetryPolicy{
		MaxAttempts:     cfg.DBRetryAttempts,
		InitialInterval: cfg.DBRetryInitialInterval,
		MaxInterval:     cfg.DBRetryMaxInterval,
	}
}

// IssueSession purges the user's inactive tokens, evicts the oldest active
// refresh token when the cap is reached and persists a fresh access/refresh
// pair. The user row stays locked until commit, so concurrent issuances for
// the same user are serialised.
func (s *SessionPolicy) IssueSession(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "SessionPolicy.IssueSession", trace.WithAttributes(attribute.String("user.id", user.ID)))
	defer span.End()

	var pair *models.TokenPair
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			pair, err = s.issue(ctx, tx, user)
			return err
		})
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return pair, nil
}

// Rotate redeems a refresh token: the presented row is consumed and a new
// pair is issued through the same path as login, so the cap applies again.
// With the consumed row gone first, a sibling session is only evicted when
// the user already held more active refresh tokens than the cap.
func (s *SessionPolicy) Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "SessionPolicy.Rotate")
	defer span.End()

	user, err := s.redeemable(ctx, refreshToken)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	var pair *models.TokenPair
	err = dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			n, err := s.repomanager.Tokens(tx).DeleteByValue(ctx, refreshToken)
			if err != nil {
				return err
			}
			if n == 0 {
				// consumed by a concurrent rotation or logout
				return common.ErrorUnauthorized
			}
			pair, err = s.issue(ctx, tx, user)
			return err
		})
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return pair, nil
}

// EndSession deletes the token row holding value. Absent rows are a no-op.
func (s *SessionPolicy) EndSession(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "SessionPolicy.EndSession")
	defer span.End()

	var n int64
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		var err error
		n, err = s.repomanager.Tokens(s.db).DeleteByValue(ctx, token)
		return err
	})
	if err != nil {
		recordError(span, err)
		return err
	}
	s.log.Debug(ctx, "session ended", "deleted", n)
	return nil
}

// redeemable checks that refreshToken is an active REFRESH row carrying a
// valid signature, and returns the user owning the row.
func (s *SessionPolicy) redeemable(ctx context.Context, refreshToken string) (*models.User, error) {
	var row *models.Token
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		var err error
		row, err = s.repomanager.Tokens(s.db).FindActive(ctx, refreshToken, models.TokenTypeRefresh)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}

	claims, err := s.codec.DecodeAndVerify(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.markExpired(ctx, row)
		}
		s.log.Debug(ctx, "refresh token rejected", "error", err)
		return nil, common.ErrorUnauthorized
	}
	if claims.Type != models.TokenTypeRefresh {
		return nil, common.ErrorUnauthorized
	}
	return s.owner(ctx, row, claims.Subject)
}

// owner loads the user the token row belongs to and checks that the token was
// issued under that user's current name. A row whose owner is gone, or that
// predates a rename, yields common.ErrorUnauthorized.
func (s *SessionPolicy) owner(ctx context.Context, row *models.Token, subject string) (*models.User, error) {
	if subject == "" {
		return nil, common.ErrorUnauthorized
	}

	var user *models.User
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		var err error
		user, err = s.repomanager.Users(s.db).GetByID(ctx, row.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if user.Username != subject {
		s.log.Warn(ctx, "token subject does not match owner", "token_id", row.ID, "user_id", user.ID)
		return nil, common.ErrorUnauthorized
	}
	return user, nil
}

// markExpired flags the row so the next issuance purges it. Failure only
// delays the cleanup, hence it is logged and not returned.
func (s *SessionPolicy) markExpired(ctx context.Context, row *models.Token) {
	if err := s.repomanager.Tokens(s.db).MarkExpired(ctx, row.ID); err != nil {
		s.log.Warn(ctx, "mark token expired failed", "token_id", row.ID, "error", err)
	}
}

func (s *SessionPolicy) issue(ctx context.Context, tx dbx.DBTX, user *models.User) (*models.TokenPair, error) {
	if err := s.repomanager.Users(tx).LockForUpdate(ctx, user.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}

	tokenRepo := s.repomanager.Tokens(tx)

	purged, err := tokenRepo.PurgeInactive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	metrics.PurgedTokens.Add(float64(purged))

	count, err := tokenRepo.CountActiveRefresh(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if count >= int64(s.maxSessions) {
		active, err := tokenRepo.ListActiveRefresh(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if len(active) > 0 {
			oldest := active[0]
			if err := tokenRepo.Delete(ctx, oldest.ID); err != nil {
				return nil, err
			}
			metrics.EvictedSessions.Inc()
			s.log.Info(ctx, "session evicted", "user_id", user.ID, "token_id", oldest.ID)
		}
	}

	access, err := s.mint(ctx, tokenRepo, user, models.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.mint(ctx, tokenRepo, user, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    common.BearerScheme,
		ExpiresIn:    int64(s.codec.DefaultTTL(models.TokenTypeAccess).Seconds()),
	}, nil
}

type tokenCreator interface {
	Create(ctx context.Context, token *models.Token) (*models.Token, error)
}

func (s *SessionPolicy) mint(ctx context.Context, repo tokenCreator, user *models.User, typ models.TokenType) (string, error) {
	value, _, err := s.codec.Encode(user.Username, typ, 0)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	actor := user.Username
	row := &models.Token{UserID: user.ID, Token: value, Type: typ, CreatedBy: &actor, UpdatedBy: &actor}
	if _, err := repo.Create(ctx, row); err != nil {
		return "", err
	}
	metrics.IssuedTokens.WithLabelValues(string(typ)).Inc()
	return value, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
