package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuthService is the entry point for inbound authentication requests:
// login, refresh, logout and bearer-token checks.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    *SessionPolicy
	codec       *auth.Codec
	hasher      auth.PasswordHasher
	retry       dbx.RetryPolicy
	log         logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the façade over a SessionPolicy.
func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	sessions *SessionPolicy,
	codec *auth.Codec,
	hasher auth.PasswordHasher,
	cfg *config.Config,
	log logging.Logger,
) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		sessions:    sessions,
		codec:       codec,
		hasher:      hasher,
		retry:       retryPolicy(cfg),
		log:         log.With("module", "auth"),
	}
}

// Login verifies the credentials and issues a new session.
// Unknown users and wrong passwords both yield common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login", trace.WithAttributes(attribute.String("user.name", username)))
	defer span.End()

	user, err := s.userByName(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// burn the same bcrypt time as a real check
			s.hasher.Verify(password, s.fallbackHash())
			metrics.LoginTotal.WithLabelValues(metrics.ResultUnauthorized).Inc()
			return nil, common.ErrorUnauthorized
		}
		metrics.LoginTotal.WithLabelValues(metrics.ResultError).Inc()
		recordError(span, err)
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		metrics.LoginTotal.WithLabelValues(metrics.ResultUnauthorized).Inc()
		s.log.Info(ctx, "login rejected", "username", username)
		return nil, common.ErrorUnauthorized
	}

	pair, err := s.sessions.IssueSession(ctx, user)
	if err != nil {
		metrics.LoginTotal.WithLabelValues(resultOf(err)).Inc()
		recordError(span, err)
		return nil, err
	}

	metrics.LoginTotal.WithLabelValues(metrics.ResultOK).Inc()
	s.log.Info(ctx, "login succeeded", "user_id", user.ID)
	return pair, nil
}

// Refresh rotates refreshToken into a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	pair, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues(resultOf(err)).Inc()
		return nil, err
	}
	metrics.RefreshTotal.WithLabelValues(metrics.ResultOK).Inc()
	return pair, nil
}

// Logout ends the session the token belongs to. Repeating it is a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.EndSession(ctx, token)
}

// Authenticate resolves a bearer access token to the user owning its row. The
// token must be stored and active, carry a valid ACCESS claim set, and name
// the owner's current username.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	var row *models.Token
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		var err error
		row, err = s.repomanager.Tokens(s.db).FindActive(ctx, accessToken, models.TokenTypeAccess)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		recordError(span, err)
		return nil, err
	}

	claims, err := s.codec.DecodeAndVerify(accessToken)
	if err != nil || claims.Type != models.TokenTypeAccess {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.sessions.owner(ctx, row, claims.Subject)
	if err != nil {
		if !errors.Is(err, common.ErrorUnauthorized) {
			recordError(span, err)
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) userByName(ctx context.Context, username string) (*models.User, error) {
	var user *models.User
	err := dbx.WithRetry(ctx, s.retry, s.log, func(ctx context.Context) error {
		var err error
		user, err = s.repomanager.Users(s.db).GetByUsername(ctx, username)
		return err
	})
	return user, err
}

func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-password")
		if err != nil {
			s.log.Warn(context.Background(), "fallback hash failed", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func resultOf(err error) string {
	if errors.Is(err, common.ErrorUnauthorized) {
		return metrics.ResultUnauthorized
	}
	return metrics.ResultError
}
