package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

func TestWithRetry_SucceedsFirstTime(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy, logging.NewNop(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy, logging.NewNop(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	connErr := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	err := WithRetry(context.Background(), fastPolicy, logging.NewNop(), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("db error: %w", connErr)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, connErr)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_NonTransientIsNotRetried(t *testing.T) {
	calls := 0
	uniq := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := WithRetry(context.Background(), fastPolicy, logging.NewNop(), func(ctx context.Context) error {
		calls++
		return uniq
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, uniq)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_DomainErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("unauthorized")
	err := WithRetry(context.Background(), fastPolicy, logging.NewNop(), func(ctx context.Context) error {
		return sentinel
	})
	assert.Same(t, sentinel, err)
}

func TestWithRetry_DefaultPolicy(t *testing.T) {
	p := RetryPolicy{}
	p.applyDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, 10*time.Second, p.MaxInterval)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("db error: %w", driver.ErrBadConn), true},
		{"connection exception", &pgconn.PgError{Code: "08001"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"fk violation", &pgconn.PgError{Code: "23503"}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("x: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("duplicate key")))
}
