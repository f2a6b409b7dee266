package dbx

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SQLSTATE codes the retry policy and repositories care about.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeCrashShutdown        = "57P02"
	codeCannotConnectNow     = "57P03"
)

var retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "db",
	Name:      "retries_total",
	Help:      "Number of retried database operations",
})

// RetryPolicy bounds the exponential back-off applied to transient errors.
// Zero values fall back to 3 attempts, 1s initial and 10s maximum delay.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p *RetryPolicy) applyDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 10 * time.Second
	}
}

// WithRetry runs fn until it succeeds, returns a non-transient error, or the
// policy runs out of attempts. The error of the last attempt is returned as is.
func WithRetry(ctx context.Context, p RetryPolicy, log logging.Logger, fn func(ctx context.Context) error) error {
	p.applyDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		retriesTotal.Inc()
		log.Warn(ctx, "db retry",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)
	}

	return backoff.RetryNotify(operation, b, notify)
}

// IsTransient reports whether err is a connection-class failure worth retrying.
// Constraint violations and other statement errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected,
			codeAdminShutdown, codeCrashShutdown, codeCannotConnectNow:
			return true
		}
		// class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
