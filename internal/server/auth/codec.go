// Package auth holds the stateless halves of authentication: the JWT codec
// that mints and verifies signed access/refresh tokens, and the password
// hasher used to check credentials.
package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload of every issued token: sub, exp, iat and jti from the
// registered set plus the token type discriminator.
type Claims struct {
	Type models.TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a process-wide HMAC secret.
type Codec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
	now        func() time.Time
}

// NewCodec builds a Codec. Only HMAC algorithms are accepted so the secret is
// never mistaken for a public key.
func NewCodec(secret []byte, algorithm string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("codec: empty secret")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("codec: unsupported algorithm %q", algorithm)
	}

	c := &Codec{
		secret:     secret,
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// NewCodecFromConfig builds a Codec from the server config.
func NewCodecFromConfig(cfg *config.Config) (*Codec, error) {
	return NewCodec([]byte(cfg.SecretKey), cfg.Algorithm, cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
}

// DefaultTTL returns the configured lifetime for the token type.
func (c *Codec) DefaultTTL(t models.TokenType) time.Duration {
	if t == models.TokenTypeRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Encode mints a signed token for subject. A non-positive ttl selects the
// default lifetime of the token type. Every token gets a fresh jti, so two
// tokens minted in the same second for the same user still differ.
func (c *Codec) Encode(subject string, t models.TokenType, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		ttl = c.DefaultTTL(t)
	}
	now := c.now()
	claims := &Claims{
		Type: t,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// DecodeAndVerify checks signature, structure and expiry. It knows nothing
// about revocation; that is the token store's job.
func (c *Codec) DecodeAndVerify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := c.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
