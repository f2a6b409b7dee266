package models

import "time"

// TokenType discriminates access and refresh tokens, both in the JWT "type"
// claim and in the tokens table.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// Token is one issued credential. ID is a monotonically increasing sequence,
// so a lower ID means an older token.
type Token struct {
	ID        int64
	UserID    string
	Token     string
	Type      TokenType
	Revoked   bool
	Expired   bool
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy *string
	UpdatedBy *string
}

// Active reports whether the row may still authenticate a request.
func (t *Token) Active() bool {
	return !t.Revoked && !t.Expired
}

// TokenPair is what login and refresh hand back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}
