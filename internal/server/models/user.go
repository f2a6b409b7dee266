// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an identity record. PasswordHash is never serialised.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedBy    *string
	UpdatedBy    *string
}
