package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type Account struct {
	ID            uuid.UUID
	Username      string
	Email         string
	PasswordHash  string
	Role          string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Fingerprint (sha256 hex) of the active refresh token and when it was
	// issued. Both nil if the account has no live session.
	RefreshFingerprint *string
	RefreshIssuedAt    *time.Time

	// Fingerprint of the outstanding email verification token, nil once
	// consumed or never issued.
	EmailVerifyFingerprint *string
}
