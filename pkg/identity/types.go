package identity

import "time"

// VerifiedIdentity is the claim set distilled from a successfully verified
// credential, independent of the credential's format. Email is the primary
// correlation key and is always present; Subject falls back to Email when
// the credential carries no stable subject of its own.
type VerifiedIdentity struct {
	Email             string
	Subject           string
	PreferredUsername string
	GivenName         string
	FamilyName        string
	IsAdmin           bool
	Issuer            string
}

// User is a local user row
type User struct {
	ID          int64
	Subject     string
	Email       string
	Username    string
	FirstName   string
	LastName    string
	IsAdmin     bool
	IsActive    bool
	Issuer      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
}
