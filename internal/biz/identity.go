package biz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrValidation is returned when an entity is constructed from incomplete data.
	ErrValidation = errors.New("validation error")
	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = errors.New("user not found")
)

// Token is the credential a provider issued for an identity.
type Token struct {
	Type         string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// NormalizedIdentity is what an OAuth client extracts from a provider's token
// response. It is never stored as-is.
type NormalizedIdentity struct {
	ProviderID string
	Identity   string // provider-scoped unique id, e.g. an email or subject
	Name       string // optional profile name
	Email      string // optional profile email
	Token      Token
}

// User is a local account.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Identity links one provider identity to its owning User.
// (ProviderID, Identity) is unique across all identities.
type Identity struct {
	ID         string
	UserID     string
	ProviderID string
	Identity   string
	Token      Token
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks that the record carries enough to be reconciled.
func (ni *NormalizedIdentity) Validate() error {
	if ni == nil {
		return fmt.Errorf("%w: identity is nil", ErrValidation)
	}
	if strings.TrimSpace(ni.ProviderID) == "" {
		return fmt.Errorf("%w: provider id is required", ErrValidation)
	}
	if strings.TrimSpace(ni.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrValidation)
	}
	return nil
}

// NewUserFromIdentity builds the user created on a first sign-in.
func NewUserFromIdentity(ni *NormalizedIdentity, now time.Time) *User {
	email := ni.Email
	if email == "" && strings.Contains(ni.Identity, "@") {
		email = ni.Identity
	}
	name := ni.Name
	if name == "" {
		name = email
	}
	return &User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
	}
}

// NewIdentity builds an identity owned by user. An identity without a
// persisted parent user is rejected.
func NewIdentity(user *User, ni *NormalizedIdentity, now time.Time) (*Identity, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: identity requires a parent user", ErrValidation)
	}
	if err := ni.Validate(); err != nil {
		return nil, err
	}
	return &Identity{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		ProviderID: ni.ProviderID,
		Identity:   ni.Identity,
		Token:      ni.Token,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
