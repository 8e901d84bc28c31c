package session

import (
	"context"
	"time"
)

// State of the credential bound to the running client.
type State int

const (
	Absent State = iota
	Authenticated
	Stale
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Profile is the identity snapshot returned by the identity provider.
type Profile struct {
	Subject   string `json:"sub"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"picture,omitempty"`
}

// Session is the persisted credential and profile.
type Session struct {
	// Core identity
	Profile Profile `json:"profile"`

	// Tokens (refresh is optional, access is required)
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// Session management
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	RenewedAt time.Time `json:"renewed_at,omitempty"`
}

// Expired reports whether the access credential is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Status is what every store operation reports back.
type Status struct {
	State     State
	Profile   Profile
	ExpiresAt time.Time
}

// Grant is the result of a credential exchange or a renewal.
type Grant struct {
	AccessToken  string
	ExpiresIn    int // seconds
	RefreshToken string
	Profile      *Profile // nil keeps the current profile on renewal
}

// RenewHint carries what the identity provider needs for a silent renewal.
type RenewHint struct {
	RefreshToken string
	LoginHint    string
}

// Renewer obtains a fresh credential without user interaction.
type Renewer interface {
	Renew(ctx context.Context, hint RenewHint) (Grant, error)
}

// Revoker invalidates a credential with the identity provider.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// ExpiredNotifier is told when an irrecoverable renewal failure ended the session.
// How to tell the user is up to the presentation layer.
type ExpiredNotifier func(last Profile)
