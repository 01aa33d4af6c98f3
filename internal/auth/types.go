package auth

import "errors"

// Common errors returned by the authentication subsystem.
var (
	ErrDisabled       = errors.New("authentication disabled")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingToken   = errors.New("missing bearer token")
	ErrSubjectRevoked = errors.New("subject is disabled")
)

// Subject captures the identity embedded in access tokens and passed to
// request handlers via context.
type Subject struct {
	ParticipantID string
	Name          string
	Kind          string
	Disabled      bool
}

// Clone creates a copy of the subject suitable for embedding in tokens.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// TokenPair contains the issued access token.
type TokenPair struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"`
	TokenType   string   `json:"token_type"`
	Subject     *Subject `json:"-"`
}

// Config configures the authentication service.
type Config struct {
	Mode      Mode
	Secret    string
	Issuer    string
	AccessTTL int64
}

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeToken    Mode = "token"
)
