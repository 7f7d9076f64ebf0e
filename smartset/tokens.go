package smartset

import (
	"time"

	"golang.org/x/oauth2"
)

// Tokens is the access/refresh token pair issued by the identity server.
// A new authentication replaces the pair, it is never mutated.
type Tokens struct {
	token *oauth2.Token
}

// NewTokens builds a pair that expires expiresIn after now.
func NewTokens(accessToken, refreshToken string, expiresIn time.Duration, now time.Time) *Tokens {
	return &Tokens{token: &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       now.Add(expiresIn),
	}}
}

func (t *Tokens) AccessToken() string {
	if t == nil || t.token == nil {
		return ""
	}
	return t.token.AccessToken
}

func (t *Tokens) RefreshToken() string {
	if t == nil || t.token == nil {
		return ""
	}
	return t.token.RefreshToken
}

func (t *Tokens) Expiry() time.Time {
	if t == nil || t.token == nil {
		return time.Time{}
	}
	return t.token.Expiry
}

// ValidAt reports whether the pair can still be used at now. Unlike
// oauth2.Token.Valid no early-expiry margin is applied.
func (t *Tokens) ValidAt(now time.Time) bool {
	if t.AccessToken() == "" {
		return false
	}
	return !now.After(t.token.Expiry)
}
