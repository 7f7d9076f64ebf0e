package smartset

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/oauth2"
)

// ErrInvalidAuth is returned for every failed login, whatever the cause:
// rejected credentials, an unexpected login page, a broken token response
// or the identity server being unreachable.
var ErrInvalidAuth = errors.New("smartset: invalid authentication")

var passwordScopes = []string{"offline_access", "openid", "api"}

// Authenticator exchanges the user's credentials for a token pair.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Tokens, error)
}

type Credentials struct {
	Username string
	Password string
}

// PasswordAuth logs in with the resource owner password grant used by the
// older SmartSet portal.
type PasswordAuth struct {
	Credentials
	TokenURL   string
	HTTPClient *http.Client
	Logger     log.Logger
}

func (a *PasswordAuth) Authenticate(ctx context.Context) (*Tokens, error) {
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: passwordScopes,
	}

	httpClient := a.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	token, err := conf.PasswordCredentialsToken(ctx, a.Username, a.Password)
	if err != nil {
		return nil, invalidAuth(err)
	}
	return acceptToken(token, loggerOrNop(a.Logger))
}

// acceptToken applies the checks shared by both grants. Some deployments
// answer 200 with an error body, which oauth2 does not always reject.
func acceptToken(token *oauth2.Token, logger log.Logger) (*Tokens, error) {
	if e := token.Extra("error"); e != nil {
		return nil, fmt.Errorf("%w: token endpoint returned error %v", ErrInvalidAuth, e)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", ErrInvalidAuth)
	}
	if token.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: token response without expires_in", ErrInvalidAuth)
	}
	level.Debug(logger).Log("msg", "token issued", "expiry", token.Expiry, "refresh_token", token.RefreshToken != "")
	return &Tokens{token: token}, nil
}

func invalidAuth(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidAuth, err)
}

func loggerOrNop(logger log.Logger) log.Logger {
	if logger == nil {
		return log.NewNopLogger()
	}
	return logger
}
