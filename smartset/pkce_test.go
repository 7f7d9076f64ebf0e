package smartset

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPage = `<!DOCTYPE html>
<html><body>
<form method="post" action="/idsrv/Account/Login">
<input name="Input.Username" type="text"/>
<input name="__RequestVerificationToken" type="hidden" value="verify-123"/>
<input name="Input.Language" type="hidden" value="de-DE"/>
</form>
</body></html>`

type identityServer struct {
	*httptest.Server
	state       string
	challenge   string
	callbackURL string
	exchanged   bool
	code        string
}

func newIdentityServer(t *testing.T, page string) *identityServer {
	ids := &identityServer{code: "code-1"}
	mux := http.NewServeMux()

	mux.HandleFunc("/idsrv/Account/Login", func(w http.ResponseWriter, r *http.Request) {
		returnURL, err := url.Parse(r.URL.Query().Get("ReturnUrl"))
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "/idsrv/connect/authorize/callback", returnURL.Path)

		switch r.Method {
		case http.MethodGet:
			q := returnURL.Query()
			assert.Equal(t, "smartset.web", q.Get("client_id"))
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, "S256", q.Get("code_challenge_method"))
			assert.Equal(t, "query", q.Get("response_mode"))
			assert.Equal(t, ids.URL+"/signin-callback.html", q.Get("redirect_uri"))
			assert.Equal(t, "openid profile api role", q.Get("scope"))
			ids.state = q.Get("state")
			ids.challenge = q.Get("code_challenge")

			http.SetCookie(w, &http.Cookie{Name: "antiforgery", Value: "cookie-1", Path: "/"})
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(page))
		case http.MethodPost:
			cookie, err := r.Cookie("antiforgery")
			if assert.NoError(t, err) {
				assert.Equal(t, "cookie-1", cookie.Value)
			}
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "user@example.com", r.PostForm.Get("Input.Username"))
			assert.Equal(t, "secret", r.PostForm.Get("Input.Password"))
			assert.Equal(t, "verify-123", r.PostForm.Get("__RequestVerificationToken"))

			http.Redirect(w, r, returnURL.String(), http.StatusFound)
		}
	})

	mux.HandleFunc("/idsrv/connect/authorize/callback", func(w http.ResponseWriter, r *http.Request) {
		target := ids.callbackURL
		if target == "" {
			target = "/signin-callback.html?code=" + ids.code + "&state=" + r.URL.Query().Get("state")
		}
		http.Redirect(w, r, target, http.StatusFound)
	})

	mux.HandleFunc("/signin-callback.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})

	mux.HandleFunc("/idsrv/connect/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, ids.code, r.PostForm.Get("code"))
		assert.Equal(t, "smartset.web", r.PostForm.Get("client_id"))
		assert.Equal(t, ids.URL+"/signin-callback.html", r.PostForm.Get("redirect_uri"))

		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		assert.Equal(t, ids.challenge, base64.RawURLEncoding.EncodeToString(sum[:]))
		ids.exchanged = true

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-pkce",
			"refresh_token": "refresh-pkce",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})

	ids.Server = httptest.NewServer(mux)
	return ids
}

func newPKCEAuth(ids *identityServer) *PKCEAuth {
	backend := Portal.At(ids.URL)
	return &PKCEAuth{
		Credentials: Credentials{Username: "user@example.com", Password: "secret"},
		SiteURL:     backend.SiteURL,
		AuthURL:     backend.AuthURL,
		ClientID:    backend.ClientID,
	}
}

func TestPKCEAuth_Success(t *testing.T) {
	ids := newIdentityServer(t, loginPage)
	defer ids.Close()

	tokens, err := newPKCEAuth(ids).Authenticate(context.Background())
	require.NoError(t, err)

	assert.True(t, ids.exchanged)
	assert.NotEmpty(t, ids.state)
	assert.Equal(t, "access-pkce", tokens.AccessToken())
	assert.Equal(t, "refresh-pkce", tokens.RefreshToken())
}

func TestPKCEAuth_MissingVerificationToken(t *testing.T) {
	ids := newIdentityServer(t, `<html><body><p>maintenance</p></body></html>`)
	defer ids.Close()

	tokens, err := newPKCEAuth(ids).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidAuth)
	assert.Nil(t, tokens)
	assert.False(t, ids.exchanged)
}

func TestPKCEAuth_NoCode(t *testing.T) {
	ids := newIdentityServer(t, loginPage)
	ids.callbackURL = "/signin-callback.html?error=access_denied"
	defer ids.Close()

	tokens, err := newPKCEAuth(ids).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidAuth)
	assert.Nil(t, tokens)
	assert.False(t, ids.exchanged)
}

func TestPKCEAuth_StateMismatch(t *testing.T) {
	ids := newIdentityServer(t, loginPage)
	ids.callbackURL = "/signin-callback.html?code=code-1&state=forged"
	defer ids.Close()

	_, err := newPKCEAuth(ids).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrInvalidAuth)
	assert.False(t, ids.exchanged)
}

func TestFindVerificationToken(t *testing.T) {
	token, err := findVerificationToken([]byte(loginPage))
	require.NoError(t, err)
	assert.Equal(t, "verify-123", token)

	_, err = findVerificationToken([]byte(`<div><input value="outside"/></div>`))
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), verificationTokenField))
}
