package smartset

import (
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_Legacy(t *testing.T) {
	b := Legacy.At("http://wolf.local")

	auth, ok := b.authenticator(Credentials{Username: "user", Password: "secret"}, log.NewNopLogger()).(*PasswordAuth)
	require.True(t, ok)
	assert.Equal(t, "http://wolf.local/portal/connect/token2", auth.TokenURL)

	opener, ok := b.sessionOpener(time.Now).(*BrowserSessionOpener)
	require.True(t, ok)
	assert.Equal(t, "http://wolf.local/portal", opener.BaseURL)
}

func TestBackend_Portal(t *testing.T) {
	b := Portal.At("http://wolf.local")

	auth, ok := b.authenticator(Credentials{Username: "user", Password: "secret"}, log.NewNopLogger()).(*PKCEAuth)
	require.True(t, ok)
	assert.Equal(t, "http://wolf.local", auth.SiteURL)
	assert.Equal(t, "http://wolf.local/idsrv", auth.AuthURL)
	assert.Equal(t, "smartset.web", auth.ClientID)

	_, ok = b.sessionOpener(time.Now).(*BrowserSessionOpener)
	assert.True(t, ok)
}

func TestBackend_RawSession(t *testing.T) {
	b := Legacy
	b.RawSession = true

	opener, ok := b.sessionOpener(time.Now).(*RawSessionOpener)
	require.True(t, ok)
	assert.Equal(t, "https://www.wolf-smartset.com/portal", opener.BaseURL)
}
