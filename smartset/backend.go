package smartset

import (
	"time"

	"github.com/go-kit/log"
)

type AuthFlow int

const (
	// AuthFlowPKCE logs in through the identity server's web form.
	AuthFlowPKCE AuthFlow = iota
	// AuthFlowPassword posts the credentials straight to the token endpoint.
	AuthFlowPassword
)

// Backend describes a SmartSet deployment: where it lives and which login
// and session flavour it speaks.
type Backend struct {
	Flow      AuthFlow
	SiteURL   string
	PortalURL string
	AuthURL   string
	ClientID  string
	// RawSession selects the CreateSession endpoint that answers with the
	// bare session id instead of CreateSession2.
	RawSession bool
}

var (
	// Portal is the current wolf-smartset.com deployment.
	Portal = Backend{
		Flow:      AuthFlowPKCE,
		SiteURL:   "https://www.wolf-smartset.com",
		PortalURL: "https://www.wolf-smartset.com/portal",
		AuthURL:   "https://www.wolf-smartset.com/idsrv",
		ClientID:  "smartset.web",
	}

	// Legacy is the older portal that still accepts the password grant.
	Legacy = Backend{
		Flow:      AuthFlowPassword,
		SiteURL:   "https://www.wolf-smartset.com",
		PortalURL: "https://www.wolf-smartset.com/portal",
	}
)

// At returns b with every URL rooted at siteURL instead. Useful for
// mirrors and test servers.
func (b Backend) At(siteURL string) Backend {
	b.SiteURL = siteURL
	b.PortalURL = siteURL + "/portal"
	if b.AuthURL != "" {
		b.AuthURL = siteURL + "/idsrv"
	}
	return b
}

func (b Backend) authenticator(creds Credentials, logger log.Logger) Authenticator {
	switch b.Flow {
	case AuthFlowPassword:
		return &PasswordAuth{
			Credentials: creds,
			TokenURL:    b.PortalURL + "/connect/token2",
			Logger:      logger,
		}
	default:
		return &PKCEAuth{
			Credentials: creds,
			SiteURL:     b.SiteURL,
			AuthURL:     b.AuthURL,
			ClientID:    b.ClientID,
			Logger:      logger,
		}
	}
}

func (b Backend) sessionOpener(now func() time.Time) SessionOpener {
	if b.RawSession {
		return &RawSessionOpener{BaseURL: b.PortalURL}
	}
	return &BrowserSessionOpener{BaseURL: b.PortalURL, Now: now}
}
