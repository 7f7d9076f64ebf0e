package smartset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/oauth2"
)

const (
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:108.0) Gecko/20100101 Firefox/108.0"

	verificationTokenField = "__RequestVerificationToken"
)

var pkceScopes = []string{"openid", "profile", "api", "role"}

// PKCEAuth logs in the way the SmartSet web portal does: it fills in the
// identity server's login form and trades the resulting authorization code
// for tokens, protected by a PKCE verifier.
type PKCEAuth struct {
	Credentials
	// SiteURL is the public site hosting signin-callback.html.
	SiteURL string
	// AuthURL is the identity server root, e.g. https://www.wolf-smartset.com/idsrv.
	AuthURL  string
	ClientID string
	Logger   log.Logger
}

func (a *PKCEAuth) Authenticate(ctx context.Context) (*Tokens, error) {
	logger := loggerOrNop(a.Logger)
	token, err := a.authenticate(ctx, logger)
	if err != nil {
		return nil, invalidAuth(err)
	}
	return acceptToken(token, logger)
}

func (a *PKCEAuth) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    a.ClientID,
		RedirectURL: a.SiteURL + "/signin-callback.html",
		Scopes:      pkceScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.AuthURL + "/connect/authorize/callback",
			TokenURL:  a.AuthURL + "/connect/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (a *PKCEAuth) authenticate(ctx context.Context, logger log.Logger) (*oauth2.Token, error) {
	conf := a.config()
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	authorizeURL, err := url.Parse(conf.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("lang", "de-DE"),
	))
	if err != nil {
		return nil, fmt.Errorf("build authorize url: %w", err)
	}
	returnURL := authorizeURL.RequestURI()

	// The login form sets antiforgery cookies that must accompany the POST,
	// so both steps share one resty client and its cookie jar.
	rc := resty.New().SetHeader("User-Agent", userAgent)
	defer rc.GetClient().CloseIdleConnections()

	resp, err := rc.R().
		SetContext(ctx).
		SetQueryParam("ReturnUrl", returnURL).
		Get(a.AuthURL + "/Account/Login")
	if err != nil {
		return nil, fmt.Errorf("load login page: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("load login page: status %d", resp.StatusCode())
	}
	level.Debug(logger).Log("msg", "login page loaded", "bytes", len(resp.Body()))

	verificationToken, err := findVerificationToken(resp.Body())
	if err != nil {
		return nil, err
	}

	resp, err = rc.R().
		SetContext(ctx).
		SetQueryParam("ReturnUrl", returnURL).
		SetHeaders(map[string]string{
			"Sec-Fetch-Dest": "document",
			"Sec-Fetch-Mode": "navigate",
		}).
		SetFormData(map[string]string{
			"Input.Username":       a.Username,
			"Input.Password":       a.Password,
			verificationTokenField: verificationToken,
		}).
		Post(a.AuthURL + "/Account/Login")
	if err != nil {
		return nil, fmt.Errorf("submit login form: %w", err)
	}

	final := resp.RawResponse.Request.URL
	query := final.Query()
	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("login did not redirect with an authorization code (ended at %s, status %d)", final.Path, resp.StatusCode())
	}
	if s := query.Get("state"); s != "" && s != state {
		return nil, errors.New("authorization response state mismatch")
	}
	level.Debug(logger).Log("msg", "authorization code received")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, rc.GetClient())
	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}

// findVerificationToken returns the value of the first input that sits
// directly inside a form. On the SmartSet login page that is the
// antiforgery token.
func findVerificationToken(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}

	var walk func(n *html.Node) (string, bool)
	walk = func(n *html.Node) (string, bool) {
		if n.Type == html.ElementNode && n.Data == "form" {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || c.Data != "input" {
					continue
				}
				for _, attr := range c.Attr {
					if attr.Key == "value" {
						return attr.Val, true
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if v, ok := walk(c); ok {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := walk(doc); ok {
		return v, nil
	}
	return "", fmt.Errorf("login page has no %s", verificationTokenField)
}
