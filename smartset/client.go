package smartset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ErrFetchFailed matches every *FetchError.
var ErrFetchFailed = errors.New("smartset: fetch failed")

// FetchError is a value poll the portal answered with an error object.
type FetchError struct {
	Code    string
	Type    string
	Message string
	Body    []byte
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("smartset: fetch failed: code=%q type=%q: %s", e.Code, e.Type, e.Message)
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// IsReadParameterError reports the portal's generic failure to read values
// from the gateway.
func (e *FetchError) IsReadParameterError() bool {
	return e.Message == readParameterError
}

// StatusError is an unexpected HTTP status outside the 401/500 retry path.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("smartset: %s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

type Device struct {
	Id        int64
	GatewayId int64
	Name      string
}

func (d Device) String() string {
	return fmt.Sprintf("Name: %s, Id: %d, Gateway %d", d.Name, d.Id, d.GatewayId)
}

// Value is a live reading of the parameter with the same ValueId.
type Value struct {
	ValueId int64
	Value   string
	State   string
}

func (v Value) String() string {
	return fmt.Sprintf("Value id: %d, value: %s, state %s", v.ValueId, v.Value, v.State)
}

// Client talks to one SmartSet account. It keeps the token pair, the
// browser session and the poll cursor between calls and is not safe for
// concurrent use: callers sharing a Client must serialize their calls.
type Client struct {
	auth     Authenticator
	sessions SessionOpener
	exec     Executor
	logger   log.Logger
	now      func() time.Time

	tokens     *Tokens
	sessionId  string
	lastAccess *string
	failed     bool
}

type Option func(*Client)

func WithLogger(logger log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) { c.auth = auth }
}

func WithSessionOpener(sessions SessionOpener) Option {
	return func(c *Client) { c.sessions = sessions }
}

func WithExecutor(exec Executor) Option {
	return func(c *Client) { c.exec = exec }
}

// New creates a client for the given account on backend. Strategies not
// supplied through options are taken from the backend.
func New(username, password string, backend Backend, opts ...Option) *Client {
	c := &Client{
		logger: log.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	creds := Credentials{Username: username, Password: password}
	if c.auth == nil {
		c.auth = backend.authenticator(creds, log.With(c.logger, "component", "auth"))
	}
	if c.sessions == nil {
		c.sessions = backend.sessionOpener(c.now)
	}
	if c.exec == nil {
		c.exec = &HTTPExecutor{BaseURL: backend.PortalURL}
	}
	return c
}

// FetchSystemList returns the systems registered to the account.
func (c *Client) FetchSystemList(ctx context.Context) ([]Device, error) {
	var systems []systemResult
	err := c.do(ctx, func() Request {
		return Request{Method: http.MethodGet, Path: systemListPath}
	}, &systems)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(systems))
	for _, s := range systems {
		devices = append(devices, Device{Id: s.Id, GatewayId: s.GatewayId, Name: s.Name})
	}
	return devices, nil
}

// FetchParameters returns the parameter schema of the general menu of a
// system, merged across its tabs.
func (c *Client) FetchParameters(ctx context.Context, gatewayId, systemId int64) ([]Parameter, error) {
	var desc guiDescription
	err := c.do(ctx, func() Request {
		return Request{
			Method: http.MethodGet,
			Path:   guiDescriptionPath,
			Query: url.Values{
				"GatewayId": {strconv.FormatInt(gatewayId, 10)},
				"SystemId":  {strconv.FormatInt(systemId, 10)},
			},
		}
	}, &desc)
	if err != nil {
		return nil, err
	}
	if len(desc.MenuItems) == 0 {
		return nil, fmt.Errorf("smartset: gui description of system %d has no menu items", systemId)
	}

	views := make([][]Parameter, 0, len(desc.MenuItems[0].TabViews))
	for _, view := range desc.MenuItems[0].TabViews {
		params, err := mapView(view)
		if err != nil {
			return nil, err
		}
		views = append(views, params)
	}
	return flattenViews(views), nil
}

// FetchValue polls the current values of parameters. Entries the portal
// returns without a value are skipped.
func (c *Client) FetchValue(ctx context.Context, gatewayId, systemId int64, parameters []Parameter) ([]Value, error) {
	ids := make([]int64, len(parameters))
	for i, p := range parameters {
		ids[i] = p.ValueId
	}

	var raw json.RawMessage
	err := c.do(ctx, func() Request {
		return Request{
			Method: http.MethodPost,
			Path:   parameterValuePath,
			Header: map[string]string{"Content-Type": "application/json"},
			Body: valuesRequest{
				BundleId:     bundleID,
				IsSubBundle:  false,
				ValueIdList:  ids,
				GatewayId:    gatewayId,
				SystemId:     systemId,
				GuiIdChanged: true,
				SessionId:    c.sessionId,
				LastAccess:   c.lastAccess,
			},
		}
	}, &raw)
	if err != nil {
		return nil, err
	}

	var result valuesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.failed = true
		return nil, fmt.Errorf("smartset: decode %s response: %w", parameterValuePath, err)
	}
	if result.ErrorCode != nil || result.ErrorType != nil {
		c.failed = true
		return nil, &FetchError{
			Code:    rawText(result.ErrorCode),
			Type:    rawText(result.ErrorType),
			Message: result.Message,
			Body:    raw,
		}
	}

	c.lastAccess = result.LastAccess
	values := make([]Value, 0, len(result.Values))
	for _, v := range result.Values {
		if v.Value == nil {
			continue
		}
		values = append(values, Value{ValueId: v.ValueId, Value: rawText(v.Value), State: rawText(v.State)})
	}
	return values, nil
}

type attemptOutcome int

const (
	attemptOK attemptOutcome = iota
	attemptRetry
)

func classify(resp *Response) attemptOutcome {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusInternalServerError:
		return attemptRetry
	default:
		return attemptOK
	}
}

// do runs one logical request: authorize if needed, one attempt, and on a
// 401 or 500 a forced re-authorization followed by exactly one more attempt.
// build is called again after re-authorization so the request picks up the
// new session. Any failure marks the client so the next call logs in again.
func (c *Client) do(ctx context.Context, build func() Request, out any) error {
	if err := c.authorize(ctx, false); err != nil {
		c.failed = true
		return err
	}

	req := build()
	resp, err := c.exec.Execute(ctx, c.tokens.AccessToken(), req)
	if err != nil {
		c.failed = true
		return err
	}

	if classify(resp) == attemptRetry {
		level.Warn(c.logger).Log("msg", "request rejected, authorizing again and retrying once", "path", req.Path, "status", resp.StatusCode)
		if err := c.authorize(ctx, true); err != nil {
			c.failed = true
			return err
		}
		req = build()
		resp, err = c.exec.Execute(ctx, c.tokens.AccessToken(), req)
		if err != nil {
			c.failed = true
			return fmt.Errorf("retry: %w", err)
		}
	}

	if err := decode(req, resp, out); err != nil {
		c.failed = true
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		level.Debug(c.logger).Log("msg", "decoded response with unexpected status", "path", req.Path, "status", resp.StatusCode)
	}
	c.failed = false
	return nil
}

// decode parses the body whatever the status, so portal error payloads
// sent with a 4xx status still reach the caller. A non-2xx response whose
// body is not JSON becomes a StatusError.
func decode(req Request, resp *Response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{Method: req.Method, Path: req.Path, StatusCode: resp.StatusCode, Body: resp.Body}
		}
		return fmt.Errorf("smartset: decode %s response: %w", req.Path, err)
	}
	return nil
}

// authorize logs in and opens a session when forced, when no tokens are
// held, when they expired, or when the previous request failed. The session
// lives exactly as long as the token pair that opened it.
func (c *Client) authorize(ctx context.Context, force bool) error {
	if !force && !c.failed && c.tokens.ValidAt(c.now()) {
		return nil
	}

	tokens, err := c.auth.Authenticate(ctx)
	if err != nil {
		level.Error(c.logger).Log("msg", "authentication failed", "err", err)
		return err
	}
	sessionId, err := c.sessions.OpenSession(ctx, tokens.AccessToken())
	if err != nil {
		return fmt.Errorf("smartset: open session: %w", err)
	}

	c.tokens = tokens
	c.sessionId = sessionId
	level.Debug(c.logger).Log("msg", "session opened", "expiry", tokens.Expiry())
	return nil
}
