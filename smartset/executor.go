package smartset

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// Request describes one portal API call relative to the portal base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header map[string]string
	Body   any
}

// Response is the untouched outcome of a single attempt.
type Response struct {
	StatusCode int
	Body       []byte
}

// Executor performs exactly one HTTP attempt with bearer authorization.
type Executor interface {
	Execute(ctx context.Context, accessToken string, req Request) (*Response, error)
}

// HTTPExecutor opens a fresh connection for every call and releases it
// when the call returns.
type HTTPExecutor struct {
	BaseURL string
}

func (e *HTTPExecutor) Execute(ctx context.Context, accessToken string, req Request) (*Response, error) {
	rc := resty.New().SetTransport(&http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
	})
	defer rc.GetClient().CloseIdleConnections()

	// SetAuthToken is applied after the request headers, so a caller
	// supplied Authorization header never wins.
	r := rc.R().
		SetContext(ctx).
		SetHeaders(req.Header).
		SetAuthToken(accessToken)
	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, e.BaseURL+"/"+req.Path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}
