package smartset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const timestampLayout = "2006-01-02 15:04:05"

// SessionOpener trades an access token for the browser session id that
// parameter polls must carry.
type SessionOpener interface {
	OpenSession(ctx context.Context, accessToken string) (string, error)
}

// BrowserSessionOpener posts a timestamp to CreateSession2 and reads the
// BrowserSessionId from the JSON answer.
type BrowserSessionOpener struct {
	BaseURL string
	Now     func() time.Time
}

func (o *BrowserSessionOpener) OpenSession(ctx context.Context, accessToken string) (string, error) {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	rc := resty.New()
	defer rc.GetClient().CloseIdleConnections()

	resp, err := rc.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]string{"Timestamp": now().Format(timestampLayout)}).
		Post(o.BaseURL + "/" + createSession2Path)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create session: status %d", resp.StatusCode())
	}

	var result browserSessionResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	id := rawText(result.BrowserSessionId)
	if id == "" {
		return "", errors.New("create session: response without BrowserSessionId")
	}
	return id, nil
}

// RawSessionOpener posts an empty body to CreateSession; the response body
// itself is the session id.
type RawSessionOpener struct {
	BaseURL string
}

func (o *RawSessionOpener) OpenSession(ctx context.Context, accessToken string) (string, error) {
	rc := resty.New()
	defer rc.GetClient().CloseIdleConnections()

	resp, err := rc.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Post(o.BaseURL + "/" + createSessionPath)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create session: status %d", resp.StatusCode())
	}

	id := strings.Trim(strings.TrimSpace(resp.String()), `"`)
	if id == "" {
		return "", errors.New("create session: empty response")
	}
	return id, nil
}
