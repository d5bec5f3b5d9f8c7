package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"time"

	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// Credentials authorize the bot against the posting endpoint.
type Credentials struct {
	AppKey           string `json:"APP_KEY"`
	AppSecret        string `json:"APP_SECRET"`
	OAuthToken       string `json:"OAUTH_TOKEN"`
	OAuthTokenSecret string `json:"OAUTH_TOKEN_SECRET"`
}

// Validate reports every missing key.
func (c Credentials) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"APP_KEY":            c.AppKey,
		"APP_SECRET":         c.AppSecret,
		"OAUTH_TOKEN":        c.OAuthToken,
		"OAUTH_TOKEN_SECRET": c.OAuthTokenSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing %v", apperrors.ErrInvalidCredentials, missing)
	}
	return nil
}

// LoadCredentials reads a credentials JSON file.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials
	if path == "" {
		return creds, fmt.Errorf("%w: no credentials file configured", apperrors.ErrInvalidCredentials)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return creds, fmt.Errorf("%w: reading %s: %v", apperrors.ErrInvalidCredentials, path, err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("%w: parsing %s: %v", apperrors.ErrInvalidCredentials, path, err)
	}
	if err := creds.Validate(); err != nil {
		return creds, err
	}
	return creds, nil
}

// Signature returns the hex HMAC-SHA256 of body keyed by both secrets.
func (c Credentials) Signature(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.AppSecret+"&"+c.OAuthTokenSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookSink POSTs each post as JSON. The app key and token travel as
// headers and the body is signed with the secrets, which are never sent.
type WebhookSink struct {
	url    string
	creds  Credentials
	client *http.Client
}

// NewWebhookSink creates a WebhookSink for endpoint.
func NewWebhookSink(endpoint string, creds Credentials, timeout time.Duration) (*WebhookSink, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("%w: webhook url %q: %v", apperrors.ErrInvalidArgument, endpoint, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    endpoint,
		creds:  creds,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (s *WebhookSink) Send(ctx context.Context, p Post) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: encoding post: %v", apperrors.ErrSinkFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", apperrors.ErrSinkFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.ID)
	req.Header.Set("X-App-Key", s.creds.AppKey)
	req.Header.Set("X-OAuth-Token", s.creds.OAuthToken)
	req.Header.Set("X-Signature", s.creds.Signature(body))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSinkFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: endpoint rejected credentials with status %d", apperrors.ErrInvalidCredentials, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: endpoint returned status %d", apperrors.ErrSinkFailed, resp.StatusCode)
	}
	return nil
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
