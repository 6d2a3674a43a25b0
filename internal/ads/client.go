// Package ads implements the advertising platform boundary: the placement
// performance report (GAQL search) and the shared exclusion list write path
// of the Google Ads REST API.
package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Veraticus/ads-placement-excluder/internal/common"
)

// adwordsScope is the OAuth scope for the Google Ads API.
const adwordsScope = "https://www.googleapis.com/auth/adwords"

// Config holds the configuration for the Google Ads client.
type Config struct {
	Endpoint        string
	DeveloperToken  string
	LoginCustomerID string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	SharedSetID     string
}

// Validate checks that the client can authenticate.
func (c Config) Validate() error {
	if c.DeveloperToken == "" {
		return fmt.Errorf("%w: ads developer token", common.ErrMissingConfig)
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return fmt.Errorf("%w: ads oauth credentials", common.ErrMissingConfig)
	}
	if c.SharedSetID == "" {
		return fmt.Errorf("%w: ads shared set id", common.ErrMissingConfig)
	}
	return nil
}

// Client talks to the Google Ads REST API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	config     Config
}

// NewClient creates an authenticated client using the configured refresh
// token.
func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{adwordsScope},
	}
	tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: config.RefreshToken})

	return &Client{
		config:     config,
		httpClient: oauth2.NewClient(ctx, tokenSource),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// post sends one JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.config.DeveloperToken)
	if c.config.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", c.config.LoginCustomerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("%w: %v", common.ErrAdsAPI, err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("%w: reading response: %v", common.ErrAdsAPI, err), Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", common.ErrRateLimit, truncate(data))
	case resp.StatusCode >= 500:
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: status %d: %s", common.ErrAdsAPI, resp.StatusCode, truncate(data)),
			Retryable: true,
		}
	case resp.StatusCode >= 400:
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: status %d: %s", common.ErrAdsAPI, resp.StatusCode, truncate(data)),
			Retryable: false,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", common.ErrAdsAPI, err)
	}
	return nil
}

func truncate(data []byte) string {
	const max = 512
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
