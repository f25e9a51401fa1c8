// Package aggregator talks to the Plaid-style account aggregation API.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"canny/backend/internal/aggregator/domain"
)

// DefaultTimeout bounds one HTTP round trip to the aggregator.
const DefaultTimeout = 15 * time.Second

// maxTries is the attempt limit for calls that are safe to repeat.
const maxTries = 3

// ErrNotConfigured is returned by every call when client id or secret is missing.
var ErrNotConfigured = errors.New("aggregator: client id and secret are not configured")

// APIError is a non-2xx answer from the aggregator.
type APIError struct {
	Status    int
	ErrorType string `json:"error_type"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"error_message"`
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("aggregator: status %d: %s: %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("aggregator: status %d", e.Status)
}

// temporary reports whether the request may succeed when repeated.
func (e *APIError) temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// ClientConfig configures PlaidClient.
type ClientConfig struct {
	ClientID     string
	Secret       string
	BaseURL      string
	ClientName   string
	RedirectURI  string
	CountryCodes []string
	Products     []string
	// HTTPClient overrides the default traced client with DefaultTimeout.
	HTTPClient *http.Client
	// RetryInitialInterval is the first backoff interval; 0 uses 200ms.
	RetryInitialInterval time.Duration
}

// PlaidClient is a JSON-over-HTTP client for the aggregator endpoints the API uses.
// It is safe for concurrent use.
type PlaidClient struct {
	cfg  ClientConfig
	http *http.Client
}

// NewPlaidClient returns a client for cfg. A client without credentials is valid
// but answers ErrNotConfigured.
func NewPlaidClient(cfg ClientConfig) *PlaidClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	return &PlaidClient{cfg: cfg, http: hc}
}

// Configured reports whether credentials are set.
func (c *PlaidClient) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.Secret != ""
}

type credentials struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

type linkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type linkTokenRequest struct {
	credentials
	ClientName   string        `json:"client_name"`
	Language     string        `json:"language"`
	CountryCodes []string      `json:"country_codes"`
	Products     []string      `json:"products"`
	User         linkTokenUser `json:"user"`
	RedirectURI  string        `json:"redirect_uri,omitempty"`
}

type linkTokenResponse struct {
	LinkToken string `json:"link_token"`
}

// CreateLinkToken creates a link token bound to userID.
func (c *PlaidClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	req := linkTokenRequest{
		credentials:  c.credentials(),
		ClientName:   c.cfg.ClientName,
		Language:     "en",
		CountryCodes: c.cfg.CountryCodes,
		Products:     c.cfg.Products,
		User:         linkTokenUser{ClientUserID: userID},
		RedirectURI:  c.cfg.RedirectURI,
	}
	var resp linkTokenResponse
	if err := c.retry(ctx, "/link/token/create", req, &resp); err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

type exchangeRequest struct {
	credentials
	PublicToken string `json:"public_token"`
}

// ExchangeResult is the durable credential for a newly linked item.
type ExchangeResult struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// ExchangePublicToken trades a one-time public token for an item access token.
// Public tokens are single use, so the call is never repeated.
func (c *PlaidClient) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	var resp ExchangeResult
	if err := c.post(ctx, "/item/public_token/exchange", exchangeRequest{credentials: c.credentials(), PublicToken: publicToken}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type accountsRequest struct {
	credentials
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Accounts []domain.Account `json:"accounts"`
}

// GetAccounts lists the accounts of the item behind accessToken.
func (c *PlaidClient) GetAccounts(ctx context.Context, accessToken string) ([]domain.Account, error) {
	var resp accountsResponse
	if err := c.retry(ctx, "/accounts/get", accountsRequest{credentials: c.credentials(), AccessToken: accessToken}, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *PlaidClient) credentials() credentials {
	return credentials{ClientID: c.cfg.ClientID, Secret: c.cfg.Secret}
}

// retry repeats post on transport failures, 429 and 5xx with exponential backoff.
func (c *PlaidClient) retry(ctx context.Context, path string, body, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.post(ctx, path, body, out)
		var apiErr *APIError
		if err == nil || errors.Is(err, ErrNotConfigured) || (errors.As(err, &apiErr) && !apiErr.temporary()) {
			if err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, nil
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
	return err
}

func (c *PlaidClient) post(ctx context.Context, path string, body, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("aggregator %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("aggregator %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("aggregator %s: read body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("aggregator %s: decode: %w", path, err)
	}
	return nil
}
