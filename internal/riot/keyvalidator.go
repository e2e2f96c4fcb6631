package riot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// TFT status API is the cheapest authenticated call on a platform host
	statusEndpoint = "/tft/status/v1/platform-data"

	defaultValidationTimeout = 10 * time.Second
)

// KeyValidator checks an API key with one status request before a long run
// commits to it.
type KeyValidator struct {
	httpClient *http.Client
	platform   string
	baseURL    string
}

// KeyValidatorOption configures a KeyValidator
type KeyValidatorOption func(*KeyValidator)

// WithBaseURL sets a custom base URL (useful for testing)
func WithBaseURL(url string) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets a custom timeout for validation requests
func WithTimeout(timeout time.Duration) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.httpClient.Timeout = timeout
	}
}

// NewKeyValidator creates a validator that queries the given platform host.
func NewKeyValidator(platform string, opts ...KeyValidatorOption) *KeyValidator {
	platform = strings.ToLower(strings.TrimSpace(platform))
	v := &KeyValidator{
		httpClient: &http.Client{Timeout: defaultValidationTimeout},
		platform:   platform,
		baseURL:    fmt.Sprintf(defaultHostFormat, platform),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateKey returns nil when the key is accepted, an error marked
// ErrUnauthorized when it is rejected (401/403), and an error marked
// ErrRequestFailed when validity could not be determined.
func (v *KeyValidator) ValidateKey(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return errors.Wrap(ErrUnauthorized, "API key cannot be empty")
	}

	u := v.baseURL + statusEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "build validation request"), ErrRequestFailed)
	}
	req.Header.Set(apiKeyHeader, apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "validate key on %s", v.platform), ErrRequestFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound {
		// 404 on the status route is a server problem, not a key problem
		return errors.Mark(&StatusError{StatusCode: resp.StatusCode, URL: u, Body: abbreviate(body)}, ErrRequestFailed)
	}
	return classifyStatus(resp.StatusCode, u, body)
}
