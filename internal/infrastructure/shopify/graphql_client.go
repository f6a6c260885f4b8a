package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
	"urgify-core/internal/metrics"
	"urgify-core/internal/ports"
)

const (
	defaultAPIVersion  = "2024-10"
	defaultMaxAttempts = 4
	defaultBaseDelay   = 300 * time.Millisecond
)

// GraphQLClientOptions configures the resilient Admin API client.
type GraphQLClientOptions struct {
	Tokens      ports.SessionStore
	HTTPClient  *http.Client
	APIVersion  string
	MaxAttempts int
	BaseDelay   time.Duration

	// BaseURL overrides the per-shop endpoint; tests point it at a local server.
	BaseURL string

	// Sleep overrides the backoff sleeper; tests record delays instead of waiting.
	Sleep func(ctx context.Context, delay time.Duration) error
}

// GraphQLClient executes Admin GraphQL calls authenticated with the shop's
// offline token. 429 and 5xx responses are retried with exponential backoff;
// any other non-2xx status fails immediately since it will not heal on its own.
type GraphQLClient struct {
	tokens      ports.SessionStore
	httpClient  *http.Client
	apiVersion  string
	maxAttempts int
	baseDelay   time.Duration
	baseURL     string
	sleep       func(ctx context.Context, delay time.Duration) error
	logger      zerolog.Logger
}

// NewGraphQLClient creates a client with retry options
func NewGraphQLClient(opts GraphQLClientOptions, logger zerolog.Logger) *GraphQLClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &GraphQLClient{
		tokens:      opts.Tokens,
		httpClient:  httpClient,
		apiVersion:  apiVersion,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		sleep:       sleep,
		logger:      logger,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Call runs one GraphQL request and returns the raw data document.
func (c *GraphQLClient) Call(ctx context.Context, shop, query string, variables map[string]any) (json.RawMessage, error) {
	token, err := c.tokens.GetOfflineToken(ctx, shop)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}
	url := c.endpoint(shop)

	start := time.Now()
	defer func() {
		metrics.AdminAPIRequestDuration.Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build admin api request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Shopify-Access-Token", token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxAttempts-1 {
				if waitErr := c.waitRetry(ctx, shop, attempt, 0, err); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, fmt.Errorf("admin api call to %s failed after %d attempts: %v: %w", shop, c.maxAttempts, err, domain.ErrRetryExhausted)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read admin api response: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt < c.maxAttempts-1 {
				if waitErr := c.waitRetry(ctx, shop, attempt, resp.StatusCode, nil); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, fmt.Errorf("admin api call to %s failed after %d attempts, last status %d: %w", shop, c.maxAttempts, resp.StatusCode, domain.ErrRetryExhausted)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &domain.APIError{Status: resp.StatusCode, Body: string(respBody)}
		}

		var parsed graphQLResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode admin api response: %w", err)
		}
		if len(parsed.Errors) > 0 {
			return nil, fmt.Errorf("admin api graphql error: %s", parsed.Errors[0].Message)
		}
		return parsed.Data, nil
	}
}

func (c *GraphQLClient) waitRetry(ctx context.Context, shop string, attempt, status int, cause error) error {
	delay := c.retryDelay(attempt)
	event := c.logger.Warn().Str("shop", shop).Dur("delay", delay).Int("attempt", attempt+1)
	if status != 0 {
		event = event.Int("status", status)
	}
	if cause != nil {
		event = event.Err(cause)
	}
	event.Msg("Admin API call failed, retrying")
	metrics.AdminAPIRetriesTotal.Inc()
	return c.sleep(ctx, delay)
}

// retryDelay doubles the base delay per spent attempt: 300ms, 600ms, 1200ms.
func (c *GraphQLClient) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (c *GraphQLClient) endpoint(shop string) string {
	if c.baseURL != "" {
		return fmt.Sprintf("%s/admin/api/%s/graphql.json", c.baseURL, c.apiVersion)
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, c.apiVersion)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
