package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
	"urgify-core/internal/ports"
)

type stubTokens struct {
	token string
}

func (s *stubTokens) Store(ctx context.Context, session *domain.Session) error { return nil }

func (s *stubTokens) GetOfflineToken(ctx context.Context, shop string) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("shop %s: %w", shop, domain.ErrNoOfflineToken)
	}
	return s.token, nil
}

func (s *stubTokens) DeleteByShop(ctx context.Context, shop string) (int, error) { return 0, nil }

var _ ports.SessionStore = (*stubTokens)(nil)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GraphQLClient, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var delays []time.Duration
	client := NewGraphQLClient(GraphQLClientOptions{
		Tokens:  &stubTokens{token: "shpat_test"},
		BaseURL: server.URL,
		Sleep: func(ctx context.Context, delay time.Duration) error {
			delays = append(delays, delay)
			return nil
		},
	}, zerolog.Nop())
	return client, &delays
}

func TestCallReturnsDataOnSuccess(t *testing.T) {
	var gotToken string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": {"shop": {"id": "gid://shopify/Shop/1"}}}`)
	})

	data, err := client.Call(context.Background(), "x.myshopify.com", "{ shop { id } }", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(data) != `{"shop": {"id": "gid://shopify/Shop/1"}}` {
		t.Fatalf("unexpected data: %s", data)
	}
	if gotToken != "shpat_test" {
		t.Fatalf("expected offline token on the request, got %q", gotToken)
	}
}

func TestCallRetriesThrottlingThenSucceeds(t *testing.T) {
	var attempts int32
	client, delays := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": {}}`)
	})

	if _, err := client.Call(context.Background(), "x.myshopify.com", "{ shop { id } }", nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("expected doubling backoff %v, got %v", want, *delays)
		}
	}
}

func TestCallExhaustsRetriesOnPersistentServerErrors(t *testing.T) {
	var attempts int32
	client, delays := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Call(context.Background(), "x.myshopify.com", "{ shop { id } }", nil)
	if !errors.Is(err, domain.ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", got)
	}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 1200 * time.Millisecond}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("expected backoff %v, got %v", want, *delays)
		}
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	client, delays := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors": "Invalid API key or access token"}`)
	})

	_, err := client.Call(context.Background(), "x.myshopify.com", "{ shop { id } }", nil)
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", apiErr.Status)
	}
	if atomic.LoadInt32(&attempts) != 1 || len(*delays) != 0 {
		t.Fatalf("client errors must fail immediately without retry")
	}
}

func TestCallSurfacesGraphQLErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors": [{"message": "Field 'shoop' doesn't exist"}]}`)
	})

	if _, err := client.Call(context.Background(), "x.myshopify.com", "{ shoop }", nil); err == nil {
		t.Fatalf("expected graphql error surfaced")
	}
}

func TestCallFailsFastWithoutOfflineToken(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
	}))
	defer server.Close()

	client := NewGraphQLClient(GraphQLClientOptions{
		Tokens:  &stubTokens{},
		BaseURL: server.URL,
	}, zerolog.Nop())

	_, err := client.Call(context.Background(), "x.myshopify.com", "{ shop { id } }", nil)
	if !errors.Is(err, domain.ErrNoOfflineToken) {
		t.Fatalf("expected ErrNoOfflineToken, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 0 {
		t.Fatalf("no HTTP request should be made without a token")
	}
}
