package riot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

// TestValidateKey_ValidKey tests that an accepted key returns nil
func TestValidateKey_ValidKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Riot-Token") != "RGAPI-test-key" {
			t.Errorf("Expected X-Riot-Token header, got %q", r.Header.Get("X-Riot-Token"))
		}
		if r.URL.Path != statusEndpoint {
			t.Errorf("Expected path %s, got %s", statusEndpoint, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"NA1","name":"North America","locales":["en_US"]}`))
	}))
	defer server.Close()

	validator := NewKeyValidator("na1", WithBaseURL(server.URL))

	if err := validator.ValidateKey(context.Background(), "RGAPI-test-key"); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// TestValidateKey_Rejected tests that 401 and 403 are reported as ErrUnauthorized
func TestValidateKey_Rejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"status":{"message":"Forbidden"}}`))
		}))

		validator := NewKeyValidator("euw1", WithBaseURL(server.URL))
		err := validator.ValidateKey(context.Background(), "RGAPI-expired-key")
		server.Close()

		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("status %d: expected ErrUnauthorized, got %v", status, err)
		}
		if StatusCode(err) != status {
			t.Errorf("status %d: StatusCode(err) = %d", status, StatusCode(err))
		}
	}
}

// TestValidateKey_ServerError tests that 5xx leaves validity unknown
func TestValidateKey_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewKeyValidator("kr", WithBaseURL(server.URL)).ValidateKey(context.Background(), "RGAPI-test-key")

	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("Expected ErrRequestFailed, got %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("Server error must not be reported as a rejected key")
	}
}

// TestValidateKey_Timeout tests that a slow server surfaces a request failure
func TestValidateKey_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	validator := NewKeyValidator("na1",
		WithBaseURL(server.URL),
		WithTimeout(50*time.Millisecond),
	)

	if err := validator.ValidateKey(context.Background(), "RGAPI-test-key"); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("Expected ErrRequestFailed on timeout, got %v", err)
	}
}

// TestValidateKey_EmptyKey tests that an empty key never reaches the network
func TestValidateKey_EmptyKey(t *testing.T) {
	validator := NewKeyValidator("na1", WithBaseURL("http://127.0.0.1:1"))

	if err := validator.ValidateKey(context.Background(), "  "); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for empty key, got %v", err)
	}
}

func TestNewKeyValidator_DefaultHost(t *testing.T) {
	v := NewKeyValidator(" NA1 ")
	if v.baseURL != "https://na1.api.riotgames.com" {
		t.Errorf("unexpected base URL %s", v.baseURL)
	}
}
