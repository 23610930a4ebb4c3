package rtcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// notConfiguredMarker is matched against the token endpoint's error body.
// Matched once here; nothing else in the client inspects error strings.
const notConfiguredMarker = "not configured"

// RoomCredential is a short-lived authorization to join one room as one
// identity, plus the provider endpoint to connect to.
type RoomCredential struct {
	Endpoint   string `json:"endpoint"`
	Credential string `json:"credential"`
}

// TokenClient fetches room credentials for (roomID, identity).
type TokenClient interface {
	FetchToken(ctx context.Context, roomID, identity string) (*RoomCredential, error)
}

// HTTPTokenClient talks to the backend's token endpoint.
type HTTPTokenClient struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewHTTPTokenClient creates a token client against the given API base URL.
// authToken is the caller's API JWT, sent as a Bearer header.
func NewHTTPTokenClient(baseURL, authToken string) *HTTPTokenClient {
	return &HTTPTokenClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenEnvelope struct {
	Success bool            `json:"success"`
	Data    *RoomCredential `json:"data"`
	Error   string          `json:"error"`
}

// FetchToken requests a credential for the room. A "not configured" error
// body maps to ErrProviderNotConfigured so the caller can skip retries.
func (c *HTTPTokenClient) FetchToken(ctx context.Context, roomID, identity string) (*RoomCredential, error) {
	u := fmt.Sprintf("%s/live-classes/%s/rtc-token?identity=%s",
		c.baseURL, url.PathEscape(roomID), url.QueryEscape(identity))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var env tokenEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode token response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success || env.Data == nil {
		if strings.Contains(strings.ToLower(env.Error), notConfiguredMarker) {
			return nil, ErrProviderNotConfigured
		}
		return nil, fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, env.Error)
	}
	if env.Data.Endpoint == "" || env.Data.Credential == "" {
		return nil, fmt.Errorf("token endpoint returned empty credential")
	}
	return env.Data, nil
}
