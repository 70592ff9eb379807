package decidio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultTimeout = 10 * time.Second

	// tokenLifetime is how long a bearer token is reused before the
	// client re-authenticates. The service does not advertise expiry,
	// so the client refreshes conservatively instead of logging in
	// again on every call.
	tokenLifetime = 5 * time.Minute
)

// HTTPClient implements Client against the service's REST API.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	now      func() time.Time

	mu          sync.Mutex
	token       string
	tokenIssued time.Time
}

// HTTPOption customizes the HTTP client.
type HTTPOption func(*HTTPClient)

// WithHTTPDoer swaps the underlying http.Client (used in tests).
func WithHTTPDoer(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithNow overrides the token-expiry clock (used in tests).
func WithNow(now func() time.Time) HTTPOption {
	return func(h *HTTPClient) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHTTPClient builds a client for the service at baseURL.
func NewHTTPClient(baseURL, username, password string, opts ...HTTPOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("decidio: base url is required")
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("decidio: credentials are required")
	}
	h := &HTTPClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   &http.Client{Timeout: defaultTimeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Event implements Client.
func (h *HTTPClient) Event(ctx context.Context, id int) (Event, error) {
	var event Event
	if err := h.getJSON(ctx, fmt.Sprintf("/v1/events/%d", id), "get event", &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// MeetingStatuses implements Client.
func (h *HTTPClient) MeetingStatuses(ctx context.Context, eventID int) ([]Meeting, error) {
	var meetings []Meeting
	if err := h.getJSON(ctx, fmt.Sprintf("/v1/events/%d/meetings", eventID), "get meeting statuses", &meetings); err != nil {
		return nil, err
	}
	return meetings, nil
}

// SetMeetingStatus implements Client.
func (h *HTTPClient) SetMeetingStatus(ctx context.Context, meetingID int, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("decidio: encode status: %w", err)
	}
	resp, err := h.authorized(ctx, http.MethodPut, fmt.Sprintf("/v1/meetings/%d/status", meetingID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Operation: "set meeting status", Code: resp.StatusCode}
	}
	return nil
}

// RankedResults implements Client.
func (h *HTTPClient) RankedResults(ctx context.Context, meetingID, topK int) ([]string, error) {
	var results []string
	path := fmt.Sprintf("/v1/meetings/%d/results?top=%d", meetingID, topK)
	if err := h.getJSON(ctx, path, "get ranked results", &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (h *HTTPClient) getJSON(ctx context.Context, path, operation string, out any) error {
	resp, err := h.authorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Operation: operation, Code: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("decidio: read %s response: %w", operation, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decidio: decode %s response: %w", operation, err)
	}
	return nil
}

// authorized performs a request with a bearer token, authenticating
// first when the cached token is missing or stale. A 401 response
// forces one re-authentication and retry in case the token was revoked
// early.
func (h *HTTPClient) authorized(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := h.bearerToken(ctx, false)
	if err != nil {
		return nil, err
	}
	resp, err := h.do(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		token, err = h.bearerToken(ctx, true)
		if err != nil {
			return nil, err
		}
		return h.do(ctx, method, path, body, token)
	}
	return resp, nil
}

func (h *HTTPClient) do(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("decidio: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decidio: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (h *HTTPClient) bearerToken(ctx context.Context, force bool) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !force && h.token != "" && h.now().Sub(h.tokenIssued) < tokenLifetime {
		return h.token, nil
	}

	creds, err := json.Marshal(map[string]string{"username": h.username, "password": h.password})
	if err != nil {
		return "", fmt.Errorf("decidio: encode credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/login/", bytes.NewReader(creds))
	if err != nil {
		return "", fmt.Errorf("decidio: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("decidio: login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Operation: "login", Code: resp.StatusCode}
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decidio: decode login response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("decidio: login response carried no access token")
	}
	h.token = payload.AccessToken
	h.tokenIssued = h.now()
	return h.token, nil
}
