package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 8 << 10
)

// ErrUnauthorized indicates the remote service rejected the stored
// credentials. The client clears them so the caller can prompt again.
var ErrUnauthorized = errors.New("remote: unauthorized")

// RequestError carries the HTTP status and server-reported message of a
// failed write operation.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: request failed with status %d", e.Status)
	}
	return fmt.Sprintf("remote: %s (status %d)", e.Message, e.Status)
}

// TokenStore persists the bearer token between runs. Implementations may be
// nil-safe no-ops.
type TokenStore interface {
	SaveToken(token string) error
	LoadToken() (string, error)
	ClearToken() error
}

// Client talks to the remote camera/profile service. It is safe for
// concurrent use; credentials are guarded by a mutex and mirrored to an
// optional TokenStore.
type Client struct {
	http    *http.Client
	baseURL string
	store   TokenStore

	mu        sync.Mutex
	token     string
	basicUser string
	basicPass string
}

// NewClient builds a client for the given API base. An optional transport
// overrides the default; an optional store persists the token.
func NewClient(baseURL string, store TokenStore, transport http.RoundTripper) *Client {
	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	if transport != nil {
		httpClient.Transport = transport
	}

	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
	}
	if store != nil {
		if token, err := store.LoadToken(); err == nil && token != "" {
			c.token = token
		}
	}
	return c
}

// BaseURL returns the configured API base.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasCredentials reports whether a token or basic credentials are set.
func (c *Client) HasCredentials() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != "" || c.basicUser != ""
}

// SetBasicAuth stores basic credentials for servers that predate token auth.
func (c *Client) SetBasicAuth(user, pass string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.basicUser = user
	c.basicPass = pass
}

// Logout drops all credentials, in memory and in the store.
func (c *Client) Logout() {
	c.clearCredentials()
}

func (c *Client) clearCredentials() {
	c.mu.Lock()
	c.token = ""
	c.basicUser = ""
	c.basicPass = ""
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.ClearToken(); err != nil {
			log.Printf("[Remote] clear stored token: %v", err)
		}
	}
}

func (c *Client) attachAuth(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.basicUser != "":
		req.SetBasicAuth(c.basicUser, c.basicPass)
	}
}

// Login exchanges credentials for a bearer token and stores it.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("remote: login rejected: %w", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readRequestError(resp)
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("remote: decode login response: %w", err)
	}

	c.mu.Lock()
	c.token = result.Token
	c.mu.Unlock()
	if c.store != nil && result.Token != "" {
		if err := c.store.SaveToken(result.Token); err != nil {
			log.Printf("[Remote] persist token: %v", err)
		}
	}
	return &result, nil
}

// ProbeAuth checks the stored credentials against the basic-auth probe
// endpoint. Returns ErrUnauthorized when they are rejected.
func (c *Client) ProbeAuth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth", http.NoBody)
	if err != nil {
		return fmt.Errorf("remote: build auth probe: %w", err)
	}
	c.attachAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: auth probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.clearCredentials()
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return readRequestError(resp)
	}
	return nil
}

// FetchState retrieves the current snapshot. It returns nil on any failure
// (network error, non-2xx status, malformed body) so callers can fall back
// to local configuration; each successful call returns a fresh snapshot.
func (c *Client) FetchState(ctx context.Context) *StateSnapshot {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/state", http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("Cache-Control", "no-store")
	c.attachAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[Remote] fetch state: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.clearCredentials()
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("[Remote] fetch state: unexpected status %d", resp.StatusCode)
		return nil
	}

	var snap StateSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		log.Printf("[Remote] decode state: %v", err)
		return nil
	}
	return &snap
}

// CreateCamera adds a camera record.
func (c *Client) CreateCamera(ctx context.Context, cam Camera) error {
	return c.doWrite(ctx, http.MethodPost, "/cameras", cam)
}

// UpdateCamera replaces the camera with the given id.
func (c *Client) UpdateCamera(ctx context.Context, cam Camera) error {
	return c.doWrite(ctx, http.MethodPut, "/cameras/"+cam.ID, cam)
}

// DeleteCamera removes a camera record.
func (c *Client) DeleteCamera(ctx context.Context, id string) error {
	return c.doWrite(ctx, http.MethodDelete, "/cameras/"+id, nil)
}

// CreateProfile adds an empty profile with the given name.
func (c *Client) CreateProfile(ctx context.Context, name string) error {
	return c.doWrite(ctx, http.MethodPost, "/profiles", map[string]string{"name": name})
}

// RenameProfile changes a profile's display name.
func (c *Client) RenameProfile(ctx context.Context, id, name string) error {
	return c.doWrite(ctx, http.MethodPut, "/profiles/"+id, map[string]string{"name": name})
}

// SetProfileAllowLive toggles the profile's inline-video transport mode.
func (c *Client) SetProfileAllowLive(ctx context.Context, id string, allowLive bool) error {
	return c.doWrite(ctx, http.MethodPut, "/profiles/"+id, map[string]bool{"allowLive": allowLive})
}

// DeleteProfile removes a profile. The server rejects deleting the active or
// last remaining profile; the rejection surfaces as a RequestError.
func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.doWrite(ctx, http.MethodDelete, "/profiles/"+id, nil)
}

// SaveSlides atomically replaces a profile's slide list.
func (c *Client) SaveSlides(ctx context.Context, profileID string, slides []Slide) error {
	return c.doWrite(ctx, http.MethodPut, "/profiles/"+profileID+"/slides", map[string]any{"slides": slides})
}

// SetActiveProfile switches the system-wide active profile.
func (c *Client) SetActiveProfile(ctx context.Context, profileID string) error {
	return c.doWrite(ctx, http.MethodPut, "/settings/active-profile", map[string]string{"profileId": profileID})
}

// ListUsers returns the admin-managed login records.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("remote: build users request: %w", err)
	}
	c.attachAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: list users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.clearCredentials()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readRequestError(resp)
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("remote: decode users: %w", err)
	}
	return users, nil
}

// CreateUser adds a login record with the given role.
func (c *Client) CreateUser(ctx context.Context, username, password, role string) error {
	return c.doWrite(ctx, http.MethodPost, "/users", map[string]string{
		"username": username,
		"password": password,
		"role":     role,
	})
}

// DeleteUser removes a login record.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doWrite(ctx, http.MethodDelete, "/users/"+id, nil)
}

func (c *Client) doWrite(ctx context.Context, method, path string, payload any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("remote: build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.attachAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.clearCredentials()
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readRequestError(resp)
	}
	return nil
}

func readRequestError(resp *http.Response) error {
	reqErr := &RequestError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && payload.Error != "" {
			reqErr.Message = strings.TrimSpace(payload.Error)
			return reqErr
		}
	}
	reqErr.Message = trimmed
	return reqErr
}
