// Package gateway builds requests against the streaming gateway: segmented
// playlists, still frames, and peer-connection negotiation.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	maxFrameBytes  = 8 << 20
)

// Client addresses one streaming gateway instance.
type Client struct {
	http *http.Client
	base string
	now  func() time.Time
}

// NewClient builds a gateway client for the given base URL. An optional
// transport overrides the default.
func NewClient(base string, transport http.RoundTripper) *Client {
	httpClient := &http.Client{Timeout: defaultTimeout}
	if transport != nil {
		httpClient.Transport = transport
	}
	return &Client{
		http: httpClient,
		base: strings.TrimRight(base, "/"),
		now:  time.Now,
	}
}

// StreamURL returns the segmented-playlist URL for a source.
func (c *Client) StreamURL(source string) string {
	return c.base + "/api/stream.m3u8?src=" + url.QueryEscape(source)
}

// FrameURL returns a still-frame URL scaled to w by h. A timestamp query
// parameter defeats intermediary caching so successive fetches see fresh
// frames.
func (c *Client) FrameURL(source string, w, h int) string {
	q := url.Values{}
	q.Set("src", source)
	if w > 0 {
		q.Set("w", strconv.Itoa(w))
	}
	if h > 0 {
		q.Set("h", strconv.Itoa(h))
	}
	q.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.base + "/api/frame.jpeg?" + q.Encode()
}

// FetchManifest downloads the segmented playlist for a source.
func (c *Client) FetchManifest(ctx context.Context, source string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StreamURL(source), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("gateway: build manifest request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: fetch manifest for %q: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway: manifest for %q: unexpected status %d", source, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return "", fmt.Errorf("gateway: read manifest for %q: %w", source, err)
	}
	return string(body), nil
}

// FetchFrame downloads one still frame for a source.
func (c *Client) FetchFrame(ctx context.Context, source string, w, h int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FrameURL(source, w, h), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("gateway: build frame request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch frame for %q: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: frame for %q: unexpected status %d", source, resp.StatusCode)
	}
	frame, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("gateway: read frame for %q: %w", source, err)
	}
	return frame, nil
}

// Negotiate posts an SDP offer for a source and returns the SDP answer.
func (c *Client) Negotiate(ctx context.Context, source, offer string) (string, error) {
	endpoint := c.base + "/api/webrtc?src=" + url.QueryEscape(source)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(offer)))
	if err != nil {
		return "", fmt.Errorf("gateway: build negotiation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: negotiate %q: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway: negotiate %q: unexpected status %d", source, resp.StatusCode)
	}
	answer, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return "", fmt.Errorf("gateway: read answer for %q: %w", source, err)
	}
	return string(answer), nil
}
