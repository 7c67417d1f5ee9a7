// Package capi is a client for the ad platform's server-to-server conversion API.
package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/myseetara-source/seetara-website-sub001/conversion"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v19.0"
)

var (
	// ErrTransmission wraps every failed send.
	ErrTransmission  = errors.New("conversion API transmission failed")
	ErrNotConfigured = errors.New("conversion API is not configured")
)

type Config struct {
	PixelID       string
	AccessToken   string
	APIVersion    string
	BaseURL       string
	TestEventCode string
	SourceURL     string
	Timeout       time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// Enabled reports whether both the pixel id and the access token are set.
func (c *Client) Enabled() bool {
	return c.cfg.PixelID != "" && c.cfg.AccessToken != ""
}

type eventsRequest struct {
	Data          []ServerEvent `json:"data"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

// Response is the API's acknowledgement.
type Response struct {
	EventsReceived int      `json:"events_received"`
	Messages       []string `json:"messages"`
	FBTraceID      string   `json:"fbtrace_id"`
}

// Send posts one event. Any failure is returned wrapped in ErrTransmission.
func (c *Client) Send(ctx context.Context, e conversion.Event, user UserData) (Response, error) {
	if !c.Enabled() {
		return Response{}, fmt.Errorf("%w: %w", ErrTransmission, ErrNotConfigured)
	}
	body := eventsRequest{
		Data:          []ServerEvent{BuildServerEvent(e, user, c.cfg.SourceURL, c.now())},
		TestEventCode: c.cfg.TestEventCode,
	}
	var out Response
	path := fmt.Sprintf("/%s/%s/events", c.cfg.APIVersion, url.PathEscape(c.cfg.PixelID))
	if err := c.doRequest(ctx, http.MethodPost, path, body, &out); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrTransmission, err)
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?access_token=" + url.QueryEscape(c.cfg.AccessToken)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of the error text.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("http do: %w", uerr.Err)
		}
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("conversion API error (status %d): %s", resp.StatusCode, string(respBytes))
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
