// Package client talks to a remote log service over its HTTP contract.
// A Client can stand in for the local store as the submission forwarder.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// Client is a thin JSON client for /api/log, /api/logs and /healthz.
type Client struct {
	base   string
	http   *http.Client
	logger logger.Logger
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("logclient")
	}
	return c
}

// Forward posts one submission. Any status other than 200 is an error
// carrying the server's error message.
func (c *Client) Forward(ctx context.Context, s model.Submission) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: encode submission: %w", ErrRequest, err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/log", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return remoteError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.logger.Debug(ctx, "submission forwarded", logger.Int64("timestamp", s.Timestamp))
	return nil
}

// List fetches the stored entries, oldest first.
func (c *Client) List(ctx context.Context) ([]model.LogEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/logs", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp)
	}
	var entries []model.LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decode entries: %w", ErrRequest, err)
	}
	return entries, nil
}

// Health checks that the service answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrRemote, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequest, method, path, err)
	}
	return resp, nil
}

func remoteError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode, msg)
}
