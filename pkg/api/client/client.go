// Package client is a typed HTTP client for the deskpulse API. *Client
// satisfies repository.RecordStore so a session can sync against a remote
// server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/repository"
)

// Client provides typed access to the deskpulse API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ repository.RecordStore = (*Client)(nil)

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithRetry configures retries of idempotent requests on 429 and 5xx.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL returns the normalised API address.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Unwrap maps statuses onto repository sentinels so callers can use errors.Is.
func (e APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return repository.ErrNotFound
	case http.StatusConflict:
		return repository.ErrConflict
	case http.StatusBadRequest:
		return repository.ErrInvalidArgument
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}
	retries := c.maxRetries
	if method == http.MethodPost {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < retries && ctx.Err() == nil {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("perform request: %w", err)
		}

		if retryable(resp.StatusCode) && attempt < retries {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return decodeResponse(resp, v)
	}
}

func decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
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

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func recordsPath(workspaceID string, table domain.Table) string {
	return "/workspaces/" + url.PathEscape(workspaceID) + "/records/" + url.PathEscape(string(table))
}

// FetchTable lists the live records of a table.
func (c *Client) FetchTable(ctx context.Context, table domain.Table, workspaceID string) ([]domain.Record, error) {
	var resp struct {
		Records []domain.Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, recordsPath(workspaceID, table), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Upsert writes a record; the server stamps missing attribution fields.
func (c *Client) Upsert(ctx context.Context, table domain.Table, record domain.Record) error {
	if record.ID == "" || record.WorkspaceID == "" {
		return fmt.Errorf("%w: record id and workspace are required", repository.ErrInvalidArgument)
	}
	path := recordsPath(record.WorkspaceID, table) + "/" + url.PathEscape(record.ID)
	return c.do(ctx, http.MethodPut, path, record, nil)
}

// DeleteEntity soft-deletes a record.
func (c *Client) DeleteEntity(ctx context.Context, table domain.Table, workspaceID, id string) error {
	path := recordsPath(workspaceID, table) + "/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListWorkspaces returns the caller's workspaces, creating a default one on
// first use.
func (c *Client) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	var resp struct {
		Workspaces []domain.Workspace `json:"workspaces"`
	}
	if err := c.do(ctx, http.MethodGet, "/workspaces", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workspaces, nil
}

// CreateWorkspace registers a workspace owned by the caller.
func (c *Client) CreateWorkspace(ctx context.Context, name, color string) (domain.Workspace, error) {
	var ws domain.Workspace
	body := map[string]string{"name": name, "color": color}
	if err := c.do(ctx, http.MethodPost, "/workspaces", body, &ws); err != nil {
		return domain.Workspace{}, err
	}
	return ws, nil
}

// Members lists a workspace's members.
func (c *Client) Members(ctx context.Context, workspaceID string) ([]domain.Member, error) {
	var resp struct {
		Members []domain.Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/workspaces/"+url.PathEscape(workspaceID)+"/members", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// CreateInvite issues an invite and returns it with its one-time token.
func (c *Client) CreateInvite(ctx context.Context, workspaceID string, role domain.Role, ttl time.Duration) (domain.Invite, string, error) {
	var resp struct {
		Invite domain.Invite `json:"invite"`
		Token  string        `json:"token"`
	}
	body := map[string]any{"role": role, "ttlSeconds": int64(ttl / time.Second)}
	if err := c.do(ctx, http.MethodPost, "/workspaces/"+url.PathEscape(workspaceID)+"/invites", body, &resp); err != nil {
		return domain.Invite{}, "", err
	}
	return resp.Invite, resp.Token, nil
}

// AcceptInvite redeems an invite token for the caller.
func (c *Client) AcceptInvite(ctx context.Context, workspaceID, token string) (domain.Member, error) {
	var member domain.Member
	body := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, "/workspaces/"+url.PathEscape(workspaceID)+"/invites/accept", body, &member); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}
