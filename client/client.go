/*
Package client talks to the blog generation API.

Submit starts a job, Status reads one snapshot and Wait polls until the job
reaches a terminal state, backing off between polls.
*/
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
	"strings"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/middleware"
	"github.com/Nexora-Open-Source/blog-generator-backend/types"
)

var (
	// ErrJobNotFound is returned when the server does not know the job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrWaitTimeout is returned by Wait when the job is still running at the deadline.
	ErrWaitTimeout = errors.New("timed out waiting for job")
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Body       middleware.APIError
}

func (e *APIError) Error() string {
	if e.Body.Details != "" {
		return fmt.Sprintf("API returned %d: %s", e.StatusCode, e.Body.Details)
	}
	return fmt.Sprintf("API returned %d: %s", e.StatusCode, e.Body.Message)
}

// Client calls the blog generation API at BaseURL
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Submit starts a blog generation job and returns its id
func (c *Client) Submit(ctx context.Context, keyword string) (types.GenerateResponse, error) {
	var resp types.GenerateResponse
	err := c.doJSONRequest(ctx, http.MethodPost, "/generate-blog", types.GenerateRequest{Keyword: keyword}, &resp)
	return resp, err
}

// Status returns the current status of a job
func (c *Client) Status(ctx context.Context, jobID string) (types.JobStatus, error) {
	var status types.JobStatus
	err := c.doJSONRequest(ctx, http.MethodGet, "/blog-status/"+url.PathEscape(jobID), nil, &status)
	return status, err
}

// PollOptions controls Wait
type PollOptions struct {
	// Interval is the first delay between polls.
	Interval time.Duration
	// MaxInterval caps the delay as it doubles.
	MaxInterval time.Duration
	// Timeout bounds the whole wait. Zero waits until ctx is done.
	Timeout time.Duration
	// OnProgress is called with every snapshot whose progress label changed.
	OnProgress func(types.JobStatus)
}

// DefaultPollOptions returns the options used by the command line client
func DefaultPollOptions() PollOptions {
	return PollOptions{
		Interval:    2 * time.Second,
		MaxInterval: 15 * time.Second,
		Timeout:     15 * time.Minute,
	}
}

// Wait polls the job until it completes or fails and returns the final
// status. A failed job is returned without error; callers inspect Status.
func (c *Client) Wait(ctx context.Context, jobID string, opts PollOptions) (types.JobStatus, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = opts.Interval
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	delay := opts.Interval
	lastProgress := ""
	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return types.JobStatus{}, waitError(ctx, jobID, opts.Timeout)
			}
			return types.JobStatus{}, err
		}

		if opts.OnProgress != nil && status.Progress != lastProgress {
			opts.OnProgress(status)
		}
		lastProgress = status.Progress

		if status.IsTerminal() {
			return status, nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, waitError(ctx, jobID, opts.Timeout)
		case <-timer.C:
		}

		delay = min(delay*2, opts.MaxInterval)
	}
}

func waitError(ctx context.Context, jobID string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && timeout > 0 {
		return fmt.Errorf("%w %s after %s", ErrWaitTimeout, jobID, timeout)
	}
	return ctx.Err()
}

// doJSONRequest sends payload as JSON and decodes a 200 response into result
func (c *Client) doJSONRequest(ctx context.Context, method, path string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/blog-status/") {
		return ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &apiErr.Body) != nil {
			apiErr.Body.Details = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
