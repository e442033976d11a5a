// Package netx is the small HTTP client shared by the collaborators that talk
// to remote services: the key service, the signature verifier and the
// tguard backend. Transient failures are retried with exponential backoff.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MaxResponseSize caps how much of a response body is read.
const MaxResponseSize = 64 << 20

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client performs HTTP requests with retries.
type Client struct {
	HTTP       *http.Client
	MaxRetries uint64
	// InitialInterval is the first backoff delay; it doubles per attempt.
	InitialInterval time.Duration
	// Notify, when set, is called before every retry.
	Notify func(err error, next time.Duration)
}

// New returns a client with a request timeout and three retries.
func New(timeout time.Duration) *Client {
	return &Client{
		HTTP:            &http.Client{Timeout: timeout},
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
	}
}

// GetBytes fetches url and returns the body.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, url, nil, "", nil)
}

// JSON sends in (when non-nil) as a JSON body and decodes the response into
// out (when non-nil).
func (c *Client) JSON(ctx context.Context, method, url string, header http.Header, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	contentType := ""
	if body != nil {
		contentType = "application/json"
	}
	resp, err := c.Do(ctx, method, url, body, contentType, header)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do sends one request, retrying network errors, 429 and 5xx responses.
// Other non-2xx responses fail at once with a *StatusError.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, contentType string, header http.Header) ([]byte, error) {
	var out []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{Code: resp.StatusCode, Body: truncate(string(b), 512)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}

		out = b
		return nil
	}

	if err := backoff.RetryNotify(op, c.policy(ctx), c.Notify); err != nil {
		return nil, err
	}
	return out, nil
}

// IsStatus reports whether err carries an HTTP response with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		eb.InitialInterval = c.InitialInterval
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, c.MaxRetries), ctx)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
