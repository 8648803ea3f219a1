// Package download fetches remote bytes with retries and per-host politeness.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	userAgent = "seasondb/1.0 (+https://github.com/varoOP/seasondb)"

	// maxBodyBytes bounds a single download.
	maxBodyBytes = 20 << 20
)

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Limiter        *Limiter
	Transport      http.RoundTripper
}

// Client is owned by a single worker; clients are not shared.
type Client struct {
	log        zerolog.Logger
	http       *http.Client
	maxRetries int
	initial    time.Duration
	limiter    *Limiter
}

func NewClient(log zerolog.Logger, opts Options) *Client {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &Client{
		log: log.With().Str("module", "download").Logger(),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		maxRetries: opts.MaxRetries,
		initial:    opts.InitialBackoff,
		limiter:    opts.Limiter,
	}
}

// Get downloads url. Transport errors and 429/5xx responses are retried up to MaxRetries times.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	attempt := 0

	op := func() error {
		attempt++
		b, err := c.get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.log.Debug().Err(err).Str("url", url).Int("attempt", attempt).Dur("wait", wait).Msg("retrying download")
	}

	if err := backoff.RetryNotify(op, c.policy(ctx), notify); err != nil {
		return nil, errors.Wrapf(err, "failed to download %s", url)
	}
	return body, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrap(err, "could not create request"))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "could not read body")
	}
	if len(b) > maxBodyBytes {
		return nil, backoff.Permanent(errors.Errorf("body exceeds %d bytes", maxBodyBytes))
	}
	return b, nil
}
