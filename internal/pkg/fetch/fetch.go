// Package fetch performs outbound HTTP GETs to map providers over fasthttp
// while honouring context cancellation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/surgemap/internal/core/domain"
)

// Response is a completed provider response. Body is owned by the caller.
type Response struct {
	Status int
	Body   []byte
}

// Request describes one GET.
type Request struct {
	URL       string
	Query     map[string]string
	UserAgent string
}

// Client wraps a shared fasthttp.Client.
type Client struct {
	http    *fasthttp.Client
	timeout time.Duration
}

// New returns a Client whose calls never run longer than timeout, even when
// the context carries no deadline.
func New(timeout time.Duration) *Client {
	return &Client{
		http: &fasthttp.Client{
			Name:                "surgemap",
			MaxConnsPerHost:     16,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: timeout,
	}
}

// Get issues the request. Transport failures and context expiry are
// reported as domain.ErrProviderUnavailable.
func (c *Client) Get(ctx context.Context, r Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(r.URL)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.Set(fasthttp.HeaderAccept, "application/json")
		if r.UserAgent != "" {
			req.Header.SetUserAgent(r.UserAgent)
		}
		args := req.URI().QueryArgs()
		for k, v := range r.Query {
			args.Set(k, v)
		}

		if err := c.http.DoDeadline(req, resp, deadline); err != nil {
			done <- result{err: err}
			return
		}
		done <- result{resp: &Response{
			Status: resp.StatusCode(),
			Body:   append([]byte(nil), resp.Body()...),
		}}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, fasthttp.ErrTimeout) {
				return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, context.DeadlineExceeded)
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, res.err)
		}
		return res.resp, nil
	}
}

// Classify maps a non-2xx status onto the provider error taxonomy.
func Classify(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == fasthttp.StatusTooManyRequests, status >= 500,
		status == fasthttp.StatusUnauthorized, status == fasthttp.StatusForbidden:
		return fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, status)
	case status == fasthttp.StatusNotFound:
		return fmt.Errorf("%w: status %d", domain.ErrNoResultFound, status)
	default:
		return fmt.Errorf("%w: status %d", domain.ErrMalformedResponse, status)
	}
}
