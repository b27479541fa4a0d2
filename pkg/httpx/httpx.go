// Package httpx implements the HTTP client capability on net/http.
package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/SysdataSpA/Docker/pkg/errors"
)

// DefaultTimeout is applied when no request timeout is configured.
const DefaultTimeout = 120 * time.Second

// HeaderIfModifiedSince is set on revalidation requests.
const HeaderIfModifiedSince = "If-Modified-Since"

const readChunkSize = 32 * 1024

// DefaultClient implements Client on top of net/http.
type DefaultClient struct {
	client    *http.Client
	userAgent string
}

// NewClient creates a client with the given timeout and user agent.
func NewClient(timeout time.Duration, userAgent string) *DefaultClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = "docker-downloader/1.0"
	}
	return &DefaultClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Head issues a HEAD request and reports the response metadata.
func (c *DefaultClient) Head(ctx context.Context, url string, headers map[string]string) (*HeadInfo, error) {
	req, err := c.newRequest(ctx, http.MethodHead, url, headers)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err, "HEAD", url)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return &HeadInfo{
		StatusCode:    resp.StatusCode,
		LastModified:  resp.Header.Get("Last-Modified"),
		ContentLength: resp.ContentLength,
	}, nil
}

// Get downloads the body, reporting progress per read chunk.
func (c *DefaultClient) Get(ctx context.Context, url string, headers map[string]string, progress ProgressFunc) (*GetResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, headers)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err, "GET", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.Wrapf(errors.ErrServerStatus, "GET %s returned %d", url, resp.StatusCode)
	}

	body, err := readBody(ctx, resp, progress)
	if err != nil {
		return nil, classifyTransport(ctx, err, "GET", url)
	}

	return &GetResponse{
		StatusCode:   resp.StatusCode,
		LastModified: resp.Header.Get("Last-Modified"),
		Body:         body,
	}, nil
}

func (c *DefaultClient) newRequest(ctx context.Context, method, url string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidURL, "failed to create %s request for %s: %v", method, url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func readBody(ctx context.Context, resp *http.Response, progress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if progress != nil {
				progress(n, int64(buf.Len()), resp.ContentLength)
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// classifyTransport maps a transport error onto the error taxonomy:
// cancellation when the context was cut short, network failure otherwise.
func classifyTransport(ctx context.Context, err error, method, url string) error {
	if ctx.Err() != nil {
		return errors.Wrapf(errors.ErrCancelled, "%s %s: %v", method, url, ctx.Err())
	}
	return errors.Wrapf(errors.ErrNetwork, "%s %s: %v", method, url, err)
}
