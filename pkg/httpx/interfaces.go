//go:generate mockgen -destination=./mocks/httpx.go -package=mocks . Client
package httpx

import "context"

// ProgressFunc receives byte-transfer progress while a GET body is read.
type ProgressFunc func(bytesRead int, totalRead, totalExpected int64)

// HeadInfo is the outcome of a completed HEAD request.
type HeadInfo struct {
	StatusCode    int
	LastModified  string
	ContentLength int64
}

// GetResponse is the outcome of a successful GET request.
type GetResponse struct {
	StatusCode   int
	LastModified string
	Body         []byte
}

// Client is the abstract HTTP capability the download manager consumes. The
// transport itself (pooling, TLS, redirects) stays behind this interface.
// Both operations honor context cancellation.
type Client interface {
	// Head issues a HEAD request. A completed exchange returns HeadInfo
	// regardless of status code; the caller interprets the status.
	Head(ctx context.Context, url string, headers map[string]string) (*HeadInfo, error)

	// Get downloads the resource body, reporting transfer progress
	// through progress if non-nil. Non-2xx responses are returned as
	// errors classified under errors.ErrServerStatus.
	Get(ctx context.Context, url string, headers map[string]string, progress ProgressFunc) (*GetResponse, error)
}
