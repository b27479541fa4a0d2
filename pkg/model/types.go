// Package model holds the data types shared between the resolver, the batch
// coordinator and the storage packages.
package model

import "time"

// ResourceKey is the stable local identifier derived from a resource URL. It
// is the lookup key across the ledger, the local store and the subscriber
// registry.
type ResourceKey string

func (k ResourceKey) String() string { return string(k) }

// Result classifies how a resource was obtained.
type Result int

const (
	// ResultInvalid is the zero value and never delivered to subscribers.
	ResultInvalid Result = iota
	// ResultLocallyValid: the local copy is inside its expiration window,
	// no network call was made.
	ResultLocallyValid
	// ResultCheckingValidity: advisory notification carrying the stale
	// local copy while a HEAD revalidation is in flight. Only emitted when
	// Options.NotifyBeforeValidityCheck is set; never terminal.
	ResultCheckingValidity
	// ResultValidityConfirmed: a HEAD request confirmed the local copy is
	// still current.
	ResultValidityConfirmed
	// ResultDownloadedNew: the resource was downloaded or updated. A
	// failed download carries no Result; it reaches the caller through
	// the failure callback as a classified error.
	ResultDownloadedNew
	// ResultBundleRetrieved: the resource was served from the read-only
	// seed bundle.
	ResultBundleRetrieved
)

// String returns a stable label for logging.
func (r Result) String() string {
	switch r {
	case ResultLocallyValid:
		return "local-valid"
	case ResultCheckingValidity:
		return "checking-validity"
	case ResultValidityConfirmed:
		return "locally-valid-confirmed"
	case ResultDownloadedNew:
		return "downloaded-new"
	case ResultBundleRetrieved:
		return "bundle-retrieved"
	default:
		return "invalid"
	}
}

// Terminal reports whether the result ends a resolution cycle.
func (r Result) Terminal() bool {
	return r != ResultInvalid && r != ResultCheckingValidity
}

// Options overrides the manager's global settings for a single request. The
// zero value means "use the configured defaults".
type Options struct {
	// LocalPath overrides the file-system location for the resource.
	LocalPath string
	// ExpirationInterval overrides the default freshness window recorded
	// after a successful download or revalidation.
	ExpirationInterval time.Duration
	// ForceDownload skips every local check and downloads immediately.
	ForceDownload bool
	// UseBundle consults the read-only seed tier before anything else.
	UseBundle bool
	// SaveDisabled skips persisting the downloaded bytes.
	SaveDisabled bool
	// NotifyBeforeValidityCheck emits the stale local copy to subscribers
	// before the HEAD revalidation completes.
	NotifyBeforeValidityCheck bool
}

// Resolution is the outcome delivered to every subscriber of a resource.
type Resolution struct {
	URL       string
	Key       ResourceKey
	Result    Result
	Data      []byte
	LocalPath string
}

// Progress reports bytes transferred for a single GET operation.
type Progress struct {
	URL           string
	BytesRead     int
	TotalRead     int64
	TotalExpected int64
}

// BatchTotals is the aggregate progress tuple emitted during the download
// pass of a batch job.
type BatchTotals struct {
	ExpectedSize   int64
	RemainingSize  int64
	ExpectedCount  int
	RemainingCount int
}
