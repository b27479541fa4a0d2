package resolver

import (
	"time"

	"github.com/SysdataSpA/Docker/pkg/model"
	"github.com/SysdataSpA/Docker/pkg/store"
)

// Handlers carries the callbacks a caller attaches to a resolution. Every
// resolution invokes OnSuccess or OnFailure exactly once; OnProgress and the
// advisory notification (NotifyBeforeValidityCheck) may fire in between.
type Handlers struct {
	OnSuccess  func(res model.Resolution)
	OnProgress func(p model.Progress)
	OnFailure  func(urlString string, err error)
}

// Subscription identifies an attached caller so it can be detached again
// while the underlying operation keeps running.
type Subscription struct {
	Key   model.ResourceKey
	token uint64
}

// LocalStore is the subset of the store manager used by the resolver.
type LocalStore interface {
	TryRead(key model.ResourceKey, pathOverride string, order []store.Tier) ([]byte, store.Tier, error)
	Write(key model.ResourceKey, data []byte, pathOverride string) error
	Remove(key model.ResourceKey) error
	PurgeOlderThan(cutoff time.Time) ([]model.ResourceKey, error)
	ResetMemory()
	Path(key model.ResourceKey) string
}

// FreshnessLedger is the subset of the expiration ledger used by the
// resolver.
type FreshnessLedger interface {
	IsStillValid(key model.ResourceKey, now time.Time) bool
	RecordFreshness(key model.ResourceKey, validator string, expiresAt time.Time)
	TouchDownload(key model.ResourceKey, at time.Time)
	ValidatorFor(key model.ResourceKey) (string, bool)
	Delete(key model.ResourceKey)
	EntriesOlderThan(cutoff time.Time) []model.ResourceKey
	Reset()
	Flush() error
}

// Config carries the resolver-wide defaults; each request may override parts
// of it through model.Options.
type Config struct {
	// DefaultExpiration is the freshness window recorded after a download
	// or revalidation when the request does not override it.
	DefaultExpiration time.Duration
	// UseExpirationLedger gates expiration tracking. When disabled, any
	// local presence counts as valid.
	UseExpirationLedger bool
	// UseHeadRequest gates HEAD revalidation of stale resources. When
	// disabled a local resource is never refreshed, even past its
	// deadline. Only disable this when the server publishes updates at
	// new URLs.
	UseHeadRequest bool
	// UseBundle gates the read-only seed tier.
	UseBundle bool
}

// DefaultExpiration is the freshness window applied when none is configured.
const DefaultExpiration = 7200 * time.Second

// CheckResult is the outcome of a dry-run freshness check: whether the
// resource needs downloading and, if so, its expected size from the HEAD
// Content-Length.
type CheckResult struct {
	Key           model.ResourceKey
	URL           string
	NeedsDownload bool
	ExpectedSize  int64
}

// localState classifies what the local tiers hold for a key.
type localState int

const (
	localMiss localState = iota
	localBundle
	localValid
	localStale
)
