// Package resolver implements the per-URL resolution state machine: serve a
// resource from the local store, revalidate it against the server, or
// download it anew. Concurrent requests for the same resource are merged so
// at most one HEAD/GET sequence is in flight per key, and every waiter
// receives the same terminal outcome.
package resolver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/httpx"
	"github.com/SysdataSpA/Docker/pkg/logger"
	"github.com/SysdataSpA/Docker/pkg/model"
	"github.com/SysdataSpA/Docker/pkg/resource"
	"github.com/SysdataSpA/Docker/pkg/store"
)

// Resolver is the resource resolution service. Construct it with NewResolver
// and share a single instance; per-key sequencing depends on requests for a
// URL going through the same Resolver.
type Resolver struct {
	http   httpx.Client
	store  LocalStore
	ledger FreshnessLedger
	cfg    Config

	registry *registry

	mu       sync.Mutex
	inflight map[model.ResourceKey]context.CancelFunc
}

// NewResolver wires the resolver with its collaborators. A zero
// DefaultExpiration falls back to DefaultExpiration (2 hours).
func NewResolver(client httpx.Client, localStore LocalStore, freshness FreshnessLedger, cfg Config) *Resolver {
	if cfg.DefaultExpiration <= 0 {
		cfg.DefaultExpiration = DefaultExpiration
	}
	return &Resolver{
		http:     client,
		store:    localStore,
		ledger:   freshness,
		cfg:      cfg,
		registry: newRegistry(),
		inflight: make(map[model.ResourceKey]context.CancelFunc),
	}
}

// Resolve obtains the resource at urlString and reports through h. The call
// returns immediately; the work runs asynchronously. When a resolution for
// the same resource is already in flight the handlers attach to it instead
// of starting duplicate network operations.
//
// The operation outlives the caller's context on purpose: other subscribers
// may still be waiting on it. Use Cancel or CancelAll to abort in-flight
// work; ctx is only consulted up front.
func (r *Resolver) Resolve(ctx context.Context, urlString string, opts model.Options, h Handlers) (Subscription, error) {
	key, encoded, err := resource.NormalizedKey(urlString)
	if err != nil {
		if h.OnFailure != nil {
			h.OnFailure(urlString, err)
		}
		return Subscription{}, err
	}
	if err := ctx.Err(); err != nil {
		wrapped := errors.Wrapf(errors.ErrCancelled, "resolve %s: %v", urlString, err)
		if h.OnFailure != nil {
			h.OnFailure(urlString, wrapped)
		}
		return Subscription{}, wrapped
	}

	token, inFlight := r.registry.subscribe(key, h)
	sub := Subscription{Key: key, token: token}
	if inFlight {
		logger.Debug("attached to in-flight resolution", logrus.Fields{"url": urlString, "key": key})
		return sub, nil
	}

	opCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.inflight[key] = cancel
	r.mu.Unlock()

	go r.run(opCtx, key, encoded, opts)
	return sub, nil
}

// run drives one resolution cycle for key and ends it with exactly one
// fan-out. All ledger and store mutations are committed before the fan-out.
func (r *Resolver) run(ctx context.Context, key model.ResourceKey, encodedURL string, opts model.Options) {
	now := time.Now()

	if opts.ForceDownload {
		r.download(ctx, key, encodedURL, opts)
		return
	}

	data, state := r.checkLocal(key, opts, now)
	switch state {
	case localMiss:
		r.download(ctx, key, encodedURL, opts)
	case localBundle:
		r.finishInflight(key)
		r.registry.fanOutSuccess(key, model.Resolution{
			URL: encodedURL, Key: key, Result: model.ResultBundleRetrieved, Data: data,
		})
	case localValid:
		r.finishInflight(key)
		r.registry.fanOutSuccess(key, model.Resolution{
			URL: encodedURL, Key: key, Result: model.ResultLocallyValid,
			Data: data, LocalPath: r.localPath(key, opts),
		})
	case localStale:
		r.revalidate(ctx, key, encodedURL, opts, data, now)
	}
}

// checkLocal classifies the local presence of key. Bundle hits are always
// valid and bypass revalidation. With the expiration ledger disabled any
// local presence is valid; with HEAD revalidation disabled a stale resource
// is still served as valid, since it can never be refreshed.
func (r *Resolver) checkLocal(key model.ResourceKey, opts model.Options, now time.Time) ([]byte, localState) {
	data, tier, err := r.store.TryRead(key, opts.LocalPath, r.tierOrder(opts))
	if err != nil {
		return nil, localMiss
	}
	if tier == store.TierBundle {
		return data, localBundle
	}
	if !r.cfg.UseExpirationLedger || r.ledger.IsStillValid(key, now) {
		return data, localValid
	}
	if !r.cfg.UseHeadRequest {
		return data, localValid
	}
	return data, localStale
}

// revalidate confirms a stale local copy with a conditional HEAD. A failed
// or inconclusive HEAD is not surfaced; it falls through to a full download
// attempt.
func (r *Resolver) revalidate(ctx context.Context, key model.ResourceKey, encodedURL string, opts model.Options, stale []byte, now time.Time) {
	if opts.NotifyBeforeValidityCheck {
		r.registry.notifyAdvisory(key, model.Resolution{
			URL: encodedURL, Key: key, Result: model.ResultCheckingValidity,
			Data: stale, LocalPath: r.localPath(key, opts),
		})
	}

	validator, hasValidator := r.ledger.ValidatorFor(key)
	headers := make(map[string]string)
	if hasValidator {
		headers[httpx.HeaderIfModifiedSince] = validator
	}

	info, err := r.http.Head(ctx, encodedURL, headers)
	if err != nil {
		logger.Debug("HEAD revalidation failed, falling back to download",
			logrus.Fields{"url": encodedURL, "error": err})
		r.download(ctx, key, encodedURL, opts)
		return
	}

	unchanged := info.StatusCode == http.StatusNotModified ||
		(hasValidator && info.LastModified != "" && info.LastModified == validator)
	if !unchanged {
		r.download(ctx, key, encodedURL, opts)
		return
	}

	newValidator := info.LastModified
	if newValidator == "" {
		newValidator = validator
	}
	r.ledger.RecordFreshness(key, newValidator, now.Add(r.expiration(opts)))
	r.finishInflight(key)
	r.registry.fanOutSuccess(key, model.Resolution{
		URL: encodedURL, Key: key, Result: model.ResultValidityConfirmed,
		Data: stale, LocalPath: r.localPath(key, opts),
	})
}

// download is the terminal network step. Store and ledger failures are
// absorbed; only the GET itself can fail the resolution.
func (r *Resolver) download(ctx context.Context, key model.ResourceKey, encodedURL string, opts model.Options) {
	resp, err := r.http.Get(ctx, encodedURL, nil, func(n int, total, expected int64) {
		r.registry.notifyProgress(key, model.Progress{
			URL: encodedURL, BytesRead: n, TotalRead: total, TotalExpected: expected,
		})
	})
	if err != nil {
		r.finishInflight(key)
		r.registry.fanOutFailure(key, encodedURL, err)
		return
	}

	if !opts.SaveDisabled {
		if werr := r.store.Write(key, resp.Body, opts.LocalPath); werr != nil {
			// degrade: the caller still gets the bytes
			logger.Warn("failed to persist downloaded resource",
				logrus.Fields{"url": encodedURL, "key": key, "error": werr})
		}
	}
	if r.cfg.UseExpirationLedger {
		now := time.Now()
		r.ledger.RecordFreshness(key, resp.LastModified, now.Add(r.expiration(opts)))
		r.ledger.TouchDownload(key, now)
	}

	r.finishInflight(key)
	r.registry.fanOutSuccess(key, model.Resolution{
		URL: encodedURL, Key: key, Result: model.ResultDownloadedNew,
		Data: resp.Body, LocalPath: r.localPath(key, opts),
	})
}

// DryCheck runs the freshness logic for urlString without ever issuing a
// GET. When the resource needs downloading the expected size is taken from
// the HEAD Content-Length. Used by the batch coordinator's size-check pass.
func (r *Resolver) DryCheck(ctx context.Context, urlString string, opts model.Options) (*CheckResult, error) {
	key, encoded, err := resource.NormalizedKey(urlString)
	if err != nil {
		return nil, err
	}
	result := &CheckResult{Key: key, URL: encoded}
	now := time.Now()

	if !opts.ForceDownload {
		_, state := r.checkLocal(key, opts, now)
		switch state {
		case localBundle, localValid:
			return result, nil
		case localStale:
			return r.dryRevalidate(ctx, result, opts, now)
		}
	}

	info, err := r.http.Head(ctx, encoded, nil)
	if err != nil {
		return nil, err
	}
	if info.StatusCode >= http.StatusBadRequest {
		return nil, errors.Wrapf(errors.ErrServerStatus, "HEAD %s returned %d", encoded, info.StatusCode)
	}
	result.NeedsDownload = true
	if info.ContentLength > 0 {
		result.ExpectedSize = info.ContentLength
	}
	return result, nil
}

func (r *Resolver) dryRevalidate(ctx context.Context, result *CheckResult, opts model.Options, now time.Time) (*CheckResult, error) {
	validator, hasValidator := r.ledger.ValidatorFor(result.Key)
	headers := make(map[string]string)
	if hasValidator {
		headers[httpx.HeaderIfModifiedSince] = validator
	}
	info, err := r.http.Head(ctx, result.URL, headers)
	if err != nil {
		return nil, err
	}
	if info.StatusCode >= http.StatusBadRequest {
		return nil, errors.Wrapf(errors.ErrServerStatus, "HEAD %s returned %d", result.URL, info.StatusCode)
	}
	unchanged := info.StatusCode == http.StatusNotModified ||
		(hasValidator && info.LastModified != "" && info.LastModified == validator)
	if unchanged {
		newValidator := info.LastModified
		if newValidator == "" {
			newValidator = validator
		}
		r.ledger.RecordFreshness(result.Key, newValidator, now.Add(r.expiration(opts)))
		return result, nil
	}
	result.NeedsDownload = true
	if info.ContentLength > 0 {
		result.ExpectedSize = info.ContentLength
	}
	return result, nil
}

// Unsubscribe detaches a single subscription. The in-flight operation still
// completes; only this subscriber's callbacks are suppressed.
func (r *Resolver) Unsubscribe(sub Subscription) {
	r.registry.unsubscribe(sub.Key, sub.token)
}

// UnsubscribeAll suppresses every pending notification for urlString.
func (r *Resolver) UnsubscribeAll(urlString string) {
	if key, _, err := resource.NormalizedKey(urlString); err == nil {
		r.registry.unsubscribeAll(key)
	}
}

// Cancel aborts the in-flight operation for urlString, if any. Its
// subscribers receive a cancellation-classified failure.
func (r *Resolver) Cancel(urlString string) {
	key, _, err := resource.NormalizedKey(urlString)
	if err != nil {
		return
	}
	r.mu.Lock()
	cancel, ok := r.inflight[key]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll aborts every in-flight operation.
func (r *Resolver) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.inflight))
	for _, cancel := range r.inflight {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// InFlight reports the number of resolutions currently running.
func (r *Resolver) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// LocalPath returns the file-system location the resource at urlString would
// be persisted to.
func (r *Resolver) LocalPath(urlString string) (string, error) {
	key, _, err := resource.NormalizedKey(urlString)
	if err != nil {
		return "", err
	}
	return r.store.Path(key), nil
}

// PurgeOlderThan removes every resource downloaded more than age ago from
// both the ledger and the local store. The two sides are purged pairwise and
// each removal is idempotent, so a crash between the two leaves no entry
// that cannot be purged again.
func (r *Resolver) PurgeOlderThan(age time.Duration) error {
	cutoff := time.Now().Add(-age)

	for _, key := range r.ledger.EntriesOlderThan(cutoff) {
		if err := r.store.Remove(key); err != nil {
			return err
		}
		r.ledger.Delete(key)
	}

	// files the ledger never knew about (or lost after a corrupt load)
	removed, err := r.store.PurgeOlderThan(cutoff)
	if err != nil {
		return err
	}
	for _, key := range removed {
		r.ledger.Delete(key)
	}
	return nil
}

// ResetMemoryCache clears the in-memory tier and the in-memory expiration
// entries, forcing the next resolutions back to disk and network.
func (r *Resolver) ResetMemoryCache() {
	r.store.ResetMemory()
	r.ledger.Reset()
}

// Flush persists the expiration ledger. Call it on the lifecycle events that
// matter to the host (shutdown, backgrounding).
func (r *Resolver) Flush() error {
	return r.ledger.Flush()
}

func (r *Resolver) tierOrder(opts model.Options) []store.Tier {
	if opts.UseBundle || r.cfg.UseBundle {
		return []store.Tier{store.TierBundle, store.TierMemory, store.TierFile}
	}
	return []store.Tier{store.TierMemory, store.TierFile}
}

func (r *Resolver) expiration(opts model.Options) time.Duration {
	if opts.ExpirationInterval > 0 {
		return opts.ExpirationInterval
	}
	return r.cfg.DefaultExpiration
}

func (r *Resolver) localPath(key model.ResourceKey, opts model.Options) string {
	if opts.LocalPath != "" {
		return opts.LocalPath
	}
	return r.store.Path(key)
}

// finishInflight drops the cancellation handle for key before the terminal
// fan-out, so a Resolve arriving after the fan-out starts a clean cycle.
func (r *Resolver) finishInflight(key model.ResourceKey) {
	r.mu.Lock()
	if cancel, ok := r.inflight[key]; ok {
		delete(r.inflight, key)
		defer cancel()
	}
	r.mu.Unlock()
}
