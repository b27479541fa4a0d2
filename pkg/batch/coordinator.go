// Package batch implements the two-phase batch protocol: a size-check pass
// that runs HEAD-only freshness checks over a set of URLs and queues what
// needs downloading, then a download pass that drains the queue while
// aggregating byte and file counts.
package batch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/logger"
	"github.com/SysdataSpA/Docker/pkg/model"
	"github.com/SysdataSpA/Docker/pkg/resolver"
)

// DefaultConcurrency bounds the parallel HEAD/GET operations per phase.
const DefaultConcurrency = 4

// Checker is the resolver subset used by the size-check pass.
type Checker interface {
	DryCheck(ctx context.Context, urlString string, opts model.Options) (*resolver.CheckResult, error)
}

// Fetcher is the resolver subset used by the download pass.
type Fetcher interface {
	Resolve(ctx context.Context, urlString string, opts model.Options, h resolver.Handlers) (resolver.Subscription, error)
}

// CheckSizeCompletion reports the size-check totals: expected bytes and the
// number of resources that need downloading.
type CheckSizeCompletion func(totalSize int64, numElementsToDownload int)

// ProgressFunc receives the aggregate totals as the download pass advances.
type ProgressFunc func(totals model.BatchTotals)

// Completion reports whether the download pass ran to completion or was
// interrupted by cancellation or partial failure.
type Completion func(completed bool)

type queuedItem struct {
	url  string
	opts model.Options
	size int64
}

// job is the aggregate state of one size-check-then-download workflow.
type job struct {
	queue          []queuedItem
	expectedSize   int64
	expectedCount  int
	remainingSize  int64
	remainingCount int
	processing     bool
}

// Coordinator runs a single batch job at a time. All counter mutation is
// serialized behind one mutex; the per-item network work runs on a bounded
// worker pool.
type Coordinator struct {
	checker     Checker
	fetcher     Fetcher
	concurrency int

	mu       sync.Mutex
	job      *job
	checking bool
	cancel   context.CancelFunc
}

// NewCoordinator wires a coordinator to the resolver's check and fetch
// capabilities.
func NewCoordinator(checker Checker, fetcher Fetcher, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Coordinator{checker: checker, fetcher: fetcher, concurrency: concurrency}
}

// Processing reports whether a download pass is running.
func (c *Coordinator) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job != nil && c.job.processing
}

// Checking reports whether a size-check pass is running.
func (c *Coordinator) Checking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checking
}

// Totals snapshots the current job counters.
func (c *Coordinator) Totals() model.BatchTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return model.BatchTotals{}
	}
	return model.BatchTotals{
		ExpectedSize:   c.job.expectedSize,
		RemainingSize:  c.job.remainingSize,
		ExpectedCount:  c.job.expectedCount,
		RemainingCount: c.job.remainingCount,
	}
}

// CheckSize runs the size-check pass over urls. Resources that are locally
// valid (or confirmed by the conditional HEAD) are skipped; the rest are
// queued with their expected Content-Length. progress fires after every
// checked URL with the totals so far; completion fires exactly once with the
// final totals, or with the partial totals when the pass is cancelled. A HEAD
// failure skips that URL without aborting the batch.
//
// The pass is asynchronous; only the busy check is synchronous.
func (c *Coordinator) CheckSize(ctx context.Context, urls []string, opts model.Options, progress CheckSizeCompletion, completion CheckSizeCompletion) error {
	c.mu.Lock()
	if c.checking || (c.job != nil && c.job.processing) {
		c.mu.Unlock()
		return errors.ErrBatchBusy
	}
	c.checking = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.runCheck(runCtx, urls, opts, progress, completion)
	return nil
}

func (c *Coordinator) runCheck(ctx context.Context, urls []string, opts model.Options, progress, completion CheckSizeCompletion) {
	newJob := &job{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, urlString := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			check, err := c.checker.DryCheck(gctx, urlString, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("size-check failed for resource, skipping",
					logrus.Fields{"url": urlString, "error": err})
			} else if check.NeedsDownload {
				newJob.queue = append(newJob.queue, queuedItem{url: urlString, opts: opts, size: check.ExpectedSize})
				newJob.expectedSize += check.ExpectedSize
				newJob.expectedCount++
			}
			if progress != nil {
				progress(newJob.expectedSize, newJob.expectedCount)
			}
			return nil
		})
	}
	_ = g.Wait()

	newJob.remainingSize = newJob.expectedSize
	newJob.remainingCount = newJob.expectedCount

	c.mu.Lock()
	c.checking = false
	if ctx.Err() == nil {
		c.job = newJob
	}
	c.mu.Unlock()

	// a cancelled pass installs no job, but the caller still learns the
	// pass ended and what the partial totals were
	if completion != nil {
		completion(newJob.expectedSize, newJob.expectedCount)
	}
}

// DownloadAll drains the queue built by the last size-check, decrementing
// the remaining counters as bytes arrive and files complete. A failed
// resource drops its file count and its outstanding bytes; it is never
// re-counted. completion reports false when the pass was cancelled or any
// resource failed.
func (c *Coordinator) DownloadAll(ctx context.Context, progress ProgressFunc, completion Completion) error {
	c.mu.Lock()
	if c.checking || (c.job != nil && c.job.processing) {
		c.mu.Unlock()
		return errors.ErrBatchBusy
	}
	if c.job == nil || len(c.job.queue) == 0 {
		c.mu.Unlock()
		return errors.ErrBatchEmpty
	}
	c.job.processing = true
	queue := c.job.queue
	c.job.queue = nil
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.runDownload(runCtx, queue, progress, completion)
	return nil
}

func (c *Coordinator) runDownload(ctx context.Context, queue []queuedItem, progress ProgressFunc, completion Completion) {
	var failures int
	var failMu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(c.concurrency)
	for _, item := range queue {
		if ctx.Err() != nil {
			// cancellation stops new operations; in-flight ones finish
			c.settleItem(item.size, progress)
			continue
		}
		g.Go(func() error {
			if err := c.downloadOne(ctx, item, progress); err != nil {
				failMu.Lock()
				failures++
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	cancelled := ctx.Err() != nil
	c.mu.Lock()
	if c.job != nil {
		c.job.processing = false
	}
	if cancelled {
		// drop the job so a fresh size-check starts from zero
		c.job = nil
	}
	c.mu.Unlock()

	if completion != nil {
		completion(!cancelled && failures == 0)
	}
}

// downloadOne drives the resolver's download path for one queued resource
// and blocks until its terminal fan-out.
func (c *Coordinator) downloadOne(ctx context.Context, item queuedItem, progress ProgressFunc) error {
	remaining := item.size
	done := make(chan error, 1)

	opts := item.opts
	opts.ForceDownload = true // the size-check already established staleness

	handlers := resolver.Handlers{
		OnProgress: func(p model.Progress) {
			c.mu.Lock()
			consumed := int64(p.BytesRead)
			if consumed > remaining {
				consumed = remaining
			}
			remaining -= consumed
			if c.job != nil {
				c.job.remainingSize -= consumed
			}
			totals := c.totalsLocked()
			c.mu.Unlock()
			if progress != nil {
				progress(totals)
			}
		},
		OnSuccess: func(model.Resolution) {
			c.finishItem(remaining, progress)
			done <- nil
		},
		OnFailure: func(_ string, err error) {
			logger.Warn("batch download failed", logrus.Fields{"url": item.url, "error": err})
			c.finishItem(remaining, progress)
			done <- err
		},
	}

	if _, err := c.fetcher.Resolve(ctx, item.url, opts, handlers); err != nil {
		return err
	}
	return <-done
}

// finishItem settles a completed or failed item: its outstanding bytes leave
// the remaining total and its file count is consumed.
func (c *Coordinator) finishItem(leftover int64, progress ProgressFunc) {
	c.mu.Lock()
	if c.job != nil {
		c.job.remainingSize -= leftover
		if c.job.remainingSize < 0 {
			c.job.remainingSize = 0
		}
		if c.job.remainingCount > 0 {
			c.job.remainingCount--
		}
	}
	totals := c.totalsLocked()
	c.mu.Unlock()
	if progress != nil {
		progress(totals)
	}
}

// settleItem accounts for an item that was never started due to
// cancellation.
func (c *Coordinator) settleItem(size int64, progress ProgressFunc) {
	c.finishItem(size, progress)
}

func (c *Coordinator) totalsLocked() model.BatchTotals {
	if c.job == nil {
		return model.BatchTotals{}
	}
	return model.BatchTotals{
		ExpectedSize:   c.job.expectedSize,
		RemainingSize:  c.job.remainingSize,
		ExpectedCount:  c.job.expectedCount,
		RemainingCount: c.job.remainingCount,
	}
}

// Cancel stops the running pass. No new network operations are issued;
// operations already in flight complete or fail naturally. Afterwards the
// coordinator accepts a fresh size-check.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
