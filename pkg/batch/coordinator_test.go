package batch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/SysdataSpA/Docker/pkg/batch/mocks"
	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/httpx"
	"github.com/SysdataSpA/Docker/pkg/ledger"
	"github.com/SysdataSpA/Docker/pkg/model"
	"github.com/SysdataSpA/Docker/pkg/resolver"
	"github.com/SysdataSpA/Docker/pkg/store"
)

// batchServer serves fixed-size payloads per path and counts operations.
type batchServer struct {
	*httptest.Server
	sizes map[string]int
	heads atomic.Int64
	gets  atomic.Int64
}

func newBatchServer(t *testing.T, sizes map[string]int) *batchServer {
	t.Helper()
	bs := &batchServer{sizes: sizes}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size, ok := bs.sizes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodHead:
			bs.heads.Add(1)
			w.Header().Set("Content-Length", strconv.Itoa(size))
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			bs.gets.Add(1)
			_, _ = w.Write([]byte(strings.Repeat("x", size)))
		}
	}))
	t.Cleanup(bs.Close)
	return bs
}

func newBatchEnv(t *testing.T) (*Coordinator, *resolver.Resolver) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewManager(store.Options{
		DownloadDir:   filepath.Join(dir, "downloads"),
		UseFileSystem: true,
	})
	require.NoError(t, err)
	led := ledger.New("")
	client := httpx.NewClient(5*time.Second, "batch-test/1.0")
	res := resolver.NewResolver(client, st, led, resolver.Config{
		UseExpirationLedger: true,
		UseHeadRequest:      true,
	})
	return NewCoordinator(res, res, 2), res
}

func resolveOne(t *testing.T, res *resolver.Resolver, url string) {
	t.Helper()
	done := make(chan struct{})
	_, err := res.Resolve(context.Background(), url, model.Options{}, resolver.Handlers{
		OnSuccess: func(model.Resolution) { close(done) },
		OnFailure: func(_ string, err error) { t.Errorf("resolve failed: %v", err) },
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out resolving")
	}
}

func TestCheckSize_CountsOnlyStaleResources(t *testing.T) {
	server := newBatchServer(t, map[string]int{"/valid": 50, "/a": 100, "/b": 200})
	c, res := newBatchEnv(t)

	// /valid is already cached and fresh
	resolveOne(t, res, server.URL+"/valid")

	totalCh := make(chan [2]int64, 1)
	err := c.CheckSize(context.Background(),
		[]string{server.URL + "/valid", server.URL + "/a", server.URL + "/b"},
		model.Options{}, nil,
		func(totalSize int64, count int) { totalCh <- [2]int64{totalSize, int64(count)} })
	require.NoError(t, err)

	select {
	case got := <-totalCh:
		assert.Equal(t, int64(300), got[0], "expectedTotalSize")
		assert.Equal(t, int64(2), got[1], "numElementsToDownload")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for size-check completion")
	}
	assert.Equal(t, int64(2), server.heads.Load(), "one HEAD per stale resource, none for the valid one")
	assert.Equal(t, int64(1), server.gets.Load(), "size-check never downloads")
}

func TestDownloadAll_DrainsQueue(t *testing.T) {
	server := newBatchServer(t, map[string]int{"/a": 100, "/b": 200})
	c, _ := newBatchEnv(t)

	checkDone := make(chan struct{})
	require.NoError(t, c.CheckSize(context.Background(),
		[]string{server.URL + "/a", server.URL + "/b"},
		model.Options{}, nil,
		func(int64, int) { close(checkDone) }))
	<-checkDone

	var lastTotals model.BatchTotals
	completed := make(chan bool, 1)
	require.NoError(t, c.DownloadAll(context.Background(),
		func(totals model.BatchTotals) {
			assert.LessOrEqual(t, totals.RemainingSize, totals.ExpectedSize)
			assert.LessOrEqual(t, totals.RemainingCount, totals.ExpectedCount)
			lastTotals = totals
		},
		func(ok bool) { completed <- ok }))

	select {
	case ok := <-completed:
		assert.True(t, ok, "batch must report full completion")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for download pass")
	}
	assert.Equal(t, int64(0), lastTotals.RemainingSize)
	assert.Equal(t, 0, lastTotals.RemainingCount)
	assert.Equal(t, int64(300), lastTotals.ExpectedSize)
	assert.Equal(t, int64(2), server.gets.Load())
	assert.False(t, c.Processing())
}

func TestDownloadAll_WithoutCheckSize(t *testing.T) {
	c, _ := newBatchEnv(t)
	err := c.DownloadAll(context.Background(), nil, nil)
	require.ErrorIs(t, err, errors.ErrBatchEmpty)
}

func TestCheckSize_RejectedWhileProcessing(t *testing.T) {
	server := newBatchServer(t, map[string]int{"/a": 100})
	c, _ := newBatchEnv(t)

	checkDone := make(chan struct{})
	require.NoError(t, c.CheckSize(context.Background(), []string{server.URL + "/a"},
		model.Options{}, nil, func(int64, int) { close(checkDone) }))
	<-checkDone

	completed := make(chan bool, 1)
	require.NoError(t, c.DownloadAll(context.Background(), nil, func(ok bool) { completed <- ok }))

	// a second size-check while the download pass runs must not corrupt counters
	err := c.CheckSize(context.Background(), []string{server.URL + "/a"}, model.Options{}, nil, nil)
	if err != nil {
		require.ErrorIs(t, err, errors.ErrBatchBusy)
	}
	<-completed
}

func TestCancel_LeavesCleanState(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Length", "100")
		case http.MethodGet:
			<-release
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	c, _ := newBatchEnv(t)

	checkDone := make(chan struct{})
	require.NoError(t, c.CheckSize(context.Background(),
		[]string{server.URL + "/a", server.URL + "/b", server.URL + "/c"},
		model.Options{}, nil, func(int64, int) { close(checkDone) }))
	<-checkDone

	completed := make(chan bool, 1)
	require.NoError(t, c.DownloadAll(context.Background(), nil, func(ok bool) { completed <- ok }))

	c.Cancel()
	close(release)

	select {
	case ok := <-completed:
		assert.False(t, ok, "cancelled batch must not report completion")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for cancelled pass to settle")
	}

	assert.False(t, c.Processing())
	assert.Equal(t, model.BatchTotals{}, c.Totals(), "counters reset for the next size-check")

	// a fresh size-check starts cleanly
	checkDone2 := make(chan struct{})
	require.NoError(t, c.CheckSize(context.Background(), []string{server.URL + "/a"},
		model.Options{}, nil, func(int64, int) { close(checkDone2) }))
	<-checkDone2
}

func TestCheckSize_CancelledPassStillReportsCompletion(t *testing.T) {
	headStarted := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			select {
			case headStarted <- struct{}{}:
			default:
			}
			<-release
		}
		w.Header().Set("Content-Length", "100")
	}))
	defer server.Close()
	defer close(release)

	c, _ := newBatchEnv(t)

	reported := make(chan [2]int64, 1)
	require.NoError(t, c.CheckSize(context.Background(), []string{server.URL + "/a"},
		model.Options{}, nil,
		func(totalSize int64, count int) { reported <- [2]int64{totalSize, int64(count)} }))

	<-headStarted
	c.Cancel()

	select {
	case got := <-reported:
		assert.Zero(t, got[0], "cancelled before any HEAD finished")
		assert.Zero(t, got[1])
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled size-check never reported completion")
	}

	assert.False(t, c.Checking())
	assert.Equal(t, model.BatchTotals{}, c.Totals(), "a cancelled pass installs no job")
}

func TestCheckSize_SkipsFailedHead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	checker := mocks.NewMockChecker(ctrl)
	checker.EXPECT().DryCheck(gomock.Any(), "https://cdn.example.com/ok.png", gomock.Any()).
		Return(&resolver.CheckResult{NeedsDownload: true, ExpectedSize: 10}, nil)
	checker.EXPECT().DryCheck(gomock.Any(), "https://cdn.example.com/broken.png", gomock.Any()).
		Return(nil, errors.ErrNetwork)

	c := NewCoordinator(checker, mocks.NewMockFetcher(ctrl), 1)

	totalCh := make(chan [2]int64, 1)
	require.NoError(t, c.CheckSize(context.Background(),
		[]string{"https://cdn.example.com/ok.png", "https://cdn.example.com/broken.png"},
		model.Options{}, nil,
		func(totalSize int64, count int) { totalCh <- [2]int64{totalSize, int64(count)} }))

	select {
	case got := <-totalCh:
		assert.Equal(t, int64(10), got[0], "failed HEAD is skipped, not counted")
		assert.Equal(t, int64(1), got[1])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestDownloadAll_PartialFailure(t *testing.T) {
	server := newBatchServer(t, map[string]int{"/a": 100})
	c, _ := newBatchEnv(t)

	checkDone := make(chan struct{})
	require.NoError(t, c.CheckSize(context.Background(),
		[]string{server.URL + "/a", server.URL + "/gone"},
		model.Options{}, nil, func(int64, int) { close(checkDone) }))
	<-checkDone

	// /gone 404s on HEAD so only /a is queued; now make /a fail on GET
	delete(server.sizes, "/a")

	completed := make(chan bool, 1)
	require.NoError(t, c.DownloadAll(context.Background(), nil, func(ok bool) { completed <- ok }))

	select {
	case ok := <-completed:
		assert.False(t, ok, "partial failure must be reported as interrupted")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out")
	}
	totals := c.Totals()
	assert.Equal(t, int64(0), totals.RemainingSize, "failed bytes leave the remaining total")
	assert.Equal(t, 0, totals.RemainingCount)
}
