package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/model"
)

const testKey = model.ResourceKey("aabbccdd")

func newTestManager(t *testing.T, memory bool) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Options{
		DownloadDir:    filepath.Join(dir, "downloads"),
		BundleDir:      filepath.Join(dir, "seed"),
		UseFileSystem:  true,
		UseMemoryCache: memory,
	})
	require.NoError(t, err)
	return m, dir
}

func TestWriteAndTryRead(t *testing.T) {
	m, _ := newTestManager(t, true)

	require.NoError(t, m.Write(testKey, []byte("payload"), ""))

	data, tier, err := m.TryRead(testKey, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, TierMemory, tier, "memory precedes file in the default order")

	// file tier holds identical bytes
	data, tier, err = m.TryRead(testKey, "", []Tier{TierFile})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, TierFile, tier)
	assert.True(t, m.Exists(testKey))
}

func TestTryRead_Miss(t *testing.T) {
	m, _ := newTestManager(t, false)
	_, tier, err := m.TryRead(testKey, "", nil)
	require.ErrorIs(t, err, errors.ErrResourceEmpty)
	assert.Equal(t, TierNone, tier)
	assert.False(t, m.Exists(testKey))
}

func TestBundleTierWins(t *testing.T) {
	m, dir := newTestManager(t, true)
	seedPath := filepath.Join(dir, "seed", testKey.String())
	require.NoError(t, os.MkdirAll(filepath.Dir(seedPath), 0o755))
	require.NoError(t, os.WriteFile(seedPath, []byte("seeded"), 0o644))

	require.NoError(t, m.Write(testKey, []byte("downloaded"), ""))

	data, tier, err := m.TryRead(testKey, "", nil)
	require.NoError(t, err)
	assert.Equal(t, TierBundle, tier)
	assert.Equal(t, []byte("seeded"), data)
}

func TestWrite_PathOverride(t *testing.T) {
	m, dir := newTestManager(t, false)
	custom := filepath.Join(dir, "elsewhere", "res.bin")

	require.NoError(t, m.Write(testKey, []byte("x"), custom))

	_, err := os.Stat(custom)
	require.NoError(t, err)
	_, err = os.Stat(m.Path(testKey))
	assert.True(t, os.IsNotExist(err))

	data, tier, err := m.TryRead(testKey, custom, []Tier{TierFile})
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
	assert.Equal(t, TierFile, tier)
}

func TestWrite_FailureClassifiedAsLocalStorage(t *testing.T) {
	m, dir := newTestManager(t, false)

	// a regular file where the parent directory should be blocks the write
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := m.Write(testKey, []byte("payload"), filepath.Join(blocker, "nested", testKey.String()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLocalStorage)
}

func TestRemove(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Write(testKey, []byte("y"), ""))
	require.NoError(t, m.Remove(testKey))
	assert.False(t, m.Exists(testKey))

	// removing twice is fine
	require.NoError(t, m.Remove(testKey))
}

func TestPurgeOlderThan(t *testing.T) {
	m, _ := newTestManager(t, false)
	oldKey := model.ResourceKey("old-resource")
	newKey := model.ResourceKey("new-resource")
	require.NoError(t, m.Write(oldKey, []byte("old"), ""))
	require.NoError(t, m.Write(newKey, []byte("new"), ""))

	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(m.Path(oldKey), past, past))

	removed, err := m.PurgeOlderThan(time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, oldKey, removed[0])
	assert.False(t, m.Exists(oldKey))
	assert.True(t, m.Exists(newKey))
}

func TestResetMemory(t *testing.T) {
	m, _ := newTestManager(t, true)
	require.NoError(t, m.Write(testKey, []byte("z"), ""))

	m.ResetMemory()

	_, tier, err := m.TryRead(testKey, "", nil)
	require.NoError(t, err)
	assert.Equal(t, TierFile, tier, "file tier survives a memory reset")
}

func TestGetInfo(t *testing.T) {
	m, _ := newTestManager(t, false)
	require.NoError(t, m.Write(model.ResourceKey("k1"), []byte("12345"), ""))
	require.NoError(t, m.Write(model.ResourceKey("k2"), []byte("123"), ""))

	info, err := m.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, 2, info.FileCount)
	assert.Equal(t, int64(8), info.TotalSize)
}
