package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysdataSpA/Docker/pkg/model"
)

const testKey = model.ResourceKey("0123456789abcdef")

func TestIsStillValid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		expiresAt time.Time
		record    bool
		expected  bool
	}{
		{
			name:      "entry inside window",
			record:    true,
			expiresAt: now.Add(time.Hour),
			expected:  true,
		},
		{
			name:      "entry past deadline",
			record:    true,
			expiresAt: now.Add(-time.Second),
			expected:  false,
		},
		{
			name:     "no entry",
			record:   false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New("")
			if tt.record {
				l.RecordFreshness(testKey, "Mon, 02 Jan 2006 15:04:05 GMT", tt.expiresAt)
			}
			assert.Equal(t, tt.expected, l.IsStillValid(testKey, now))
		})
	}
}

func TestValidatorFor(t *testing.T) {
	l := New("")
	_, ok := l.ValidatorFor(testKey)
	assert.False(t, ok)

	l.RecordFreshness(testKey, "Tue, 03 Jan 2006 10:00:00 GMT", time.Now().Add(time.Hour))
	v, ok := l.ValidatorFor(testKey)
	require.True(t, ok)
	assert.Equal(t, "Tue, 03 Jan 2006 10:00:00 GMT", v)
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.yaml")

	l := New(path)
	deadline := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	l.RecordFreshness(testKey, "validator-1", deadline)
	require.NoError(t, l.Flush())

	reloaded := New(path)
	assert.Equal(t, 1, reloaded.Len())
	v, ok := reloaded.ValidatorFor(testKey)
	require.True(t, ok)
	assert.Equal(t, "validator-1", v)
	assert.True(t, reloaded.IsStillValid(testKey, time.Now()))
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\tnot: [valid yaml"), 0o640))

	l := New(path)
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.IsStillValid(testKey, time.Now()))
}

func TestEntriesOlderThan(t *testing.T) {
	l := New("")
	oldKey := model.ResourceKey("old")
	newKey := model.ResourceKey("new")

	l.RecordFreshness(oldKey, "", time.Now())
	l.TouchDownload(oldKey, time.Now().AddDate(0, 0, -10))
	l.RecordFreshness(newKey, "", time.Now())

	cutoff := time.Now().AddDate(0, 0, -7)
	keys := l.EntriesOlderThan(cutoff)
	require.Len(t, keys, 1)
	assert.Equal(t, oldKey, keys[0])

	l.Delete(oldKey)
	assert.Empty(t, l.EntriesOlderThan(cutoff))
	// deleting again is a no-op
	l.Delete(oldKey)
	assert.Equal(t, 1, l.Len())
}

func TestReset(t *testing.T) {
	l := New("")
	l.RecordFreshness(testKey, "v", time.Now().Add(time.Hour))
	l.Reset()
	assert.Equal(t, 0, l.Len())
}

func TestFlushCleanLedgerIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	l := New(path)
	require.NoError(t, l.Flush())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "clean ledger must not create a file")
}
