package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		msg      string
		expected string
	}{
		{
			name:     "wraps an error with context",
			err:      ErrNetwork,
			msg:      "fetching resource",
			expected: "fetching resource: network failure",
		},
		{
			name:     "nil error returns nil",
			err:      nil,
			msg:      "ignored",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, tt.msg)
			if tt.err == nil {
				assert.NoError(t, wrapped)
				return
			}
			require.Error(t, wrapped)
			assert.Equal(t, tt.expected, wrapped.Error())
			assert.True(t, errors.Is(wrapped, tt.err))
		})
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrServerStatus, "HEAD %s returned %d", "https://example.com/a.png", 503)
	require.Error(t, wrapped)
	assert.Equal(t, "HEAD https://example.com/a.png returned 503: unexpected server status", wrapped.Error())
	assert.True(t, errors.Is(wrapped, ErrServerStatus))

	assert.NoError(t, Wrapf(nil, "ignored %d", 1))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNetwork, ErrServerStatus, ErrCancelled, ErrLocalStorage, ErrLedgerCorrupt, ErrBatchBusy}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(fmt.Errorf("ctx: %w", a), b))
		}
	}
}
