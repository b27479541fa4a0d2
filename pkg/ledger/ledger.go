// Package ledger tracks resource freshness: for every downloaded resource it
// records the last known validator and the absolute deadline until which the
// local copy may be served without revalidation.
//
// The ledger lives in memory and is persisted as a YAML record set. It is
// loaded once at construction and flushed on explicit request (the process
// equivalent of app backgrounding). A corrupt or unreadable file degrades to
// an empty ledger instead of failing resolution.
package ledger

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/fsutil"
	"github.com/SysdataSpA/Docker/pkg/logger"
	"github.com/SysdataSpA/Docker/pkg/model"
)

// Entry records freshness information for a single resource.
type Entry struct {
	Validator    string    `yaml:"validator,omitempty"`
	ExpiresAt    time.Time `yaml:"expires_at"`
	DownloadedAt time.Time `yaml:"downloaded_at"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	path string

	mu      sync.RWMutex
	entries map[model.ResourceKey]Entry
	dirty   bool
}

// New loads the ledger persisted at path. A missing file yields an empty
// ledger; a corrupt file is logged and likewise degrades to empty, which
// forces full downloads instead of crashing resolution.
func New(path string) *Ledger {
	l := &Ledger{
		path:    path,
		entries: make(map[model.ResourceKey]Entry),
	}
	if path == "" {
		return l
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read expiration ledger", logrus.Fields{"path": path, "error": err})
		}
		return l
	}

	var entries map[model.ResourceKey]Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		logger.Warn("expiration ledger is corrupt, starting empty",
			logrus.Fields{"path": path, "error": errors.Wrap(err, errors.ErrLedgerCorrupt.Error())})
		return l
	}
	if entries != nil {
		l.entries = entries
	}
	return l
}

// IsStillValid reports whether an entry exists for key and its expiration
// deadline has not passed at the given instant.
func (l *Ledger) IsStillValid(key model.ResourceKey, now time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[key]
	return ok && now.Before(entry.ExpiresAt)
}

// RecordFreshness upserts the entry for key. Only a successful download or a
// successful revalidation may call this.
func (l *Ledger) RecordFreshness(key model.ResourceKey, validator string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entries[key]
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now()
	}
	entry.Validator = validator
	entry.ExpiresAt = expiresAt
	l.entries[key] = entry
	l.dirty = true
}

// TouchDownload marks the download instant for key; used so purge-by-age
// operates on the real download date, not on revalidations.
func (l *Ledger) TouchDownload(key model.ResourceKey, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entries[key]
	entry.DownloadedAt = at
	l.entries[key] = entry
	l.dirty = true
}

// ValidatorFor returns the stored validator for key, if any.
func (l *Ledger) ValidatorFor(key model.ResourceKey) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[key]
	if !ok || entry.Validator == "" {
		return "", false
	}
	return entry.Validator, true
}

// Delete removes the entry for key. Removing an absent key is a no-op so the
// paired store purge stays idempotent.
func (l *Ledger) Delete(key model.ResourceKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		delete(l.entries, key)
		l.dirty = true
	}
}

// EntriesOlderThan returns the keys whose download date precedes cutoff.
func (l *Ledger) EntriesOlderThan(cutoff time.Time) []model.ResourceKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var keys []model.ResourceKey
	for key, entry := range l.entries {
		if entry.DownloadedAt.Before(cutoff) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of tracked resources.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset drops every in-memory entry. The persisted file is untouched until
// the next Flush.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[model.ResourceKey]Entry)
	l.dirty = true
}

// Flush persists the ledger atomically (temp file + rename). Flushing a
// clean ledger is a no-op.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path == "" || !l.dirty {
		return nil
	}

	data, err := yaml.Marshal(l.entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode expiration ledger")
	}

	dir := filepath.Dir(l.path)
	if err := fsutil.EnsureDir(dir); err != nil {
		return errors.Wrap(err, "failed to create ledger directory")
	}
	tmp, err := os.CreateTemp(dir, "ledger-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create ledger temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write ledger")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close ledger temp file")
	}
	if err := fsutil.Move(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to replace ledger file")
	}
	l.dirty = false
	return nil
}
