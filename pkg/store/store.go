// Package store is the local resource store. It layers three tiers: a
// read-only seed bundle directory, the file-system download directory and an
// optional in-memory cache.
//
// The memory tier is a count-bounded LRU and is write-through: a memory entry
// is only ever written together with its file-system counterpart, so the two
// hold identical bytes at last write.
package store

import (
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/fsutil"
	"github.com/SysdataSpA/Docker/pkg/logger"
	"github.com/SysdataSpA/Docker/pkg/model"
)

// Tier identifies where a resource was found.
type Tier int

const (
	// TierNone means no tier produced the resource.
	TierNone Tier = iota
	// TierBundle is the read-only seed directory.
	TierBundle
	// TierMemory is the in-memory LRU.
	TierMemory
	// TierFile is the file-system download directory.
	TierFile
)

// String returns a stable label for logging.
func (t Tier) String() string {
	switch t {
	case TierBundle:
		return "bundle"
	case TierMemory:
		return "memory"
	case TierFile:
		return "file"
	default:
		return "none"
	}
}

// DefaultOrder is the tier preference used when the caller passes none.
var DefaultOrder = []Tier{TierBundle, TierMemory, TierFile}

// DefaultMemoryEntries bounds the memory tier when no size is configured.
const DefaultMemoryEntries = 256

// Options configure a store Manager.
type Options struct {
	// DownloadDir is the file-system tier root. Required when
	// UseFileSystem is set.
	DownloadDir string
	// BundleDir is the read-only seed tier root; empty disables the tier.
	BundleDir string
	// UseFileSystem enables the file-system tier.
	UseFileSystem bool
	// UseMemoryCache enables the in-memory LRU tier.
	UseMemoryCache bool
	// MemoryEntries bounds the LRU; DefaultMemoryEntries when <= 0.
	MemoryEntries int
}

// Info describes the file-system tier for reporting.
type Info struct {
	Directory string
	TotalSize int64
	FileCount int
}

// Manager implements the tiered local store. It is safe for concurrent use:
// the LRU is internally synchronized and file writes go through a temp file
// plus atomic rename.
type Manager struct {
	downloadDir string
	bundleDir   string
	useFS       bool
	memory      *lru.Cache[model.ResourceKey, []byte]
}

// NewManager creates a store manager and its download directory.
func NewManager(opts Options) (*Manager, error) {
	m := &Manager{
		downloadDir: opts.DownloadDir,
		bundleDir:   opts.BundleDir,
		useFS:       opts.UseFileSystem,
	}
	if opts.UseFileSystem {
		if opts.DownloadDir == "" {
			return nil, errors.Wrap(errors.ErrLocalStorage, "download directory cannot be empty")
		}
		if err := fsutil.EnsureDir(opts.DownloadDir); err != nil {
			return nil, errors.Wrap(err, "failed to create download directory")
		}
	}
	if opts.UseMemoryCache {
		entries := opts.MemoryEntries
		if entries <= 0 {
			entries = DefaultMemoryEntries
		}
		cache, err := lru.New[model.ResourceKey, []byte](entries)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create memory cache")
		}
		m.memory = cache
	}
	return m, nil
}

// Path returns the file-system location for key.
func (m *Manager) Path(key model.ResourceKey) string {
	return filepath.Join(m.downloadDir, key.String())
}

// TryRead checks the tiers in order and returns the first hit. pathOverride
// replaces the default file-system location for the key. A miss on every
// tier returns ErrResourceEmpty.
func (m *Manager) TryRead(key model.ResourceKey, pathOverride string, order []Tier) ([]byte, Tier, error) {
	if order == nil {
		order = DefaultOrder
	}
	for _, tier := range order {
		switch tier {
		case TierBundle:
			if m.bundleDir == "" {
				continue
			}
			if data, err := os.ReadFile(filepath.Join(m.bundleDir, key.String())); err == nil {
				return data, TierBundle, nil
			}
		case TierMemory:
			if m.memory == nil {
				continue
			}
			if data, ok := m.memory.Get(key); ok {
				return data, TierMemory, nil
			}
		case TierFile:
			if !m.useFS {
				continue
			}
			path := pathOverride
			if path == "" {
				path = m.Path(key)
			}
			if data, err := os.ReadFile(path); err == nil {
				return data, TierFile, nil
			}
		}
	}
	return nil, TierNone, errors.ErrResourceEmpty
}

// Exists reports whether the resource is present in any tier.
func (m *Manager) Exists(key model.ResourceKey) bool {
	_, _, err := m.TryRead(key, "", nil)
	return err == nil
}

// Write persists data for key. The file-system write is atomic; the memory
// write is best-effort and never fails the overall write. pathOverride
// replaces the default file-system location.
func (m *Manager) Write(key model.ResourceKey, data []byte, pathOverride string) error {
	if m.useFS {
		path := pathOverride
		if path == "" {
			path = m.Path(key)
		}
		if err := m.writeFile(path, data); err != nil {
			return errors.Wrapf(errors.ErrLocalStorage, "failed to write %s: %v", path, err)
		}
	}
	if m.memory != nil {
		m.memory.Add(key, data)
	}
	return nil
}

func (m *Manager) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsutil.EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "dl-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := fsutil.Move(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Chmod(path, fsutil.FileModeSecure)
}

// Remove deletes the file-system and memory entries for key. Removing an
// absent resource is not an error, so paired ledger purges stay idempotent.
// The bundle tier is never touched.
func (m *Manager) Remove(key model.ResourceKey) error {
	if m.memory != nil {
		m.memory.Remove(key)
	}
	if !m.useFS {
		return nil
	}
	if err := os.Remove(m.Path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrLocalStorage, "failed to remove %s: %v", m.Path(key), err)
	}
	return nil
}

// PurgeOlderThan deletes file-system entries whose modification time (the
// recorded download date) precedes cutoff. It returns the removed keys so the
// caller can drop the matching ledger entries.
func (m *Manager) PurgeOlderThan(cutoff time.Time) ([]model.ResourceKey, error) {
	if !m.useFS {
		return nil, nil
	}
	dirEntries, err := os.ReadDir(m.downloadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrLocalStorage, "failed to read download directory: %v", err)
	}

	var removed []model.ResourceKey
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		key := model.ResourceKey(entry.Name())
		if err := os.Remove(filepath.Join(m.downloadDir, entry.Name())); err != nil {
			logger.Warn("failed to purge cached resource", logrus.Fields{"key": key, "error": err})
			continue
		}
		if m.memory != nil {
			m.memory.Remove(key)
		}
		removed = append(removed, key)
	}
	return removed, nil
}

// ResetMemory clears the memory tier only.
func (m *Manager) ResetMemory() {
	if m.memory != nil {
		m.memory.Purge()
	}
}

// GetInfo reports the size and file count of the file-system tier.
func (m *Manager) GetInfo() (*Info, error) {
	info := &Info{Directory: m.downloadDir}
	if !m.useFS {
		return info, nil
	}
	err := filepath.Walk(m.downloadDir, func(_ string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !fi.IsDir() {
			info.TotalSize += fi.Size()
			info.FileCount++
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, errors.Wrapf(errors.ErrLocalStorage, "failed to walk download directory: %v", err)
	}
	return info, nil
}
