// Package bundle packs downloaded resources into a seed archive and unpacks
// seed archives into the read-only bundle directory. A seed archive is a
// tar.gz whose entries are resource files named by their keys, so an
// unpacked bundle is immediately usable as the store's bundle tier.
package bundle

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
	"github.com/sirupsen/logrus"

	"github.com/SysdataSpA/Docker/pkg/errors"
	"github.com/SysdataSpA/Docker/pkg/fsutil"
	"github.com/SysdataSpA/Docker/pkg/logger"
)

// Export packs every file under sourceDir into a gzipped tar archive at
// archivePath. The archive holds the directory's files at the top level, so
// importing it reproduces the same flat key-named layout.
func Export(ctx context.Context, sourceDir, archivePath string) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return errors.Wrapf(errors.ErrLocalStorage, "failed to stat source directory %s: %v", sourceDir, err)
	}
	if !info.IsDir() {
		return errors.Wrapf(errors.ErrLocalStorage, "source %s is not a directory", sourceDir)
	}

	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve source directory")
	}

	archiveFiles, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absSource + string(os.PathSeparator): "",
	})
	if err != nil {
		return errors.Wrap(err, "failed to collect files for archive")
	}
	if len(archiveFiles) == 0 {
		return errors.Wrapf(errors.ErrResourceEmpty, "no resources under %s", sourceDir)
	}

	if err := fsutil.EnsureDir(filepath.Dir(archivePath)); err != nil {
		return err
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return errors.Wrap(err, "failed to create archive file")
	}
	defer func() { _ = out.Close() }()

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
	if err := format.Archive(ctx, out, archiveFiles); err != nil {
		return errors.Wrap(err, "failed to write archive")
	}

	logger.Debug("Exported seed archive",
		logrus.Fields{"source": sourceDir, "archive": archivePath, "files": len(archiveFiles)})
	return nil
}

// Import unpacks the seed archive at archivePath into destDir. Existing files
// with the same names are overwritten.
func Import(ctx context.Context, archivePath, destDir string) error {
	if _, err := os.Stat(archivePath); err != nil {
		return errors.Wrapf(errors.ErrBundleMissing, "seed archive %s: %v", archivePath, err)
	}
	if err := fsutil.EnsureDir(destDir); err != nil {
		return err
	}

	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return errors.Wrap(err, "failed to open seed archive")
	}

	count := 0
	walkErr := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if err := extractEntry(fsys, path, destDir, d); err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if walkErr != nil {
		return errors.Wrap(walkErr, "failed to extract seed archive")
	}

	logger.Debug("Imported seed archive",
		logrus.Fields{"archive": archivePath, "dest": destDir, "files": count})
	return nil
}

func extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	target := filepath.Join(destDir, filepath.FromSlash(path))
	if d.IsDir() {
		return fsutil.EnsureDir(target)
	}
	if err := fsutil.EnsureDir(filepath.Dir(target)); err != nil {
		return err
	}

	src, err := fsys.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive entry %s", path)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", target)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "failed to extract %s", path)
	}
	return nil
}
