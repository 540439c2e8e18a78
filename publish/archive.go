package publish

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// Archive zips the file at srcPath into dstPath and returns the archive
// size. The archive holds the single weights file under its base name.
func Archive(srcPath, dstPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, errors.Wrapf(err, "error opening %q", srcPath)
	}
	defer utils.UncheckedErrorFunc(src.Close)

	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(dst)
	entry, err := zw.Create(filepath.Base(srcPath))
	if err != nil {
		return 0, multierr.Combine(err, zw.Close(), dst.Close())
	}
	if _, err := io.Copy(entry, src); err != nil {
		return 0, multierr.Combine(err, zw.Close(), dst.Close())
	}
	if err := zw.Close(); err != nil {
		return 0, multierr.Combine(err, dst.Close())
	}
	if err := dst.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
