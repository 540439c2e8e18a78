// Package imageset handles intake of the user-supplied image directory: a
// flat, unordered collection of raster files identified by filename.
package imageset

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Image is a single decodable raster file found during intake.
type Image struct {
	Name   string
	Path   string
	Width  int
	Height int
}

// A Set is the immutable result of scanning an image directory. Images are
// ordered by filename.
type Set struct {
	Dir    string
	Images []Image
}

var rasterExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsRaster reports whether name carries a recognized raster extension.
func IsRaster(name string) bool {
	return rasterExts[strings.ToLower(filepath.Ext(name))]
}

// Scan reads a flat directory of images. Subdirectories, non-raster files,
// and files that fail to decode are skipped with a warning. A missing or
// empty directory yields an empty set, not an error; halting on it is the
// caller's decision.
func Scan(dir string, logger golog.Logger) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warnw("image directory does not exist", "dir", dir)
			return &Set{Dir: dir}, nil
		}
		return nil, errors.Wrapf(err, "error reading image directory %q", dir)
	}

	set := &Set{Dir: dir}
	for _, entry := range entries {
		if entry.IsDir() {
			logger.Debugw("skipping subdirectory", "name", entry.Name())
			continue
		}
		if !IsRaster(entry.Name()) {
			logger.Debugw("skipping non-image file", "name", entry.Name())
			continue
		}
		path := filepath.Join(dir, entry.Name())
		img, err := imaging.Open(path)
		if err != nil {
			logger.Warnw("skipping undecodable image", "name", entry.Name(), "error", err)
			continue
		}
		bounds := img.Bounds()
		set.Images = append(set.Images, Image{
			Name:   entry.Name(),
			Path:   path,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}
	sort.Slice(set.Images, func(i, j int) bool {
		return set.Images[i].Name < set.Images[j].Name
	})
	return set, nil
}

// Empty reports whether the set contains no images.
func (s *Set) Empty() bool {
	return len(s.Images) == 0
}

// Names returns the image filenames in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Images))
	for _, img := range s.Images {
		names = append(names, img.Name)
	}
	return names
}

// Normalize copies the set into outDir, resizing any image whose longer side
// exceeds maxDim down to fit within maxDim x maxDim (aspect preserved).
// Images already within bounds are copied through untouched. The source set
// is never modified.
func Normalize(set *Set, maxDim int, outDir string, logger golog.Logger) (*Set, error) {
	if maxDim <= 0 {
		return nil, errors.Errorf("maxDim must be positive, got %d", maxDim)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	out := &Set{Dir: outDir}
	for _, img := range set.Images {
		dst := filepath.Join(outDir, img.Name)
		if img.Width <= maxDim && img.Height <= maxDim {
			if err := copyFile(img.Path, dst); err != nil {
				return nil, errors.Wrapf(err, "error copying %q", img.Name)
			}
			out.Images = append(out.Images, Image{Name: img.Name, Path: dst, Width: img.Width, Height: img.Height})
			continue
		}
		decoded, err := imaging.Open(img.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "error reopening %q", img.Name)
		}
		resized := imaging.Fit(decoded, maxDim, maxDim, imaging.Lanczos)
		if err := imaging.Save(resized, dst); err != nil {
			return nil, errors.Wrapf(err, "error saving resized %q", img.Name)
		}
		bounds := resized.Bounds()
		logger.Debugw("resized oversized image",
			"name", img.Name,
			"from_width", img.Width, "from_height", img.Height,
			"to_width", bounds.Dx(), "to_height", bounds.Dy())
		out.Images = append(out.Images, Image{Name: img.Name, Path: dst, Width: bounds.Dx(), Height: bounds.Dy()})
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(in.Close)
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		utils.UncheckedError(out.Close())
		return err
	}
	return out.Close()
}
