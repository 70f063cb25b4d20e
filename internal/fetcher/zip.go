package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks every regular file of the archive at zipPath under
// destDir and returns their paths in archive order. Entry names that would
// land outside destDir are rejected, and an archive with no files is an
// error.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer zr.Close() //nolint:errcheck

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "zip: create destination")
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open destination")
	}
	defer root.Close() //nolint:errcheck

	var files []string
	for _, entry := range zr.File {
		name := filepath.FromSlash(path.Clean(entry.Name))
		if !filepath.IsLocal(name) {
			return files, eris.Errorf("zip: entry %q escapes destination (zip slip)", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := root.MkdirAll(name, 0o755); err != nil {
				return files, eris.Wrapf(err, "zip: mkdir %s", entry.Name)
			}
			continue
		}
		if err := unpack(root, entry, name); err != nil {
			return files, err
		}
		files = append(files, filepath.Join(destDir, name))
	}

	if len(files) == 0 {
		return nil, eris.New("zip: archive is empty")
	}
	return files, nil
}

func unpack(root *os.Root, entry *zip.File, name string) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "zip: mkdir %s", dir)
		}
	}

	src, err := entry.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", entry.Name)
	}
	defer src.Close() //nolint:errcheck

	dst, err := root.Create(name)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", entry.Name)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return eris.Wrapf(err, "zip: write %s", entry.Name)
	}
	return eris.Wrapf(dst.Close(), "zip: close %s", entry.Name)
}
