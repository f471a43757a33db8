package packaging

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for entries that would land outside the
// extension directory.
var ErrUnsafePath = errors.New("entry escapes the extension directory")

// ExtractionError reports a failed archive operation.
type ExtractionError struct {
	Op   string // open, mkdir, write
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extract writes the archive into parentDir according to layout and returns
// the extension directory parentDir/expected. created reports whether this
// call created that directory; it is true even when a later entry fails, so
// the caller knows what to remove. Extract never removes anything itself.
func Extract(archivePath string, layout Layout, parentDir, expected string) (dir string, created bool, err error) {
	dir = filepath.Join(parentDir, expected)

	if layout == InvalidLayout {
		return dir, false, &ExtractionError{Op: "open", Path: archivePath, Err: errors.New("invalid layout")}
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return dir, false, &ExtractionError{Op: "open", Path: archivePath, Err: err}
	}
	defer reader.Close()

	base := parentDir
	switch layout {
	case FlatLayout:
		if err := os.Mkdir(dir, 0o755); err != nil {
			return dir, false, &ExtractionError{Op: "mkdir", Path: dir, Err: err}
		}
		created = true
		base = dir
	case NamespacedLayout:
		if _, statErr := os.Stat(dir); errors.Is(statErr, os.ErrNotExist) {
			if err := os.Mkdir(dir, 0o755); err != nil {
				return dir, false, &ExtractionError{Op: "mkdir", Path: dir, Err: err}
			}
			created = true
		}
	}

	for _, f := range reader.File {
		dest, err := safeJoin(base, dir, f.Name)
		if err != nil {
			return dir, created, &ExtractionError{Op: "write", Path: f.Name, Err: err}
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return dir, created, &ExtractionError{Op: "mkdir", Path: dest, Err: err}
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return dir, created, &ExtractionError{Op: "mkdir", Path: filepath.Dir(dest), Err: err}
		}
		if err := extractZipFile(f, dest); err != nil {
			return dir, created, &ExtractionError{Op: "write", Path: dest, Err: err}
		}
	}

	return dir, created, nil
}

// safeJoin joins name onto base and checks the result stays within root.
func safeJoin(base, root, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.IsAbs(name) {
		return "", ErrUnsafePath
	}
	dest := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return dest, nil
}

func extractZipFile(f *zip.File, destPath string) error {
	if f.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s: symlinks are not supported", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, rc)
	return err
}
