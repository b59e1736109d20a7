package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Entry is a file on disk stored in the archive under Name.
type Entry struct {
	Name string
	Path string
}

// Write streams entries into a zip archive on w. Entries with an empty Path
// are skipped. The archive is closed before returning.
func Write(w io.Writer, entries []Entry, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		name := e.Name
		if name == "" {
			name = filepath.Base(e.Path)
		}
		if err := addFile(zw, name, e.Path, modified); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, name, path string, modified time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", name, err)
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip: create %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("zip: write %s: %w", name, err)
	}
	return nil
}
