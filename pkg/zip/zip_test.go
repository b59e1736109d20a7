package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteArchivesFiles(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "user.jpg")
	result := filepath.Join(dir, "tryon_1.png")
	if err := os.WriteFile(user, []byte("user-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(result, []byte("result-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	entries := []Entry{{Name: "before.jpg", Path: user}, {Path: result}, {Name: "comparison.jpg"}}
	if err := Write(&buf, entries, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("files = %d, want 2", len(zr.File))
	}
	want := map[string]string{"before.jpg": "user-bytes", "tryon_1.png": "result-bytes"}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != want[f.Name] {
			t.Fatalf("%s = %q, want %q", f.Name, data, want[f.Name])
		}
	}
}

func TestWriteMissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Entry{{Name: "x.png", Path: filepath.Join(t.TempDir(), "missing.png")}}, time.Now())
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
