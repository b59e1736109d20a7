package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSplitSQLMarker(t *testing.T) {
	q := "--sql 6f1d2c3b-1a2b-4c5d-8e9f-0a1b2c3d4e5f\nselect 1;\n"
	marker, body, err := SplitSQLMarker(q)
	if err != nil {
		t.Fatalf("SplitSQLMarker returned error: %v", err)
	}
	if marker != "6f1d2c3b-1a2b-4c5d-8e9f-0a1b2c3d4e5f" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}
}

func TestSplitSQLMarkerRejectsMissingMarker(t *testing.T) {
	for _, q := range []string{"select 1", "--sql not-a-uuid\nselect 1", ""} {
		if _, _, err := SplitSQLMarker(q); !errors.Is(err, ErrSQLMarker) {
			t.Fatalf("SplitSQLMarker(%q) err = %v, want ErrSQLMarker", q, err)
		}
	}
}

func TestErrorRowReturnsError(t *testing.T) {
	var r SQLRunner
	row := r.QueryRow(context.Background(), "select 1")
	if err := row.Scan(); !errors.Is(err, ErrSQLMarker) {
		t.Fatalf("Scan err = %v, want ErrSQLMarker", err)
	}
}

func TestNewLoggerHonorsExplicitLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %s", out)
	}
}
