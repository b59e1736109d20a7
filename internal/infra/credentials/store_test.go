package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tryon/internal/sqlinline"
)

type stubExecutor struct {
	token string
	props []byte
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, props: s.props, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	props []byte
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 2 {
		return errors.New("unexpected dest count")
	}
	tokenPtr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid token dest")
	}
	propsPtr, ok := dest[1].(*[]byte)
	if !ok {
		return errors.New("invalid properties dest")
	}
	*tokenPtr = r.token
	*propsPtr = r.props
	return nil
}

func TestGeminiAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestGeminiAPIKeyNoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.GeminiAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GeminiAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestKlingKeysReadsAccessKeyFromProperties(t *testing.T) {
	store := NewStore(&stubExecutor{token: "secret", props: []byte(`{"access_key":" ak "}`)})
	access, secret, err := store.KlingKeys(context.Background())
	if err != nil {
		t.Fatalf("KlingKeys error: %v", err)
	}
	if access != "ak" || secret != "secret" {
		t.Fatalf("KlingKeys = %q/%q, want ak/secret", access, secret)
	}
}

func TestSetKlingKeysValidates(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetKlingKeys(context.Background(), "ak", ""); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestSetGeminiAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetGeminiAPIKey(context.Background(), " secret "); err != nil {
		t.Fatalf("SetGeminiAPIKey error: %v", err)
	}
	if exec.exec.query != sqlinline.QUpsertIntegrationToken {
		t.Fatalf("unexpected query executed")
	}
	if len(exec.exec.args) != 3 || exec.exec.args[0] != ProviderGemini || exec.exec.args[1] != "secret" {
		t.Fatalf("unexpected args: %#v", exec.exec.args)
	}
}
