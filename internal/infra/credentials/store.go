package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

const (
	ProviderGemini  = "gemini"
	ProviderKlingAI = "klingai"
)

// Store reads and writes provider credentials kept in integration_tokens.
// KlingAI keeps its secret in token and its access key in properties.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the integration_tokens table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QCreateIntegrationTokensTable)
	return err
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	token, _, err := s.load(ctx, ProviderGemini)
	return token, err
}

// KlingKeys returns the access and secret keys. Both are empty when unset.
func (s *Store) KlingKeys(ctx context.Context) (string, string, error) {
	secret, props, err := s.load(ctx, ProviderKlingAI)
	if err != nil || secret == "" {
		return "", "", err
	}
	access, _ := props["access_key"].(string)
	return strings.TrimSpace(access), secret, nil
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	return s.upsert(ctx, ProviderGemini, key, nil)
}

func (s *Store) SetKlingKeys(ctx context.Context, accessKey, secretKey string) error {
	accessKey = strings.TrimSpace(accessKey)
	secretKey = strings.TrimSpace(secretKey)
	if accessKey == "" || secretKey == "" {
		return errors.New("klingai access key and secret key are required")
	}
	return s.upsert(ctx, ProviderKlingAI, secretKey, map[string]any{"access_key": accessKey})
}

func (s *Store) load(ctx context.Context, provider string) (string, map[string]any, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var (
		token string
		raw   []byte
	)
	if err := row.Scan(&token, &raw); err != nil {
		if infra.IsNoRows(err) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("load %s credentials: %w", provider, err)
	}
	props := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &props); err != nil {
			return "", nil, fmt.Errorf("decode %s credential properties: %w", provider, err)
		}
	}
	return strings.TrimSpace(token), props, nil
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
