// Package credentials keeps provider API keys in the provider_credentials
// table so a deployment can rotate the Gemini key without a restart.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"veobatch/internal/infra"
	"veobatch/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

// ResolveGeminiAPIKey prefers an explicitly configured key and falls back to
// the stored one. A nil store resolves to the configured key alone.
func ResolveGeminiAPIKey(ctx context.Context, s *Store, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	if s == nil {
		return "", nil
	}
	return s.GeminiAPIKey(ctx)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string, props map[string]any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	return s.upsert(ctx, ProviderGemini, key, props)
}

func (s *Store) DeleteGeminiAPIKey(ctx context.Context) error {
	_, err := s.sql.Exec(ctx, sqlinline.QDeleteProviderCredential, ProviderGemini)
	return err
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
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderCredential, provider, token, raw)
	return err
}
