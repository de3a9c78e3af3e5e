package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type postgresCredentialStore struct {
	pool   *pgxpool.Pool
	slot   string
	logger *zap.Logger
}

// NewPostgresCredentialStore returns a store backed by the credentials table.
func NewPostgresCredentialStore(pool *pgxpool.Pool, slot string, logger *zap.Logger) CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresCredentialStore{pool: pool, slot: slot, logger: logger}
}

func (s *postgresCredentialStore) Set(ctx context.Context, token string) error {
	const query = `
        INSERT INTO credentials (slot, token, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (slot) DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, s.slot, token)
	return err
}

func (s *postgresCredentialStore) Get(ctx context.Context) (string, bool) {
	const query = `SELECT token FROM credentials WHERE slot=$1`

	var token string
	if err := s.pool.QueryRow(ctx, query, s.slot).Scan(&token); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("read credential", zap.String("slot", s.slot), zap.Error(err))
		}
		return "", false
	}
	return token, token != ""
}

func (s *postgresCredentialStore) Clear(ctx context.Context) error {
	const query = `DELETE FROM credentials WHERE slot=$1`

	_, err := s.pool.Exec(ctx, query, s.slot)
	return err
}
