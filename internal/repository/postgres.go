package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iskim1407-claw/makeit/internal/domain"
)

var _ CredentialRepository = (*PostgresCredentialRepo)(nil)

// CreateTokensTableSQL is the idempotent DDL for the credential table.
const CreateTokensTableSQL = `
CREATE TABLE IF NOT EXISTS tokens (
	id            BIGINT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	provider      TEXT NOT NULL,
	access_token  TEXT NOT NULL,
	refresh_token TEXT,
	expires_at    TIMESTAMPTZ,
	scope         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT tokens_user_provider_key UNIQUE (user_id, provider)
)`

const credentialColumns = `id, user_id, provider, access_token, refresh_token, expires_at, scope, created_at, updated_at`

const upsertCredentialSQL = `INSERT INTO tokens (id, user_id, provider, access_token, refresh_token, expires_at, scope)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, provider) DO UPDATE SET
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_at = EXCLUDED.expires_at,
	scope = EXCLUDED.scope,
	updated_at = NOW()
RETURNING ` + credentialColumns

// PostgresCredentialRepo implements CredentialRepository on the tokens table.
type PostgresCredentialRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresCredentialRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: pool, node: node}
}

// EnsureSchema creates the tokens table when it does not exist yet.
func (r *PostgresCredentialRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, CreateTokensTableSQL); err != nil {
		return fmt.Errorf("create tokens table: %w", err)
	}
	return nil
}

func (r *PostgresCredentialRepo) Get(ctx context.Context, userID string, provider domain.Provider) (domain.Credential, error) {
	const query = `SELECT ` + credentialColumns + `
FROM tokens
WHERE user_id = $1 AND provider = $2
LIMIT 1`

	cred, err := scanCredential(r.db.QueryRow(ctx, query, userID, string(provider)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credential{}, domain.ErrCredentialNotFound
		}
		return domain.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

func (r *PostgresCredentialRepo) ListByUser(ctx context.Context, userID string) ([]domain.Credential, error) {
	const query = `SELECT ` + credentialColumns + `
FROM tokens
WHERE user_id = $1
ORDER BY provider`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	refresh := sql.NullString{}
	if cred.RefreshToken != "" {
		refresh = sql.NullString{String: cred.RefreshToken, Valid: true}
	}
	scope := sql.NullString{}
	if cred.Scope != "" {
		scope = sql.NullString{String: cred.Scope, Valid: true}
	}
	expires := sql.NullTime{}
	if cred.ExpiresAt != nil {
		expires = sql.NullTime{Time: cred.ExpiresAt.UTC(), Valid: true}
	}

	row := r.db.QueryRow(ctx, upsertCredentialSQL,
		r.node.Generate().Int64(),
		cred.UserID,
		string(cred.Provider),
		cred.AccessToken,
		refresh,
		expires,
		scope,
	)
	saved, err := scanCredential(row)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("upsert credential: %w", err)
	}
	return saved, nil
}

func (r *PostgresCredentialRepo) Delete(ctx context.Context, userID string, provider domain.Provider) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1 AND provider = $2`, userID, string(provider)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func scanCredential(row pgx.Row) (domain.Credential, error) {
	var (
		id        int64
		userID    string
		provider  string
		access    string
		refresh   sql.NullString
		expiresAt sql.NullTime
		scope     sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &userID, &provider, &access, &refresh, &expiresAt, &scope, &createdAt, &updatedAt); err != nil {
		return domain.Credential{}, err
	}
	return domain.Credential{
		ID:           id,
		UserID:       userID,
		Provider:     domain.Provider(provider),
		AccessToken:  access,
		RefreshToken: refresh.String,
		ExpiresAt:    nullableTime(expiresAt),
		Scope:        scope.String,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if t.Valid {
		return &t.Time
	}
	return nil
}
