// Package postgres is a [directory.Directory] backed by a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/authsession/directory"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS auth_users (
	id             TEXT PRIMARY KEY,
	email          TEXT UNIQUE,
	username       TEXT UNIQUE,
	phone_number   TEXT UNIQUE,
	password_hash  TEXT NOT NULL DEFAULT '',
	provider       TEXT NOT NULL DEFAULT 'local',
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const userColumns = `id, COALESCE(email, ''), COALESCE(username, ''), COALESCE(phone_number, ''),
	password_hash, provider, active, email_verified, created_at, updated_at`

// Directory implements directory.Directory on the auth_users table.
type Directory struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// Open creates a pool from dsn and verifies connectivity. Caller must call Close.
func Open(ctx context.Context, dsn string) (*Directory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// Close releases the pool.
func (d *Directory) Close() {
	d.pool.Close()
}

// EnsureSchema creates the auth_users table when missing.
func (d *Directory) EnsureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (d *Directory) FindByIdentifier(ctx context.Context, identifier string) (*directory.UserRecord, error) {
	if identifier == "" {
		return nil, directory.ErrNotFound
	}
	row := d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM auth_users
		WHERE email = $1 OR username = $1 OR phone_number = $1
		LIMIT 1`, identifier)
	return scanUser(row)
}

func (d *Directory) CreateUser(ctx context.Context, in directory.CreateInput) (*directory.UserRecord, error) {
	provider := in.Provider
	if provider == "" {
		provider = directory.ProviderLocal
	}
	row := d.pool.QueryRow(ctx, `INSERT INTO auth_users
		(id, email, username, phone_number, password_hash, provider, active)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
		RETURNING `+userColumns,
		uuid.NewString(), in.Email, in.Username, in.PhoneNumber, in.PasswordHash, provider, in.Active)

	rec, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, directory.ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

func (d *Directory) UpdateUserByID(ctx context.Context, id string, patch directory.Patch) (*directory.UserRecord, error) {
	row := d.pool.QueryRow(ctx, `UPDATE auth_users SET
		password_hash  = COALESCE($2, password_hash),
		email_verified = COALESCE($3, email_verified),
		active         = COALESCE($4, active),
		updated_at     = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, patch.PasswordHash, patch.EmailVerified, patch.Active)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*directory.UserRecord, error) {
	var u directory.UserRecord
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PhoneNumber,
		&u.PasswordHash, &u.Provider, &u.Active, &u.EmailVerified,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
