package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vidora.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements the user directory on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and returns a directory store with tuned pool
// defaults.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

// Close releases the connection pool.
func (s *PGStore) Close() error { return s.db.Close() }

// DB exposes the pool for readiness probes and migrations.
func (s *PGStore) DB() *sql.DB { return s.db }

const identityColumns = `id, username, email, full_name, password_hash, coalesce(refresh_token, ''), created_at, updated_at`

func scanIdentity(row *sql.Row) (*Identity, error) {
	var u Identity
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, email, full_name, password_hash) values($1,$2,$3,$4,$5)`,
		identity.ID, identity.Username, identity.Email, identity.FullName, identity.PasswordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PGStore) FindIdentity(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from users where id=$1`, id)
	return scanIdentity(row)
}

func (s *PGStore) FindByLogin(ctx context.Context, login string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from users where username=$1 or email=$1`, login)
	return scanIdentity(row)
}

func (s *PGStore) UpdateProfile(ctx context.Context, id, fullName, email string) (*Identity, error) {
	// Only the named columns change; password_hash and refresh_token are
	// untouched by profile updates.
	row := s.db.QueryRowContext(ctx,
		`update users set full_name=$1, email=$2, updated_at=now()
		 where id=$3
		 returning `+identityColumns, fullName, email, id)
	identity, err := scanIdentity(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return identity, nil
}

func (s *PGStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$1, updated_at=now() where id=$2`, passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetRefreshToken(ctx context.Context, id, token string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=$1, updated_at=now() where id=$2`, token, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) ClearRefreshToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=null, updated_at=now() where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) RotateRefreshToken(ctx context.Context, id, presented, next string) (bool, error) {
	// Compare-and-swap: the single-document update is atomic, so two
	// concurrent rotations of the same session cannot both succeed.
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=$1, updated_at=now() where id=$2 and refresh_token=$3`,
		next, id, presented)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
