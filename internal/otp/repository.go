package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("otp session not found")

// Repository persists OTP sessions.
//
// RecordFailedAttempt and MarkVerified are compare-and-swap updates: they only
// apply to a session that is still unverified with attempts below MaxAttempts
// (and, for MarkVerified, not expired at now). ok is false when the guard did
// not match, so concurrent verifications of one session cannot both succeed.
// ReleaseVerified undoes a MarkVerified whose sign-in could not be completed.
//
// DeleteExpiredUnverified removes sessions with expires_at <= now, matching
// State, which treats a session as expired from its expiry instant on.
type Repository interface {
	Create(ctx context.Context, session Session) (Session, error)
	Get(ctx context.Context, id int64) (Session, error)
	DeleteExpiredUnverified(ctx context.Context, phone string, now time.Time) (int64, error)
	RecordFailedAttempt(ctx context.Context, id int64) (attempts int, ok bool, err error)
	MarkVerified(ctx context.Context, id int64, now time.Time) (ok bool, err error)
	ReleaseVerified(ctx context.Context, id int64) error
}

const sessionColumns = `id, phone, otp, expires_at, verified, attempts, user_id, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed session repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session Session) (Session, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO otp_sessions (phone, otp, expires_at, verified, attempts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+sessionColumns,
		session.Phone, session.CodeHash, session.ExpiresAt.UTC(), session.Verified, session.Attempts, time.Now().UTC())
	created, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("insert otp session: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM otp_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return session, nil
}

func (r *PostgresRepository) DeleteExpiredUnverified(ctx context.Context, phone string, now time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM otp_sessions
        WHERE phone = $1 AND verified = FALSE AND expires_at <= $2`, phone, now.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, id int64) (int, bool, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `UPDATE otp_sessions SET attempts = attempts + 1
        WHERE id = $1 AND verified = FALSE AND attempts < $2
        RETURNING attempts`, id, MaxAttempts).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return attempts, true, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id int64, now time.Time) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE otp_sessions SET verified = TRUE
        WHERE id = $1 AND verified = FALSE AND attempts < $2 AND expires_at > $3`, id, MaxAttempts, now.UTC())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *PostgresRepository) ReleaseVerified(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE otp_sessions SET verified = FALSE WHERE id = $1 AND verified = TRUE`, id); err != nil {
		return fmt.Errorf("release otp session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.Phone, &s.CodeHash, &s.ExpiresAt, &s.Verified, &s.Attempts, &s.UserID, &s.CreatedAt); err != nil {
		return Session{}, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
