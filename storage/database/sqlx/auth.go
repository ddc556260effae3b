package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/auth"
)

// OTP store. Every statement is a single atomic operation so concurrent
// issue/verify calls converge on one live record per email.

type otpStore struct {
	db *sqlx.DB
}

func NewOTPStore(db *sqlx.DB) auth.OTPStore {
	return &otpStore{db: db}
}

func (s *otpStore) ReplaceOTP(ctx context.Context, otp auth.OTP) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO otp (email, code, created_at, expires_at, attempts, used)
		 VALUES (:email, :code, :created_at, :expires_at, :attempts, :used)
		 ON CONFLICT (email) DO UPDATE
		 SET code = EXCLUDED.code, created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at, attempts = EXCLUDED.attempts, used = EXCLUDED.used`,
		otp,
	)
	return errors.Wrap(err, "upserting otp")
}

func (s *otpStore) GetOTP(ctx context.Context, email string) (auth.OTP, error) {
	var otp auth.OTP
	err := s.db.GetContext(ctx, &otp,
		`SELECT email, code, created_at, expires_at, attempts, used FROM otp WHERE email = $1`, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return auth.OTP{}, auth.ErrNoRecord
		}
		return auth.OTP{}, errors.Wrap(err, "querying otp")
	}
	return otp, nil
}

func (s *otpStore) IncrementOTPAttempts(ctx context.Context, email string) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts,
		`UPDATE otp SET attempts = attempts + 1 WHERE email = $1 RETURNING attempts`, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, auth.ErrNoRecord
		}
		return 0, errors.Wrap(err, "incrementing otp attempts")
	}
	return attempts, nil
}

func (s *otpStore) DeleteOTP(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM otp WHERE email = $1`, email)
	return errors.Wrap(err, "deleting otp")
}

func (s *otpStore) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM otp WHERE expires_at < $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired otps")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Admin session registry

type sessionRegistry struct {
	db *sqlx.DB
}

func NewSessionRegistry(db *sqlx.DB) auth.SessionRegistry {
	return &sessionRegistry{db: db}
}

func (s *sessionRegistry) PutAdminSession(ctx context.Context, rec auth.AdminSession) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO admin_session (email, session_id, expires_at, created_at, last_access_at)
		 VALUES (:email, :session_id, :expires_at, :created_at, :last_access_at)
		 ON CONFLICT (email) DO UPDATE
		 SET session_id = EXCLUDED.session_id, expires_at = EXCLUDED.expires_at,
		     created_at = EXCLUDED.created_at, last_access_at = EXCLUDED.last_access_at`,
		rec,
	)
	return errors.Wrap(err, "upserting admin session")
}

func (s *sessionRegistry) GetAdminSession(ctx context.Context, email string) (auth.AdminSession, error) {
	var rec auth.AdminSession
	err := s.db.GetContext(ctx, &rec,
		`SELECT email, session_id, expires_at, created_at, last_access_at FROM admin_session WHERE email = $1`, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return auth.AdminSession{}, auth.ErrNoRecord
		}
		return auth.AdminSession{}, errors.Wrap(err, "querying admin session")
	}
	return rec, nil
}

func (s *sessionRegistry) TouchAdminSession(ctx context.Context, email string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE admin_session SET last_access_at = $1 WHERE email = $2`, at, email)
	if err != nil {
		return errors.Wrap(err, "touching admin session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNoRecord
	}
	return nil
}

func (s *sessionRegistry) DeleteAdminSession(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_session WHERE email = $1`, email)
	return errors.Wrap(err, "deleting admin session")
}

func (s *sessionRegistry) DeleteExpiredAdminSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admin_session WHERE expires_at < $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired admin sessions")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Rate-limit store

type rateLimitStore struct {
	db *sqlx.DB
}

func NewRateLimitStore(db *sqlx.DB) auth.RateLimitStore {
	return &rateLimitStore{db: db}
}

func (s *rateLimitStore) IncrementHits(ctx context.Context, key string, window time.Duration) (int, error) {
	now := time.Now().UTC()
	var hits int
	err := s.db.GetContext(ctx, &hits,
		`INSERT INTO rate_limit (key, hits, expires_at) VALUES ($1, 1, $2)
		 ON CONFLICT (key) DO UPDATE
		 SET hits       = CASE WHEN rate_limit.expires_at < $3 THEN 1 ELSE rate_limit.hits + 1 END,
		     expires_at = CASE WHEN rate_limit.expires_at < $3 THEN EXCLUDED.expires_at ELSE rate_limit.expires_at END
		 RETURNING hits`,
		key, now.Add(window), now,
	)
	if err != nil {
		return 0, errors.Wrap(err, "incrementing rate-limit hits")
	}
	return hits, nil
}

func (s *rateLimitStore) ResetHits(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit WHERE key = $1`, key)
	return errors.Wrap(err, "resetting rate-limit hits")
}
