package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core/auth"
)

// OTP store

type otpStore struct {
	db *DB
}

func NewOTPStore(db *DB) auth.OTPStore {
	return &otpStore{db: db}
}

func (s *otpStore) ReplaceOTP(_ context.Context, otp auth.OTP) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.otps[otp.Email] = &otp
	return nil
}

func (s *otpStore) GetOTP(_ context.Context, email string) (auth.OTP, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	if otp, ok := s.db.otps[email]; ok {
		return *otp, nil
	}
	return auth.OTP{}, auth.ErrNoRecord
}

func (s *otpStore) IncrementOTPAttempts(_ context.Context, email string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	otp, ok := s.db.otps[email]
	if !ok {
		return 0, auth.ErrNoRecord
	}
	otp.Attempts++
	return otp.Attempts, nil
}

func (s *otpStore) DeleteOTP(_ context.Context, email string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.otps, email)
	return nil
}

func (s *otpStore) DeleteExpiredOTPs(_ context.Context, now time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int
	for email, otp := range s.db.otps {
		if now.After(otp.ExpiresAt) {
			delete(s.db.otps, email)
			n++
		}
	}
	return n, nil
}

// Admin session registry

type sessionRegistry struct {
	db *DB
}

func NewSessionRegistry(db *DB) auth.SessionRegistry {
	return &sessionRegistry{db: db}
}

func (s *sessionRegistry) PutAdminSession(_ context.Context, rec auth.AdminSession) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.adminSessions[rec.Email] = &rec
	return nil
}

func (s *sessionRegistry) GetAdminSession(_ context.Context, email string) (auth.AdminSession, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	if rec, ok := s.db.adminSessions[email]; ok {
		return *rec, nil
	}
	return auth.AdminSession{}, auth.ErrNoRecord
}

func (s *sessionRegistry) TouchAdminSession(_ context.Context, email string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rec, ok := s.db.adminSessions[email]
	if !ok {
		return auth.ErrNoRecord
	}
	rec.LastAccessAt = at
	return nil
}

func (s *sessionRegistry) DeleteAdminSession(_ context.Context, email string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.adminSessions, email)
	return nil
}

func (s *sessionRegistry) DeleteExpiredAdminSessions(_ context.Context, now time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int
	for email, rec := range s.db.adminSessions {
		if now.After(rec.ExpiresAt) {
			delete(s.db.adminSessions, email)
			n++
		}
	}
	return n, nil
}

// Rate-limit store

type rateLimitStore struct {
	db *DB
}

func NewRateLimitStore(db *DB) auth.RateLimitStore {
	return &rateLimitStore{db: db}
}

func (s *rateLimitStore) IncrementHits(_ context.Context, key string, window time.Duration) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now()
	bucket, ok := s.db.hits[key]
	if !ok || now.After(bucket.expiresAt) {
		bucket = &hitBucket{expiresAt: now.Add(window)}
		s.db.hits[key] = bucket
	}
	bucket.count++
	return bucket.count, nil
}

func (s *rateLimitStore) ResetHits(_ context.Context, key string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.hits, key)
	return nil
}
