package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// In-memory fakes for the service collaborators.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]user.User // by ID
}

var _ user.Repository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]user.User)}
}

func (r *fakeUserRepo) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
outer:
	for _, usr := range r.users {
		for _, excl := range excludedUsers {
			if usr.ID == excl.ID {
				continue outer
			}
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (r *fakeUserRepo) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if usr, ok := r.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (r *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, usr := range r.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *fakeUserRepo) GetUserByUsernameOrEmail(_ context.Context, uname string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, usr := range r.users {
		if usr.Username == uname || usr.Email == uname {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *fakeUserRepo) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *fakeUserRepo) SetLastLogin(_ context.Context, id string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	usr, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.LastLogin = t
	r.users[id] = usr
	return nil
}

type fakeOTPStore struct {
	mu   sync.Mutex
	otps map[string]OTP
}

var _ OTPStore = (*fakeOTPStore)(nil)

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{otps: make(map[string]OTP)}
}

func (s *fakeOTPStore) ReplaceOTP(_ context.Context, otp OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps[otp.Email] = otp
	return nil
}

func (s *fakeOTPStore) GetOTP(_ context.Context, email string) (OTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if otp, ok := s.otps[email]; ok {
		return otp, nil
	}
	return OTP{}, ErrNoRecord
}

func (s *fakeOTPStore) IncrementOTPAttempts(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	otp, ok := s.otps[email]
	if !ok {
		return 0, ErrNoRecord
	}
	otp.Attempts++
	s.otps[email] = otp
	return otp.Attempts, nil
}

func (s *fakeOTPStore) DeleteOTP(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.otps, email)
	return nil
}

func (s *fakeOTPStore) DeleteExpiredOTPs(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for email, otp := range s.otps {
		if otp.Expired(now) {
			delete(s.otps, email)
			n++
		}
	}
	return n, nil
}

type fakeRegistry struct {
	mu   sync.Mutex
	recs map[string]AdminSession
}

var _ SessionRegistry = (*fakeRegistry)(nil)

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{recs: make(map[string]AdminSession)}
}

func (r *fakeRegistry) PutAdminSession(_ context.Context, rec AdminSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.Email] = rec
	return nil
}

func (r *fakeRegistry) GetAdminSession(_ context.Context, email string) (AdminSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[email]; ok {
		return rec, nil
	}
	return AdminSession{}, ErrNoRecord
}

func (r *fakeRegistry) TouchAdminSession(_ context.Context, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[email]
	if !ok {
		return ErrNoRecord
	}
	rec.LastAccessAt = at
	r.recs[email] = rec
	return nil
}

func (r *fakeRegistry) DeleteAdminSession(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recs, email)
	return nil
}

func (r *fakeRegistry) DeleteExpiredAdminSessions(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for email, rec := range r.recs {
		if now.After(rec.ExpiresAt) {
			delete(r.recs, email)
			n++
		}
	}
	return n, nil
}

type fakeRateLimitStore struct {
	mu   sync.Mutex
	hits map[string]int
}

var _ RateLimitStore = (*fakeRateLimitStore)(nil)

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{hits: make(map[string]int)}
}

func (s *fakeRateLimitStore) IncrementHits(_ context.Context, key string, _ time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[key]++
	return s.hits[key], nil
}

func (s *fakeRateLimitStore) ResetHits(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hits, key)
	return nil
}

type fakeMailService struct {
	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*fakeMailService)(nil)

func (s *fakeMailService) SendMessages(messages ...*core.EmailMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range messages {
		s.sent = append(s.sent, *msg)
	}
}

func (s *fakeMailService) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type nopLogger struct{}

var _ core.Logger = (*nopLogger)(nil)

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
