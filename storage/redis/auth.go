package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core/auth"
)

// otpRetention keeps an expired code around long enough for a late verify
// attempt to be reported as expired rather than not found.
const otpRetention = time.Hour

type otpStore struct {
	client *redis.Client
}

func NewOTPStore(client *redis.Client) auth.OTPStore {
	return &otpStore{client: client}
}

func (s *otpStore) ReplaceOTP(ctx context.Context, otp auth.OTP) error {
	key := otpKeyPrefix + otp.Email
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code", otp.Code,
			"created_at", otp.CreatedAt.Format(time.RFC3339Nano),
			"expires_at", otp.ExpiresAt.Format(time.RFC3339Nano),
			"attempts", otp.Attempts,
			"used", otp.Used,
		)
		pipe.ExpireAt(ctx, key, otp.ExpiresAt.Add(otpRetention))
		return nil
	})
	return errors.Wrap(err, "storing otp")
}

func (s *otpStore) GetOTP(ctx context.Context, email string) (auth.OTP, error) {
	fields, err := s.client.HGetAll(ctx, otpKeyPrefix+email).Result()
	if err != nil {
		return auth.OTP{}, errors.Wrap(err, "querying otp")
	}
	if len(fields) == 0 {
		return auth.OTP{}, auth.ErrNoRecord
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return auth.OTP{}, errors.Wrap(err, "parsing otp created_at")
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return auth.OTP{}, errors.Wrap(err, "parsing otp expires_at")
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return auth.OTP{}, errors.Wrap(err, "parsing otp attempts")
	}

	return auth.OTP{
		Email:     email,
		Code:      fields["code"],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		Attempts:  attempts,
		Used:      fields["used"] == "1",
	}, nil
}

func (s *otpStore) IncrementOTPAttempts(ctx context.Context, email string) (int, error) {
	key := otpKeyPrefix + email
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "checking otp")
	}
	if exists == 0 {
		return 0, auth.ErrNoRecord
	}
	attempts, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return 0, errors.Wrap(err, "incrementing otp attempts")
	}
	return int(attempts), nil
}

func (s *otpStore) DeleteOTP(ctx context.Context, email string) error {
	return errors.Wrap(s.client.Del(ctx, otpKeyPrefix+email).Err(), "deleting otp")
}

// DeleteExpiredOTPs is a no-op; keys carry TTLs and Redis reclaims them.
func (s *otpStore) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

type sessionRegistry struct {
	client *redis.Client
}

func NewSessionRegistry(client *redis.Client) auth.SessionRegistry {
	return &sessionRegistry{client: client}
}

func (s *sessionRegistry) PutAdminSession(ctx context.Context, rec auth.AdminSession) error {
	key := adminSessKeyPrefix + rec.Email
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"session_id", rec.SessionID,
			"expires_at", rec.ExpiresAt.Format(time.RFC3339Nano),
			"created_at", rec.CreatedAt.Format(time.RFC3339Nano),
			"last_access_at", rec.LastAccessAt.Format(time.RFC3339Nano),
		)
		pipe.ExpireAt(ctx, key, rec.ExpiresAt)
		return nil
	})
	return errors.Wrap(err, "storing admin session")
}

func (s *sessionRegistry) GetAdminSession(ctx context.Context, email string) (auth.AdminSession, error) {
	fields, err := s.client.HGetAll(ctx, adminSessKeyPrefix+email).Result()
	if err != nil {
		return auth.AdminSession{}, errors.Wrap(err, "querying admin session")
	}
	if len(fields) == 0 {
		return auth.AdminSession{}, auth.ErrNoRecord
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return auth.AdminSession{}, errors.Wrap(err, "parsing admin session expires_at")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return auth.AdminSession{}, errors.Wrap(err, "parsing admin session created_at")
	}
	lastAccessAt, err := time.Parse(time.RFC3339Nano, fields["last_access_at"])
	if err != nil {
		return auth.AdminSession{}, errors.Wrap(err, "parsing admin session last_access_at")
	}

	return auth.AdminSession{
		Email:        email,
		SessionID:    fields["session_id"],
		ExpiresAt:    expiresAt,
		CreatedAt:    createdAt,
		LastAccessAt: lastAccessAt,
	}, nil
}

func (s *sessionRegistry) TouchAdminSession(ctx context.Context, email string, at time.Time) error {
	key := adminSessKeyPrefix + email
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "checking admin session")
	}
	if exists == 0 {
		return auth.ErrNoRecord
	}
	// HSet leaves the key TTL untouched
	err = s.client.HSet(ctx, key, "last_access_at", at.Format(time.RFC3339Nano)).Err()
	return errors.Wrap(err, "touching admin session")
}

func (s *sessionRegistry) DeleteAdminSession(ctx context.Context, email string) error {
	return errors.Wrap(s.client.Del(ctx, adminSessKeyPrefix+email).Err(), "deleting admin session")
}

// DeleteExpiredAdminSessions is a no-op; keys carry TTLs and Redis reclaims them.
func (s *sessionRegistry) DeleteExpiredAdminSessions(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

type rateLimitStore struct {
	client *redis.Client
}

func NewRateLimitStore(client *redis.Client) auth.RateLimitStore {
	return &rateLimitStore{client: client}
}

func (s *rateLimitStore) IncrementHits(ctx context.Context, key string, window time.Duration) (int, error) {
	k := rateLimitKeyPrefix + key
	hits, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, errors.Wrap(err, "incrementing rate-limit hits")
	}
	if hits == 1 {
		if err = s.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, errors.Wrap(err, "setting rate-limit window")
		}
	}
	return int(hits), nil
}

func (s *rateLimitStore) ResetHits(ctx context.Context, key string) error {
	return errors.Wrap(s.client.Del(ctx, rateLimitKeyPrefix+key).Err(), "resetting rate-limit hits")
}
