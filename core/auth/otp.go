package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// ErrNoRecord is returned by stores when no live record exists for a key.
var ErrNoRecord = errors.New("record not found")

// OTP is a one-time administrator login code. At most one live record exists
// per email; issuing a new code replaces any prior one.
type OTP struct {
	Email     string    `json:"email" db:"email"`
	Code      string    `json:"code" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Attempts  int       `json:"attempts" db:"attempts"`
	Used      bool      `json:"used" db:"used"`
}

func (o OTP) Expired(now time.Time) bool { return now.After(o.ExpiresAt) }

// OTPStore persists OTP records. Each method is a single atomic operation;
// concurrent callers converge on one live record per email.
type OTPStore interface {
	// ReplaceOTP stores otp, replacing any live record for the same email.
	ReplaceOTP(ctx context.Context, otp OTP) error
	GetOTP(ctx context.Context, email string) (OTP, error)
	// IncrementOTPAttempts atomically increments the attempt counter against
	// the stored value and returns the post-increment count.
	IncrementOTPAttempts(ctx context.Context, email string) (int, error)
	// DeleteOTP removes the record; deleting an absent record is a no-op.
	DeleteOTP(ctx context.Context, email string) error
	DeleteExpiredOTPs(ctx context.Context, now time.Time) (int, error)
}

// OTPIssue is the outcome of a successful code request. Code is only
// populated outside production configuration, for operator convenience.
type OTPIssue struct {
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
}

// OTPManager drives the per-email code lifecycle:
// NONE -> ISSUED -> {VERIFIED, EXPIRED, ATTEMPTS_EXCEEDED}; the record is
// deleted on reaching any absorbing state.
type OTPManager struct {
	conf       core.AuthConfig
	store      OTPStore
	mailSvc    core.EmailService
	logger     core.Logger
	exposeCode bool
}

func NewOTPManager(conf *core.Config, store OTPStore, mailSvc core.EmailService, logger core.Logger) *OTPManager {
	return &OTPManager{
		conf:       conf.Auth,
		store:      store,
		mailSvc:    mailSvc,
		logger:     logger,
		exposeCode: conf.Debug || conf.TestMode,
	}
}

// Request issues a fresh code for email, invalidating any prior live record.
// Delivery is best-effort: a failed email never fails the request, the code
// stays valid for entry by other means.
func (m *OTPManager) Request(ctx context.Context, email string) (OTPIssue, error) {
	email = core.CleanString(email, true /* lower */)

	code, err := GenerateOTP()
	if err != nil {
		return OTPIssue{}, internalError(err, "generating code")
	}

	now := NowFunc()
	otp := OTP{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(m.conf.OTPTTL),
	}
	if err := m.store.ReplaceOTP(ctx, otp); err != nil {
		return OTPIssue{}, internalError(err, "storing code")
	}

	m.sendCode(email, code, otp.ExpiresAt)

	issue := OTPIssue{ExpiresAt: otp.ExpiresAt}
	if m.exposeCode {
		issue.Code = code
	}
	return issue, nil
}

// Verify checks submitted against the live record for email. Verification is
// one-shot: the record is deleted on success, on expiry detection and on
// breaching the attempt ceiling.
func (m *OTPManager) Verify(ctx context.Context, email, submitted string) error {
	email = core.CleanString(email, true /* lower */)

	otp, err := m.store.GetOTP(ctx, email)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNoRecord {
			return errOTPNotFound
		}
		return internalError(err, "loading code")
	}

	if otp.Expired(NowFunc()) {
		m.deleteRecord(ctx, email)
		return errOTPExpired
	}
	if otp.Attempts >= m.conf.OTPMaxAttempts {
		m.deleteRecord(ctx, email)
		return errOTPAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(submitted)) != 1 {
		attempts, err := m.store.IncrementOTPAttempts(ctx, email)
		if err != nil && pkgerrors.Cause(err) != ErrNoRecord {
			return internalError(err, "counting attempt")
		}
		if attempts >= m.conf.OTPMaxAttempts {
			m.deleteRecord(ctx, email)
			return errOTPAttemptsExceeded
		}
		return errOTPInvalid
	}

	if err := m.store.DeleteOTP(ctx, email); err != nil {
		return internalError(err, "consuming code")
	}
	return nil
}

// SweepExpired deletes all expired records; safe to run concurrently or repeatedly.
func (m *OTPManager) SweepExpired(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpiredOTPs(ctx, NowFunc())
	if err != nil {
		return 0, internalError(err, "sweeping expired codes")
	}
	return n, nil
}

func (m *OTPManager) deleteRecord(ctx context.Context, email string) {
	if err := m.store.DeleteOTP(ctx, email); err != nil {
		m.logger.Error("deleting OTP record", err)
	}
}

func (m *OTPManager) sendCode(email, code string, expiresAt time.Time) {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	m.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: email}},
		Subject: "Your login code",
		BodyStr: "Your one-time login code is " + code +
			". It expires in " + strconv.Itoa(minutes) + " minutes. If you did not request it, ignore this email.",
	})
}
