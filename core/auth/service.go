package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// Rate-limit scopes
const (
	scopeLogin = "login"
	scopeOTP   = "otp"
)

// AdminSession is a server-side registry record enabling explicit revocation
// and last-access auditing of administrator sessions.
type AdminSession struct {
	Email        string    `json:"email" db:"email"`
	SessionID    string    `json:"session_id" db:"session_id"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastAccessAt time.Time `json:"last_access_at" db:"last_access_at"`
}

// SessionRegistry persists administrator session records. Student sessions
// are token-only and never touch the registry.
type SessionRegistry interface {
	// PutAdminSession stores rec, replacing any prior record for the email.
	PutAdminSession(ctx context.Context, rec AdminSession) error
	GetAdminSession(ctx context.Context, email string) (AdminSession, error)
	TouchAdminSession(ctx context.Context, email string, at time.Time) error
	// DeleteAdminSession removes the record; absent records are a no-op.
	DeleteAdminSession(ctx context.Context, email string) error
	DeleteExpiredAdminSessions(ctx context.Context, now time.Time) (int, error)
}

// LoginResult is returned by the login flows: a bearer session plus a
// sanitized user projection (the password hash never serializes).
type LoginResult struct {
	Session
	User user.User `json:"user"`
}

// Service composes the credential store, OTP manager and token service into
// the user-facing login, refresh, validate and logout flows.
type Service struct {
	conf     core.AuthConfig
	usrSvc   *user.Service
	tokens   *TokenService
	otp      *OTPManager
	registry SessionRegistry
	limiter  *RateLimiter
	logger   core.Logger
}

func NewService(
	conf *core.Config,
	usrSvc *user.Service,
	tokens *TokenService,
	otp *OTPManager,
	registry SessionRegistry,
	limiter *RateLimiter,
	logger core.Logger,
) *Service {
	return &Service{
		conf:     conf.Auth,
		usrSvc:   usrSvc,
		tokens:   tokens,
		otp:      otp,
		registry: registry,
		limiter:  limiter,
		logger:   logger,
	}
}

// Login authenticates a student by username/email and password. Unknown
// identifier and wrong password are deliberately indistinguishable.
func (svc *Service) Login(ctx context.Context, uname, pwd string) (LoginResult, error) {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" || pwd == "" {
		return LoginResult{}, errMissingCredential
	}
	if err := svc.limiter.Allow(ctx, scopeLogin, uname); err != nil {
		return LoginResult{}, err
	}

	usr, err := svc.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if pkgerrors.Cause(err) == user.ErrNotFound {
			return LoginResult{}, errInvalidCredentials
		}
		return LoginResult{}, internalError(err, "finding user by username or email")
	}
	if !VerifyPassword(pwd, usr.PasswordHash) {
		return LoginResult{}, errInvalidCredentials
	}
	if !usr.IsActive {
		return LoginResult{}, errAccountDeactivated
	}

	usr, err = svc.usrSvc.SetLastLogin(ctx, usr)
	if err != nil {
		return LoginResult{}, internalError(err, "setting lastLogin")
	}

	sess, err := svc.tokens.CreateSession(usr.ID, usr.Email, usr.Role)
	if err != nil {
		return LoginResult{}, internalError(err, "creating session")
	}

	if err := svc.limiter.Reset(ctx, scopeLogin, uname); err != nil {
		svc.logger.Warn("resetting login rate limit", err)
	}
	return LoginResult{Session: sess, User: usr}, nil
}

// RequestOTP issues a one-time code for an allow-listed administrator email.
// Eligibility is checked before any OTP state is touched.
func (svc *Service) RequestOTP(ctx context.Context, email string) (OTPIssue, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return OTPIssue{}, errMissingCredential
	}
	if err := svc.limiter.Allow(ctx, scopeOTP, email); err != nil {
		return OTPIssue{}, err
	}
	if !svc.conf.IsAdminEmail(email) {
		return OTPIssue{}, errNotAuthorizedEmail
	}
	return svc.otp.Request(ctx, email)
}

// VerifyOTP exchanges a valid code for an administrator session. The admin
// user record is lazily provisioned on first successful verification.
func (svc *Service) VerifyOTP(ctx context.Context, email, code string) (LoginResult, error) {
	email = core.CleanString(email, true /* lower */)
	if !svc.conf.IsAdminEmail(email) {
		return LoginResult{}, errNotAuthorizedEmail
	}
	if err := svc.otp.Verify(ctx, email, code); err != nil {
		return LoginResult{}, err
	}

	usr, err := svc.usrSvc.UpsertAdmin(ctx, email)
	if err != nil {
		return LoginResult{}, internalError(err, "provisioning admin user")
	}
	usr, err = svc.usrSvc.SetLastLogin(ctx, usr)
	if err != nil {
		return LoginResult{}, internalError(err, "setting lastLogin")
	}

	sess, err := svc.tokens.CreateSession(usr.ID, usr.Email, usr.Role)
	if err != nil {
		return LoginResult{}, internalError(err, "creating session")
	}

	now := NowFunc()
	rec := AdminSession{
		Email:        email,
		SessionID:    uuid.New().String(),
		ExpiresAt:    sess.ExpiresAt,
		CreatedAt:    now,
		LastAccessAt: now,
	}
	if err := svc.registry.PutAdminSession(ctx, rec); err != nil {
		return LoginResult{}, internalError(err, "registering admin session")
	}

	if err := svc.limiter.Reset(ctx, scopeOTP, email); err != nil {
		svc.logger.Warn("resetting otp rate limit", err)
	}
	return LoginResult{Session: sess, User: usr}, nil
}

// Validate verifies the token and returns the live user it asserts. Admin
// tokens are additionally checked against the session registry, which also
// records last access.
func (svc *Service) Validate(ctx context.Context, token string) (user.User, *Claims, error) {
	if token == "" {
		return user.User{}, nil, errNoToken
	}
	claims, ok := svc.tokens.VerifySession(token)
	if !ok {
		return user.User{}, nil, errInvalidToken
	}

	if claims.Role == user.RoleAdmin {
		if err := svc.checkAdminRegistry(ctx, claims.Email); err != nil {
			return user.User{}, nil, err
		}
	}

	usr, err := svc.usrSvc.GetByID(ctx, claims.Subject)
	if err != nil {
		if pkgerrors.Cause(err) == user.ErrNotFound {
			return user.User{}, nil, errInvalidToken
		}
		return user.User{}, nil, internalError(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, nil, errAccountDeactivated
	}
	return usr, claims, nil
}

// Refresh trades a still-valid token for a fresh one with the same subject
// and role and a freshly computed TTL. Expired tokens require full re-login.
func (svc *Service) Refresh(ctx context.Context, token string) (Session, error) {
	sess, claims, ok := svc.tokens.RefreshSession(token)
	if !ok {
		return Session{}, errInvalidToken
	}

	if claims.Role == user.RoleAdmin {
		if err := svc.checkAdminRegistry(ctx, claims.Email); err != nil {
			return Session{}, err
		}
		// keep the registry expiry in step with the refreshed token
		now := NowFunc()
		rec := AdminSession{
			Email:        claims.Email,
			SessionID:    uuid.New().String(),
			ExpiresAt:    sess.ExpiresAt,
			CreatedAt:    now,
			LastAccessAt: now,
		}
		if err := svc.registry.PutAdminSession(ctx, rec); err != nil {
			return Session{}, internalError(err, "refreshing admin session record")
		}
	}
	return sess, nil
}

// Logout is idempotent and never fails from the caller's perspective:
// a missing or invalid token is not an error, and cleanup failures are
// logged, not surfaced, so clients are never stranded in a logged-in state.
func (svc *Service) Logout(ctx context.Context, token string) {
	claims, ok := svc.tokens.VerifySession(token)
	if !ok {
		return
	}
	if claims.Role == user.RoleAdmin {
		if err := svc.registry.DeleteAdminSession(ctx, claims.Email); err != nil {
			svc.logger.Error("deleting admin session record", err)
		}
	}
}

// SweepExpired removes expired OTPs and admin session records; idempotent
// and safe to run concurrently.
func (svc *Service) SweepExpired(ctx context.Context) (otps, sessions int, err error) {
	if otps, err = svc.otp.SweepExpired(ctx); err != nil {
		return otps, 0, err
	}
	sessions, err = svc.registry.DeleteExpiredAdminSessions(ctx, NowFunc())
	if err != nil {
		return otps, sessions, internalError(err, "sweeping admin sessions")
	}
	return otps, sessions, nil
}

func (svc *Service) checkAdminRegistry(ctx context.Context, email string) error {
	rec, err := svc.registry.GetAdminSession(ctx, email)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNoRecord {
			return errInvalidToken
		}
		return internalError(err, "loading admin session record")
	}
	now := NowFunc()
	if now.After(rec.ExpiresAt) {
		if err := svc.registry.DeleteAdminSession(ctx, email); err != nil {
			svc.logger.Error("deleting expired admin session record", err)
		}
		return errInvalidToken
	}
	if err := svc.registry.TouchAdminSession(ctx, email, now); err != nil {
		svc.logger.Warn("touching admin session record", err)
	}
	return nil
}
