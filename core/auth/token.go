package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// Session types
const (
	SessionTypeStudent = "student_session"
	SessionTypeAdmin   = "admin_session"
)

var NowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via a session token.
// Role is a closed set; an unknown role is a decode failure.
type Claims struct {
	jwt.StandardClaims
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	SessionType string `json:"session_type,omitempty"`
}

// HasRole reports whether the claims satisfy the required role.
// Administrators may act as students; the reverse never holds.
func (c Claims) HasRole(required string) bool {
	return user.RolePriority(c.Role) >= user.RolePriority(required)
}

// Session is an issued bearer credential with its absolute expiry instant.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenService issues and verifies signed, self-contained session tokens.
// Verification is pure and safe for unbounded parallel execution.
type TokenService struct {
	conf   core.AuthConfig
	secret []byte
}

func NewTokenService(conf *core.Config) *TokenService {
	return &TokenService{
		conf:   conf.Auth,
		secret: []byte(conf.SecretKey),
	}
}

func sessionType(role string) string {
	if role == user.RoleAdmin {
		return SessionTypeAdmin
	}
	return SessionTypeStudent
}

// CreateSession encodes the subject's claims with a role-dependent TTL:
// 7 days for students, 24 hours for administrators (configurable).
func (ts *TokenService) CreateSession(subject, email, role string) (Session, error) {
	if !user.IsValidRole(role) {
		return Session{}, errors.Errorf("unknown role %q", role)
	}

	now := NowFunc()
	expiresAt := now.Add(ts.conf.SessionTTL(role == user.RoleAdmin))

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(), // keeps same-second reissues distinct
			Issuer:    ts.conf.Issuer,
			Audience:  ts.conf.Audience,
			Subject:   subject,
			IssuedAt:  now.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
		Email:       email,
		Role:        role,
		SessionType: sessionType(role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ts.secret)
	if err != nil {
		return Session{}, errors.Wrap(err, "signing token")
	}
	return Session{Token: ss, ExpiresAt: expiresAt}, nil
}

// VerifySession decodes and checks the token. It fails closed: any malformed,
// unsigned, tampered or expired input yields (nil, false), never an error.
func (ts *TokenService) VerifySession(token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ts.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}

	now := NowFunc()
	if !claims.VerifyExpiresAt(now.Unix(), true /* required */) {
		return nil, false
	}
	if !claims.VerifyIssuer(ts.conf.Issuer, true /* required */) {
		return nil, false
	}
	if !claims.VerifyAudience(ts.conf.Audience, true /* required */) {
		return nil, false
	}
	if !user.IsValidRole(claims.Role) || claims.SessionType != sessionType(claims.Role) {
		return nil, false
	}
	return claims, true
}

// RefreshSession issues a new token with the same subject/role and a freshly
// computed TTL. An already-invalid or expired input yields nothing; refresh
// never resurrects an expired session.
func (ts *TokenService) RefreshSession(token string) (Session, *Claims, bool) {
	claims, ok := ts.VerifySession(token)
	if !ok {
		return Session{}, nil, false
	}
	sess, err := ts.CreateSession(claims.Subject, claims.Email, claims.Role)
	if err != nil {
		return Session{}, nil, false
	}
	return sess, claims, true
}
