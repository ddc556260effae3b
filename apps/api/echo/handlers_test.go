package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/auth"
	emailsvc "github.com/trezcool/shule/services/email"
)

func Test_authApi_login(t *testing.T) {
	app := setup(t)
	app.createStudent(t, "Neo", "neo", "neo@test.cd", "Str0ng!pwd", true)
	app.createStudent(t, "Morpheus", "morpheus", "morpheus@test.cd", "Str0ng!pwd", false)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantKind auth.Kind
	}{
		{name: "by username", body: LoginRequest{Username: "neo", Password: "Str0ng!pwd"}, wantCode: http.StatusOK},
		{name: "by email", body: LoginRequest{Username: "Neo@Test.CD", Password: "Str0ng!pwd"}, wantCode: http.StatusOK},
		{name: "unknown user", body: LoginRequest{Username: "trinity", Password: "Str0ng!pwd"}, wantCode: http.StatusUnauthorized, wantKind: auth.KindInvalidCredential},
		{name: "wrong password", body: LoginRequest{Username: "neo", Password: "nope-nope1!"}, wantCode: http.StatusUnauthorized, wantKind: auth.KindInvalidCredential},
		{name: "deactivated account", body: LoginRequest{Username: "morpheus", Password: "Str0ng!pwd"}, wantCode: http.StatusForbidden, wantKind: auth.KindInactiveAccount},
		{name: "missing fields", body: LoginRequest{}, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/login", marchallObj(t, tt.body))
			app.server.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			if tt.wantCode == http.StatusOK {
				assert.NotEmpty(t, body["token"])
				assert.NotNil(t, body["user"])

				cookie := authCookie(rec)
				require.NotNil(t, cookie, "successful login must set the auth cookie")
				assert.Equal(t, body["token"], cookie.Value)
				assert.True(t, cookie.HttpOnly)
				assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
				assert.Greater(t, cookie.MaxAge, 0)
			} else if tt.wantKind != "" {
				assert.Equal(t, string(tt.wantKind), body["code"])
			}
		})
	}
}

func Test_authApi_otp(t *testing.T) {
	app := setup(t)

	t.Run("unauthorized email", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/otp/request", marchallObj(t, OTPRequest{Email: "intruder@test.cd"}))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, string(auth.KindNotAuthorizedEmail), decodeBody(t, rec)["code"])
	})

	t.Run("request and verify", func(t *testing.T) {
		emailsvc.ClearSentMessages()

		req, rec := newRequest(http.MethodPost, "/v1/auth/otp/request", marchallObj(t, OTPRequest{Email: adminEmail}))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		code, _ := decodeBody(t, rec)["code"].(string)
		require.NotEmpty(t, code, "code must be exposed outside production")

		require.Len(t, emailsvc.SentMessages, 1)
		assert.Contains(t, emailsvc.SentMessages[0].BodyStr, code)

		t.Run("wrong code", func(t *testing.T) {
			bad := "000000"
			if code == bad {
				bad = "000001"
			}
			req, rec := newRequest(http.MethodPost, "/v1/auth/otp/verify", marchallObj(t, OTPVerifyRequest{Email: adminEmail, Code: bad}))
			app.server.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(auth.KindOTPInvalid), decodeBody(t, rec)["code"])
		})

		req, rec = newRequest(http.MethodPost, "/v1/auth/otp/verify", marchallObj(t, OTPVerifyRequest{Email: adminEmail, Code: code}))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["token"])
		require.NotNil(t, authCookie(rec))

		t.Run("code is one-shot", func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/otp/verify", marchallObj(t, OTPVerifyRequest{Email: adminEmail, Code: code}))
			app.server.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(auth.KindOTPNotFound), decodeBody(t, rec)["code"])
		})
	})
}

func Test_authApi_me(t *testing.T) {
	app := setup(t)
	app.createStudent(t, "Neo", "neo", "neo@test.cd", "Str0ng!pwd", true)
	token := app.studentToken(t, "neo", "Str0ng!pwd")

	t.Run("no token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/auth/me")
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(auth.KindNoToken), decodeBody(t, rec)["code"])
	})

	t.Run("bearer token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", token)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, "neo@test.cd", body["email"])
		assert.Nil(t, body["password_hash"], "the hash must never serialize")
	})

	t.Run("cookie token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/auth/me")
		req.AddCookie(&http.Cookie{Name: "shule_auth", Value: token})
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("bearer header wins over cookie", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", "not.a.token")
		req.AddCookie(&http.Cookie{Name: "shule_auth", Value: token})
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(auth.KindInvalidToken), decodeBody(t, rec)["code"])
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	app := setup(t)
	app.createStudent(t, "Neo", "neo", "neo@test.cd", "Str0ng!pwd", true)
	token := app.studentToken(t, "neo", "Str0ng!pwd")

	t.Run("valid token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["token"])
		assert.NotEqual(t, token, body["token"])
		require.NotNil(t, authCookie(rec))
	})

	t.Run("invalid token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", "not.a.token")
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(auth.KindInvalidToken), decodeBody(t, rec)["code"])
	})
}

func Test_authApi_logout(t *testing.T) {
	app := setup(t)
	adminToken := app.adminToken(t)

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/logout", adminToken)
	app.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	cookie := authCookie(rec)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0, "logout must clear the auth cookie")

	t.Run("admin session is revoked", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/auth/me", adminToken)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("idempotent", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/logout", adminToken)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("never fails without a token", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/logout")
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_gate(t *testing.T) {
	app := setup(t)
	app.createStudent(t, "Neo", "neo", "neo@test.cd", "Str0ng!pwd", true)
	studentToken := app.studentToken(t, "neo", "Str0ng!pwd")
	adminToken := app.adminToken(t)

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
		wantKind auth.Kind
	}{
		{name: "student route, student token", path: "/v1/student/home", token: studentToken, wantCode: http.StatusOK},
		{name: "student route, admin token", path: "/v1/student/home", token: adminToken, wantCode: http.StatusOK},
		{name: "student route, no token", path: "/v1/student/home", wantCode: http.StatusUnauthorized, wantKind: auth.KindNoToken},
		{name: "admin route, admin token", path: "/v1/admin/home", token: adminToken, wantCode: http.StatusOK},
		{name: "admin route, student token", path: "/v1/admin/home", token: studentToken, wantCode: http.StatusForbidden, wantKind: auth.KindInsufficientRole},
		{name: "admin route, no token", path: "/v1/admin/home", wantCode: http.StatusUnauthorized, wantKind: auth.KindNoToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.server.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantKind != "" {
				assert.Equal(t, string(tt.wantKind), decodeBody(t, rec)["code"])
			}
		})
	}

	t.Run("browser navigations are redirected to login", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/student/home")
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://localhost:3000/login?next=%2Fv1%2Fstudent%2Fhome", rec.Header().Get("Location"))
	})

	t.Run("API clients get JSON even on invalid tokens", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/student/home", "not.a.token")
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(auth.KindInvalidToken), decodeBody(t, rec)["code"])
	})
}
