package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/config"
	"memoria/internal/shared/mailer"
	"memoria/internal/testutil"
)

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Fields  []string        `json:"fields"`
}

func testConfig() Config {
	return Config{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		ResetTokenTTL:   time.Hour,
		Admins:          []config.AdminCredential{{Email: "admin@memoria.test", Password: "admin-pass"}},
		PublicURL:       "http://memoria.test",
	}
}

type testEnv struct {
	router http.Handler
	mail   *mailer.Console
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	store := testutil.NewStore(t)
	mail := mailer.NewConsole("Memoria", "no-reply@memoria.test")
	mux := http.NewServeMux()
	NewHandler(store, mail, cfg).RegisterRoutes(mux)
	return &testEnv{router: Middleware(cfg)(mux), mail: mail}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) (int, testResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func decodeAuth(t *testing.T, raw json.RawMessage) authResponse {
	t.Helper()
	var out authResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func signup(t *testing.T, e *testEnv, email, password string) authResponse {
	t.Helper()
	code, resp := e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionSignup, "email": email, "password": password,
		"fullName": "Juan Dela Cruz", "schoolId": "2025-0001",
	}, "")
	require.Equal(t, http.StatusOK, code, resp.Error)
	return decodeAuth(t, resp.Data)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("wrong horse", hash))
}

func TestTokens(t *testing.T) {
	cfg := testConfig()

	access, err := GenerateAccessToken(cfg, "usr-1", "a@b.test", "student")
	require.NoError(t, err)
	claims, err := ParseToken(cfg, access)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.Subject)
	assert.Equal(t, TokenAccess, claims.Type)
	assert.Equal(t, "student", claims.Role)

	refresh, err := GenerateRefreshToken(cfg, "usr-1")
	require.NoError(t, err)
	claims, err = ParseToken(cfg, refresh)
	require.NoError(t, err)
	assert.Equal(t, TokenRefresh, claims.Type)

	other := cfg
	other.JWTSecret = "other-secret"
	_, err = ParseToken(other, access)
	assert.Error(t, err)

	expired := cfg
	expired.AccessTokenTTL = -time.Minute
	old, err := GenerateAccessToken(expired, "usr-1", "a@b.test", "student")
	require.NoError(t, err)
	_, err = ParseToken(cfg, old)
	assert.Error(t, err)
}

func TestMatchAdmin(t *testing.T) {
	cfg := testConfig()
	assert.True(t, cfg.MatchAdmin("admin@memoria.test", "admin-pass"))
	assert.True(t, cfg.MatchAdmin(" Admin@Memoria.test ", "admin-pass"))
	assert.False(t, cfg.MatchAdmin("admin@memoria.test", "admin-pass "))
	assert.False(t, cfg.MatchAdmin("someone@memoria.test", "admin-pass"))
	assert.False(t, Config{}.MatchAdmin("", ""))
}

func TestAuth_SignupAndLogin(t *testing.T) {
	e := newTestEnv(t, testConfig())

	created := signup(t, e, "Juan@School.edu", "password123")
	assert.Equal(t, "juan@school.edu", created.User.Email)
	assert.Equal(t, "student", created.Role)
	require.NotNil(t, created.Tokens)
	assert.NotEmpty(t, created.Tokens.AccessToken)

	t.Run("重复邮箱", func(t *testing.T) {
		code, resp := e.do(t, "POST", "/api/auth", map[string]string{
			"action": ActionSignup, "email": "juan@school.edu", "password": "password123", "fullName": "Other",
		}, "")
		assert.Equal(t, http.StatusConflict, code)
		assert.False(t, resp.Success)
	})

	t.Run("邮箱登录", func(t *testing.T) {
		code, resp := e.do(t, "POST", "/api/auth", map[string]string{
			"action": ActionLogin, "email": "juan@school.edu", "password": "password123",
		}, "")
		require.Equal(t, http.StatusOK, code, resp.Error)
		got := decodeAuth(t, resp.Data)
		assert.Equal(t, created.User.ID, got.User.ID)
		assert.NotNil(t, got.Tokens)
	})

	t.Run("学号登录", func(t *testing.T) {
		code, _ := e.do(t, "POST", "/api/auth", map[string]string{
			"action": ActionLogin, "schoolId": "2025-0001", "password": "password123",
		}, "")
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("密码错误", func(t *testing.T) {
		code, resp := e.do(t, "POST", "/api/auth", map[string]string{
			"action": ActionLogin, "email": "juan@school.edu", "password": "nope",
		}, "")
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "Invalid credentials", resp.Error)
	})

	t.Run("缺少密码", func(t *testing.T) {
		code, resp := e.do(t, "POST", "/api/auth", map[string]string{
			"action": ActionLogin, "email": "juan@school.edu",
		}, "")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, []string{"password"}, resp.Fields)
	})
}

func TestAuth_SignupValidation(t *testing.T) {
	e := newTestEnv(t, testConfig())

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"邮箱格式错误", map[string]string{"email": "juan@", "password": "password123", "fullName": "Juan"}, "email"},
		{"密码过短", map[string]string{"email": "a@school.edu", "password": "short", "fullName": "Juan"}, "password"},
		{"姓名为空", map[string]string{"email": "a@school.edu", "password": "password123", "fullName": "  "}, "fullName"},
		{"角色无效", map[string]string{"email": "a@school.edu", "password": "password123", "fullName": "Juan", "role": "admin"}, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.body["action"] = ActionSignup
			code, resp := e.do(t, "POST", "/api/auth", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}

	code, _ := e.do(t, "POST", "/api/auth", map[string]string{"action": "logout"}, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuth_AdminLogin(t *testing.T) {
	e := newTestEnv(t, testConfig())

	code, resp := e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionLogin, "email": "admin@memoria.test", "password": "admin-pass",
	}, "")
	require.Equal(t, http.StatusOK, code, resp.Error)
	got := decodeAuth(t, resp.Data)
	assert.Equal(t, RoleAdmin, got.Role)
	require.NotNil(t, got.Tokens)

	// 管理员邮箱不能注册为普通用户
	code, _ = e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionSignup, "email": "admin@memoria.test", "password": "password123", "fullName": "Fake",
	}, "")
	assert.Equal(t, http.StatusConflict, code)

	// 管理员刷新令牌
	code, resp = e.do(t, "POST", "/api/auth/refresh", map[string]string{"refreshToken": got.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = e.do(t, "GET", "/api/auth/me", nil, got.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, RoleAdmin, decodeAuth(t, resp.Data).Role)
}

func TestAuth_LoginWithoutJWT(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	e := newTestEnv(t, cfg)

	signup(t, e, "maria@school.edu", "password123")
	code, resp := e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionLogin, "email": "maria@school.edu", "password": "password123",
	}, "")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, decodeAuth(t, resp.Data).Tokens)
}

func TestAuth_ForgotAndResetPassword(t *testing.T) {
	e := newTestEnv(t, testConfig())
	signup(t, e, "maria@school.edu", "password123")

	// 不存在的邮箱同样返回成功，且不发送邮件
	code, resp := e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionForgotPassword, "email": "nobody@school.edu",
	}, "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Empty(t, e.mail.Sent())

	code, _ = e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionForgotPassword, "email": "maria@school.edu",
	}, "")
	require.Equal(t, http.StatusOK, code)
	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "maria@school.edu", sent[0].To)

	text := sent[0].Text
	start := strings.Index(text, "token=")
	require.GreaterOrEqual(t, start, 0)
	token := text[start+len("token="):]
	token = token[:strings.Index(token, "\r\n")]

	code, resp = e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionResetPassword, "token": token, "password": "new-password",
	}, "")
	require.Equal(t, http.StatusOK, code, resp.Error)

	// 令牌只能使用一次
	code, resp = e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionResetPassword, "token": token, "password": "another-password",
	}, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid or expired reset token", resp.Error)

	code, _ = e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionLogin, "email": "maria@school.edu", "password": "new-password",
	}, "")
	assert.Equal(t, http.StatusOK, code)

	// 访问令牌不能用于重置密码
	created := signup(t, e, "pedro@school.edu", "password123")
	code, _ = e.do(t, "POST", "/api/auth", map[string]string{
		"action": ActionResetPassword, "token": created.Tokens.AccessToken, "password": "new-password",
	}, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuth_RefreshAndMe(t *testing.T) {
	e := newTestEnv(t, testConfig())
	created := signup(t, e, "jose@school.edu", "password123")

	code, resp := e.do(t, "POST", "/api/auth/refresh", map[string]string{"refreshToken": created.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, code, resp.Error)
	var tokens Tokens
	require.NoError(t, json.Unmarshal(resp.Data, &tokens))
	assert.NotEmpty(t, tokens.AccessToken)

	// 访问令牌不能用于刷新
	code, _ = e.do(t, "POST", "/api/auth/refresh", map[string]string{"refreshToken": created.Tokens.AccessToken}, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp = e.do(t, "GET", "/api/auth/me", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "jose@school.edu", decodeAuth(t, resp.Data).User.Email)

	code, _ = e.do(t, "GET", "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}
