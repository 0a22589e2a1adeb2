// Package auth 用户认证：JWT 令牌管理、密码哈希、HTTP 中间件
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"memoria/internal/config"
)

// contextKey context 键类型
type contextKey string

const ctxKeyAuthUser contextKey = "auth_user"

// 令牌类型
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
	TokenReset   = "reset"
)

// adminSubjectPrefix 白名单管理员没有用户记录，令牌 subject 使用该前缀加邮箱
const adminSubjectPrefix = "admin:"

// AuthUser 从 JWT 解析出的用户信息
type AuthUser struct {
	ID    string
	Email string
	Role  string
}

// IsAdmin 是否为管理员
func (u *AuthUser) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// RoleAdmin 管理员角色常量（避免 model 包循环引用）
const RoleAdmin = "admin"

// Config 认证配置
type Config struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	Admins          []config.AdminCredential
	PublicURL       string // 重置密码链接的前缀
}

// ConfigFrom 从应用配置构建认证配置
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		JWTSecret:       cfg.Auth.JWTSecret,
		AccessTokenTTL:  cfg.Auth.AccessTTL(),
		RefreshTokenTTL: cfg.Auth.RefreshTTL(),
		ResetTokenTTL:   time.Hour,
		Admins:          cfg.Auth.Admins,
		PublicURL:       strings.TrimRight(cfg.APIServer.PublicURL, "/"),
	}
}

// Enabled 是否启用令牌认证
func (c Config) Enabled() bool {
	return c.JWTSecret != ""
}

// MatchAdmin 与白名单比对，逐项做常量时间比较
func (c Config) MatchAdmin(email, password string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	matched := 0
	for _, a := range c.Admins {
		e := subtle.ConstantTimeCompare([]byte(a.Email), []byte(email))
		p := subtle.ConstantTimeCompare([]byte(a.Password), []byte(password))
		matched |= e & p
	}
	return matched == 1
}

// IsAdminEmail 邮箱是否仍在白名单中
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(email)
	for _, a := range c.Admins {
		if a.Email == email {
			return true
		}
	}
	return false
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// passwordFingerprint 重置令牌绑定当前密码哈希，密码修改后旧令牌失效
func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	Type        string `json:"type,omitempty"` // access / refresh / reset
	Fingerprint string `json:"fp,omitempty"`
}

func sign(cfg Config, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// GenerateAccessToken 生成访问令牌
func GenerateAccessToken(cfg Config, userID, email, role string) (string, error) {
	return sign(cfg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Email:            email,
		Role:             role,
		Type:             TokenAccess,
	}, cfg.AccessTokenTTL)
}

// GenerateRefreshToken 生成刷新令牌
func GenerateRefreshToken(cfg Config, userID string) (string, error) {
	return sign(cfg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Type:             TokenRefresh,
	}, cfg.RefreshTokenTTL)
}

// GenerateResetToken 生成找回密码令牌
func GenerateResetToken(cfg Config, userID, passwordHash string) (string, error) {
	return sign(cfg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Type:             TokenReset,
		Fingerprint:      passwordFingerprint(passwordHash),
	}, cfg.ResetTokenTTL)
}

// ParseToken 解析并验证 JWT
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithAuthUser 将认证用户信息注入 context
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, ctxKeyAuthUser, user)
}

// GetAuthUser 从 context 获取认证用户
func GetAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(ctxKeyAuthUser).(*AuthUser)
	return user
}

// Actor 审计日志中的操作者，未认证时使用 fallback
func Actor(ctx context.Context, fallback string) string {
	if u := GetAuthUser(ctx); u != nil && u.Email != "" {
		return u.Email
	}
	if fallback != "" {
		return fallback
	}
	return "system"
}
