package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/mailer"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// 登录动作
const (
	ActionLogin          = "login"
	ActionSignup         = "signup"
	ActionForgotPassword = "forgot-password"
	ActionResetPassword  = "reset-password"
)

// Handler 认证 HTTP 处理器
type Handler struct {
	store  storage.UserStore
	mailer mailer.Mailer
	cfg    Config
}

// NewHandler 创建认证处理器，m 为 nil 时找回密码只记录日志
func NewHandler(store storage.UserStore, m mailer.Mailer, cfg Config) *Handler {
	return &Handler{store: store, mailer: m, cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth", h.Auth)
	mux.HandleFunc("POST /api/auth/refresh", h.Refresh)
	mux.HandleFunc("GET /api/auth/me", h.Me)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type authRequest struct {
	Action   string `json:"action"`
	Email    string `json:"email"`
	SchoolID string `json:"schoolId"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"notblank"`
	SchoolID string `json:"schoolId" validate:"omitempty,max=32"`
	Role     string `json:"role" validate:"oneof=student faculty staff alumni utility advisory"`
}

type resetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Tokens 签发的令牌
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type authResponse struct {
	User   *model.User `json:"user"`
	Role   string      `json:"role"`
	Tokens *Tokens     `json:"tokens,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent."

// ============================================================================
// Handlers
// ============================================================================

// Auth 按 action 分派：login / signup / forgot-password / reset-password
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Action {
	case ActionLogin:
		h.login(w, r, req)
	case ActionSignup:
		h.signup(w, r, req)
	case ActionForgotPassword:
		h.forgotPassword(w, r, req)
	case ActionResetPassword:
		h.resetPassword(w, r, req)
	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, req authRequest) {
	identifier := strings.TrimSpace(req.Email)
	if identifier == "" {
		identifier = strings.TrimSpace(req.SchoolID)
	}
	if identifier == "" || req.Password == "" {
		var fields []string
		if identifier == "" {
			fields = append(fields, "email")
		}
		if req.Password == "" {
			fields = append(fields, "password")
		}
		writeFieldError(w, "Email or school ID and password are required", fields)
		return
	}

	// 白名单管理员
	if h.cfg.MatchAdmin(identifier, req.Password) {
		email := strings.ToLower(identifier)
		user := adminUser(email)
		resp := authResponse{User: user, Role: RoleAdmin}
		if h.cfg.Enabled() {
			tokens, err := h.issueTokens(adminSubjectPrefix+email, email, RoleAdmin)
			if err != nil {
				log.Printf("[auth.login.failed] email=%s error=%v", email, err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			resp.Tokens = tokens
		}
		log.Printf("[auth.login.success] email=%s role=admin", email)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	user, err := h.lookupUser(r.Context(), identifier)
	if err != nil {
		log.Printf("[auth.login.failed] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	resp := authResponse{User: user, Role: string(user.Role)}
	if h.cfg.Enabled() {
		tokens, err := h.issueTokens(user.ID, user.Email, string(user.Role))
		if err != nil {
			log.Printf("[auth.login.failed] user=%s error=%v", user.ID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		resp.Tokens = tokens
	}
	log.Printf("[auth.login.success] user=%s role=%s", user.ID, user.Role)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request, req authRequest) {
	in := signupRequest{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: req.Password,
		FullName: strings.TrimSpace(req.FullName),
		SchoolID: strings.TrimSpace(req.SchoolID),
		Role:     req.Role,
	}
	if in.Role == "" {
		in.Role = string(model.UserRoleStudent)
	}
	if err := validation.Struct(in); err != nil {
		writeFieldError(w, validation.Message(err), validation.Fields(err))
		return
	}
	if h.cfg.IsAdminEmail(in.Email) {
		writeError(w, http.StatusConflict, "An account with this email already exists")
		return
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		log.Printf("[auth.signup.failed] hash error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           generateID("usr"),
		Email:        in.Email,
		SchoolID:     in.SchoolID,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         model.UserRole(in.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		log.Printf("[auth.signup.failed] email=%s error=%v", user.Email, err)
		writeError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	resp := authResponse{User: user, Role: string(user.Role)}
	if h.cfg.Enabled() {
		tokens, err := h.issueTokens(user.ID, user.Email, string(user.Role))
		if err != nil {
			log.Printf("[auth.signup.failed] user=%s error=%v", user.ID, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		resp.Tokens = tokens
	}
	log.Printf("[auth.signup.success] user=%s role=%s", user.ID, user.Role)
	writeJSON(w, http.StatusOK, resp)
}

// forgotPassword 无论邮箱是否存在都返回成功
func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request, req authRequest) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeFieldError(w, "Email is required", []string{"email"})
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[auth.forgot.failed] lookup error: %v", err)
	}
	if user != nil {
		h.sendResetMail(r.Context(), user)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

func (h *Handler) sendResetMail(ctx context.Context, user *model.User) {
	if !h.cfg.Enabled() {
		log.Printf("[auth.forgot.skipped] user=%s reason=jwt_disabled", user.ID)
		return
	}
	if h.mailer == nil {
		log.Printf("[auth.forgot.skipped] user=%s reason=no_mailer", user.ID)
		return
	}
	token, err := GenerateResetToken(h.cfg, user.ID, user.PasswordHash)
	if err != nil {
		log.Printf("[auth.forgot.failed] user=%s error=%v", user.ID, err)
		return
	}
	link := h.cfg.PublicURL + "/reset-password?token=" + url.QueryEscape(token)
	if err := h.mailer.Send(ctx, mailer.PasswordResetMessage(user.Email, link)); err != nil {
		log.Printf("[auth.forgot.failed] user=%s send error=%v", user.ID, err)
		return
	}
	log.Printf("[auth.forgot.sent] user=%s", user.ID)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request, req authRequest) {
	in := resetRequest{Token: strings.TrimSpace(req.Token), Password: req.Password}
	if err := validation.Struct(in); err != nil {
		writeFieldError(w, validation.Message(err), validation.Fields(err))
		return
	}
	if !h.cfg.Enabled() {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	claims, err := ParseToken(h.cfg, in.Token)
	if err != nil || claims.Type != TokenReset {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	user, err := h.store.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		log.Printf("[auth.reset.failed] lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	// 令牌绑定签发时的密码哈希，使用一次后即失效
	if user == nil || claims.Fingerprint != passwordFingerprint(user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.store.UpdateUserPassword(r.Context(), user.ID, hash); err != nil {
		log.Printf("[auth.reset.failed] user=%s error=%v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}
	log.Printf("[auth.reset.success] user=%s", user.ID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset"})
}

// Refresh 刷新访问令牌
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Enabled() {
		writeError(w, http.StatusBadRequest, "Token authentication is disabled")
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeFieldError(w, "refreshToken is required", []string{"refreshToken"})
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	if err != nil || claims.Type != TokenRefresh {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	var subject, email, role string
	if strings.HasPrefix(claims.Subject, adminSubjectPrefix) {
		email = strings.TrimPrefix(claims.Subject, adminSubjectPrefix)
		if !h.cfg.IsAdminEmail(email) {
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		subject, role = claims.Subject, RoleAdmin
	} else {
		user, err := h.store.GetUserByID(r.Context(), claims.Subject)
		if err != nil || user == nil {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}
		subject, email, role = user.ID, user.Email, string(user.Role)
	}

	access, err := GenerateAccessToken(h.cfg, subject, email, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, Tokens{
		AccessToken: access,
		ExpiresIn:   int64(h.cfg.AccessTokenTTL.Seconds()),
	})
}

// Me 获取当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if authUser.IsAdmin() && strings.HasPrefix(authUser.ID, adminSubjectPrefix) {
		writeJSON(w, http.StatusOK, authResponse{User: adminUser(authUser.Email), Role: RoleAdmin})
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Role: string(user.Role)})
}

// ============================================================================
// 工具函数
// ============================================================================

func (h *Handler) issueTokens(subject, email, role string) (*Tokens, error) {
	access, err := GenerateAccessToken(h.cfg, subject, email, role)
	if err != nil {
		return nil, err
	}
	refresh, err := GenerateRefreshToken(h.cfg, subject)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(h.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// lookupUser 含 @ 按邮箱查找，否则按学号查找
func (h *Handler) lookupUser(ctx context.Context, identifier string) (*model.User, error) {
	if strings.Contains(identifier, "@") {
		return h.store.GetUserByEmail(ctx, strings.ToLower(identifier))
	}
	return h.store.GetUserBySchoolID(ctx, identifier)
}

func adminUser(email string) *model.User {
	return &model.User{
		ID:       adminSubjectPrefix + email,
		Email:    email,
		FullName: "Administrator",
		Role:     model.UserRoleAdmin,
	}
}
