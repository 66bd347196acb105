package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"Videoflix/core/auth"
	"Videoflix/logger"
	"Videoflix/model"
	"Videoflix/repository"

	"github.com/gorilla/mux"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmedPassword string `json:"confirmed_password"`
}

// RegisterHandler handles user registration and sends the activation mail.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if req.Password != req.ConfirmedPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	// 新账号未激活，点开邮件里的链接后才能登录
	user := &model.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		IsActive:     false,
	}

	if err := h.userRepo.CreateUser(user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			logger.Warn("[Register] 邮箱已存在", logger.String("email", req.Email))
			writeError(w, http.StatusBadRequest, "Email already exists")
			return
		}
		logger.Error("[Register] 创建用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.sendAccountMail(user, model.EmailActivation)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user": map[string]interface{}{"id": user.ID, "email": user.Email},
	})
}

// ActivateAccountHandler verifies the activation link and enables the account.
func (h *APIHandler) ActivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	user := h.userFromUID(vars["uidb64"])
	if user == nil || !h.tokens.VerifyActivationToken(user, vars["token"]) {
		writeError(w, http.StatusBadRequest, "Activation link is invalid or expired")
		return
	}

	if err := h.userRepo.ActivateUser(user.ID); err != nil {
		logger.Error("[Activate] 激活账号失败", logger.Int64("userId", user.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to activate account")
		return
	}

	logger.Info("[Activate] 账号已激活", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account successfully activated."})
}

// LoginHandler authenticates an active user and issues a token pair.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.userRepo.GetUserByEmail(req.Email)
	if err != nil {
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("[Login] 认证失败", logger.String("email", req.Email))
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "Account is not activated")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	refreshToken, err := h.jwt.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("[Login] 登录成功", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":        accessToken,
		"refreshToken": refreshToken,
		"user":         map[string]interface{}{"id": user.ID, "email": user.Email},
	})
}

// TokenRefreshHandler exchanges a valid refresh token for a new access token.
func (h *APIHandler) TokenRefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	claims, err := h.jwt.ParseToken(req.RefreshToken)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	if h.isBlacklisted(r.Context(), req.RefreshToken) {
		writeError(w, http.StatusUnauthorized, "Refresh token has been revoked")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(claims.UserID, claims.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": accessToken})
}

// LogoutHandler revokes a refresh token until its natural expiry.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	claims, err := h.jwt.ParseToken(req.RefreshToken)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh {
		// 无效的token无需拉黑
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		if err := h.store.Set(r.Context(), blacklistKey(req.RefreshToken), []byte("1"), ttl); err != nil {
			logger.Warn("[Logout] 拉黑refresh token失败", logger.ErrorField(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

// PasswordResetHandler mails a reset link. Always answers 200 so the endpoint
// cannot be used to probe which emails are registered.
func (h *APIHandler) PasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	user, err := h.userRepo.GetUserByEmail(req.Email)
	if err != nil {
		logger.Error("[PasswordReset] 查询用户失败", logger.ErrorField(err))
	}
	if user != nil {
		h.sendAccountMail(user, model.EmailPasswordReset)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"detail": "If the email exists, a reset link has been sent.",
	})
}

// PasswordConfirmHandler verifies the reset link and sets the new password.
func (h *APIHandler) PasswordConfirmHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		NewPassword       string `json:"new_password"`
		ConfirmedPassword string `json:"confirmed_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "New password is required")
		return
	}
	if req.NewPassword != req.ConfirmedPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	user := h.userFromUID(vars["uidb64"])
	if user == nil || !h.tokens.VerifyResetToken(user, vars["token"]) {
		writeError(w, http.StatusBadRequest, "Reset link is invalid or expired")
		return
	}

	hashedPassword, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}
	if err := h.userRepo.UpdatePassword(user.ID, hashedPassword); err != nil {
		logger.Error("[PasswordConfirm] 更新密码失败", logger.Int64("userId", user.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	logger.Info("[PasswordConfirm] 密码已重置", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Your password has been successfully reset."})
}

// AuthMiddleware checks for a valid access token and stores the user in context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := h.jwt.ParseToken(parts[1])
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// sendAccountMail 根据邮件类型签发对应口令并发送链接
func (h *APIHandler) sendAccountMail(user *model.User, kind model.EmailKind) {
	uid := auth.EncodeUID(user.ID)

	var link string
	switch kind {
	case model.EmailActivation:
		link = fmt.Sprintf("%s/activate/%s/%s", h.cfg.FrontendURL, uid, h.tokens.ActivationToken(user))
	case model.EmailPasswordReset:
		link = fmt.Sprintf("%s/password_confirm/%s/%s", h.cfg.FrontendURL, uid, h.tokens.ResetToken(user))
	}

	msg := model.EmailMessage{Kind: kind, To: user.Email, Link: link}
	if err := h.mailer.Send(msg); err != nil {
		// 邮件失败不影响主流程
		logger.Error("发送账号邮件失败",
			logger.String("to", user.Email),
			logger.ErrorField(err))
	}
}

func (h *APIHandler) userFromUID(uidb64 string) *model.User {
	id, err := auth.DecodeUID(uidb64)
	if err != nil {
		return nil
	}
	user, err := h.userRepo.GetUserByID(id)
	if err != nil {
		logger.Error("查询用户失败", logger.Int64("userId", id), logger.ErrorField(err))
		return nil
	}
	return user
}

func (h *APIHandler) isBlacklisted(ctx context.Context, token string) bool {
	data, err := h.store.Get(ctx, blacklistKey(token))
	if err != nil {
		logger.Warn("检查token黑名单失败", logger.ErrorField(err))
		return false
	}
	return data != nil
}

func blacklistKey(token string) string {
	return "jwt_blacklist_" + token
}
