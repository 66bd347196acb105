package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"Videoflix/model"
)

// TokenManager 生成一次性的激活/重置口令。
//
// 激活口令把 is_active 签进摘要，账号激活后旧口令立即失效；
// 重置口令把密码哈希签进摘要，密码一旦修改旧口令同样失效。
// 口令格式: "{unix到期时间}-{hex摘要}"，链接里配合 EncodeUID 使用。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a TokenManager with the given lifetime.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// ActivationToken issues an account activation token for the user.
func (m *TokenManager) ActivationToken(user *model.User) string {
	expires := time.Now().Add(m.ttl).Unix()
	return fmt.Sprintf("%d-%s", expires, m.sign(activationPayload(user, expires)))
}

// VerifyActivationToken checks an activation token against the user's current state.
func (m *TokenManager) VerifyActivationToken(user *model.User, token string) bool {
	expires, sig, ok := splitToken(token)
	if !ok || time.Now().Unix() > expires {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(m.sign(activationPayload(user, expires))))
}

// ResetToken issues a password reset token for the user.
func (m *TokenManager) ResetToken(user *model.User) string {
	expires := time.Now().Add(m.ttl).Unix()
	return fmt.Sprintf("%d-%s", expires, m.sign(resetPayload(user, expires)))
}

// VerifyResetToken checks a reset token against the user's current password hash.
func (m *TokenManager) VerifyResetToken(user *model.User, token string) bool {
	expires, sig, ok := splitToken(token)
	if !ok || time.Now().Unix() > expires {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(m.sign(resetPayload(user, expires))))
}

func activationPayload(user *model.User, expires int64) string {
	return fmt.Sprintf("activation:%d:%t:%d", user.ID, user.IsActive, expires)
}

func resetPayload(user *model.User, expires int64) string {
	return fmt.Sprintf("reset:%d:%s:%d", user.ID, user.PasswordHash, expires)
}

func (m *TokenManager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func splitToken(token string) (expires int64, sig string, ok bool) {
	parts := strings.SplitN(token, "-", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", false
	}
	expires, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return expires, parts[1], true
}

// EncodeUID encodes a user id for use in activation/reset URLs.
func EncodeUID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeUID decodes a user id from an activation/reset URL.
func DecodeUID(encoded string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return 0, fmt.Errorf("invalid uid encoding: %w", err)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid uid: %w", err)
	}
	return id, nil
}
