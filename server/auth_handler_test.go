package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// mailLink extracts uidb64 and token from the last two path parts of a link.
func mailLink(t *testing.T, link string) (uidb64, token string) {
	t.Helper()
	parts := strings.Split(strings.TrimSuffix(link, "/"), "/")
	if len(parts) < 2 {
		t.Fatalf("unexpected link %q", link)
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func TestRegisterActivateLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/api/register/", map[string]string{
		"email":              "new@example.com",
		"password":           "hunter22",
		"confirmed_password": "hunter22",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body)
	}

	mail := env.mailer.last(t)
	if mail.To != "new@example.com" || !strings.Contains(mail.Link, "/activate/") {
		t.Fatalf("unexpected activation mail %+v", mail)
	}

	// 未激活前不能登录
	rec = postJSON(t, env.router, "/api/login/", map[string]string{
		"email": "new@example.com", "password": "hunter22",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login before activation = %d, want 401", rec.Code)
	}

	uidb64, token := mailLink(t, mail.Link)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/activate/%s/%s/", uidb64, token), nil)
	activateRec := httptest.NewRecorder()
	env.router.ServeHTTP(activateRec, req)
	if activateRec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body %s", activateRec.Code, activateRec.Body)
	}

	rec = postJSON(t, env.router, "/api/login/", map[string]string{
		"email": "new@example.com", "password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login after activation = %d, body %s", rec.Code, rec.Body)
	}

	var loginResp struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &loginResp); err != nil {
		t.Fatal(err)
	}
	if loginResp.Token == "" || loginResp.RefreshToken == "" {
		t.Errorf("login response missing tokens: %s", rec.Body)
	}
}

func TestActivateWithTamperedToken(t *testing.T) {
	env := newTestEnv(t)

	postJSON(t, env.router, "/api/register/", map[string]string{
		"email": "x@example.com", "password": "pw123456", "confirmed_password": "pw123456",
	})
	uidb64, _ := mailLink(t, env.mailer.last(t).Link)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/activate/%s/123-deadbeef/", uidb64), nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("tampered activation = %d, want 400", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/api/register/", map[string]string{
		"email": "a@b.c", "password": "one", "confirmed_password": "two",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("password mismatch = %d, want 400", rec.Code)
	}

	body := map[string]string{"email": "dup@example.com", "password": "pw123456", "confirmed_password": "pw123456"}
	if rec := postJSON(t, env.router, "/api/register/", body); rec.Code != http.StatusCreated {
		t.Fatalf("first register = %d", rec.Code)
	}
	if rec := postJSON(t, env.router, "/api/register/", body); rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate register = %d, want 400", rec.Code)
	}
}

func registerAndLogin(t *testing.T, env *testEnv, email, password string) (access, refresh string) {
	t.Helper()

	rec := postJSON(t, env.router, "/api/register/", map[string]string{
		"email": email, "password": password, "confirmed_password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", rec.Code, rec.Body)
	}
	uidb64, token := mailLink(t, env.mailer.last(t).Link)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/activate/%s/%s/", uidb64, token), nil)
	activateRec := httptest.NewRecorder()
	env.router.ServeHTTP(activateRec, req)
	if activateRec.Code != http.StatusOK {
		t.Fatalf("activate = %d", activateRec.Code)
	}

	rec = postJSON(t, env.router, "/api/login/", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token, resp.RefreshToken
}

func TestTokenRefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	access, refresh := registerAndLogin(t, env, "r@example.com", "pw123456")

	// access token不能用于刷新
	if rec := postJSON(t, env.router, "/api/token/refresh/", map[string]string{"refreshToken": access}); rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh with access token = %d, want 401", rec.Code)
	}

	rec := postJSON(t, env.router, "/api/token/refresh/", map[string]string{"refreshToken": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body %s", rec.Code, rec.Body)
	}

	if rec := postJSON(t, env.router, "/api/logout/", map[string]string{"refreshToken": refresh}); rec.Code != http.StatusOK {
		t.Fatalf("logout = %d", rec.Code)
	}

	// 注销后refresh token被拉黑
	if rec := postJSON(t, env.router, "/api/token/refresh/", map[string]string{"refreshToken": refresh}); rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout = %d, want 401", rec.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	registerAndLogin(t, env, "reset@example.com", "oldpassword")

	// 不存在的邮箱同样返回200
	if rec := postJSON(t, env.router, "/api/password_reset/", map[string]string{"email": "ghost@example.com"}); rec.Code != http.StatusOK {
		t.Errorf("reset for unknown email = %d, want 200", rec.Code)
	}
	mailCount := len(env.mailer.sent)

	if rec := postJSON(t, env.router, "/api/password_reset/", map[string]string{"email": "reset@example.com"}); rec.Code != http.StatusOK {
		t.Fatalf("reset = %d", rec.Code)
	}
	if len(env.mailer.sent) != mailCount+1 {
		t.Fatal("reset mail was not sent")
	}

	uidb64, token := mailLink(t, env.mailer.last(t).Link)
	rec := postJSON(t, env.router, fmt.Sprintf("/api/password_confirm/%s/%s/", uidb64, token), map[string]string{
		"new_password": "newpassword", "confirmed_password": "newpassword",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm = %d, body %s", rec.Code, rec.Body)
	}

	// 旧密码失效，新密码可登录，旧重置口令不能复用
	if rec := postJSON(t, env.router, "/api/login/", map[string]string{"email": "reset@example.com", "password": "oldpassword"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("login with old password = %d, want 401", rec.Code)
	}
	if rec := postJSON(t, env.router, "/api/login/", map[string]string{"email": "reset@example.com", "password": "newpassword"}); rec.Code != http.StatusOK {
		t.Errorf("login with new password = %d, want 200", rec.Code)
	}
	rec = postJSON(t, env.router, fmt.Sprintf("/api/password_confirm/%s/%s/", uidb64, token), map[string]string{
		"new_password": "another", "confirmed_password": "another",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reuse of reset token = %d, want 400", rec.Code)
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/video/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rec.Code)
		}
	}

	// refresh token不能当access token用
	_, refresh := registerAndLogin(t, env, "mw@example.com", "pw123456")
	req := httptest.NewRequest(http.MethodGet, "/api/video/", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh as access = %d, want 401", rec.Code)
	}
}
