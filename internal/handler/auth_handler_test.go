package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tracko/tracko-web/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	getLoginURLFunc       func(state string) string
	handleCallbackFunc    func(ctx context.Context, code string) (*model.Session, error)
	logoutFunc            func(ctx context.Context, sessionID string) error
	getCurrentProfileFunc func(ctx context.Context, sessionID string) (*model.Profile, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFunc != nil {
		return m.getLoginURLFunc(state)
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFunc != nil {
		return m.handleCallbackFunc(ctx, code)
	}
	return &model.Session{ID: "sess-1", UID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentProfile(ctx context.Context, sessionID string) (*model.Profile, error) {
	if m.getCurrentProfileFunc != nil {
		return m.getCurrentProfileFunc(ctx, sessionID)
	}
	return model.NewProfile("user-1"), nil
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "https://tracko.example.com",
		CookieSecure:  true,
		SessionMaxAge: 3600,
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginRedirectsWithState(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}

	stateCookie := findCookie(rec.Result().Cookies(), oauthStateCookie)
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("state cookie should be set")
	}
	if !stateCookie.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}

	location := rec.Header().Get("Location")
	if location == "" {
		t.Fatal("Location header should be set")
	}
}

func TestCallbackEstablishesSession(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		handleCallbackFunc: func(ctx context.Context, code string) (*model.Session, error) {
			if code != "auth-code" {
				t.Errorf("code = %q, want auth-code", code)
			}
			return &model.Session{ID: "sess-9", UID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st-1"})
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307: %s", rec.Code, rec.Body.String())
	}

	sessCookie := findCookie(rec.Result().Cookies(), sessionCookieName)
	if sessCookie == nil || sessCookie.Value != "sess-9" {
		t.Fatal("session cookie should carry the session id")
	}
	if !sessCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if got := rec.Header().Get("Location"); got != "https://tracko.example.com" {
		t.Errorf("Location = %q, want base URL", got)
	}
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		handleCallbackFunc: func(ctx context.Context, code string) (*model.Session, error) {
			t.Error("HandleCallback should not be called on state mismatch")
			return nil, nil
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st-1"})
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCallbackServiceFailure(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		handleCallbackFunc: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, errors.New("exchange failed")
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st-1"})
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestLogoutClearsSessionCookie(t *testing.T) {
	var loggedOut string
	h := NewAuthHandler(&mockAuthService{
		logoutFunc: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if loggedOut != "sess-1" {
		t.Errorf("logged out session = %q, want sess-1", loggedOut)
	}
	sessCookie := findCookie(rec.Result().Cookies(), sessionCookieName)
	if sessCookie == nil || sessCookie.MaxAge != -1 {
		t.Error("session cookie should be cleared")
	}
}

func TestMeReturnsProfileSummary(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{
		getCurrentProfileFunc: func(ctx context.Context, sessionID string) (*model.Profile, error) {
			p := model.NewProfile("user-1")
			p.TotalTime = 30
			return p, nil
		},
	}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}
	if body["uid"] != "user-1" || body["totalTime"] != float64(30) {
		t.Errorf("body = %v, want uid and totalTime", body)
	}
}

func TestMeWithoutSession(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
