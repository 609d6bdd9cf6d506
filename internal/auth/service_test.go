package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tracko/tracko-web/internal/model"
)

// --- モック定義 ---

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

type mockIdentityRepo struct {
	findFn   func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
	createFn func(ctx context.Context, identity *model.Identity) error
	created  []*model.Identity
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findFn != nil {
		return m.findFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	m.created = append(m.created, identity)
	if m.createFn != nil {
		return m.createFn(ctx, identity)
	}
	return nil
}

type mockProfileRepo struct {
	ensureFn    func(ctx context.Context, uid string) error
	findFn      func(ctx context.Context, uid string) (*model.Profile, error)
	incrementFn func(ctx context.Context, uid, category string, minutes int64) error
	ensured     []string
}

func (m *mockProfileRepo) Ensure(ctx context.Context, uid string) error {
	m.ensured = append(m.ensured, uid)
	if m.ensureFn != nil {
		return m.ensureFn(ctx, uid)
	}
	return nil
}

func (m *mockProfileRepo) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	if m.findFn != nil {
		return m.findFn(ctx, uid)
	}
	return nil, nil
}

func (m *mockProfileRepo) IncrementCategory(ctx context.Context, uid, category string, minutes int64) error {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, uid, category, minutes)
	}
	return nil
}

type mockSessionRepo struct {
	createFn      func(ctx context.Context, session *model.Session) error
	findFn        func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn  func(ctx context.Context, id string) error
	deleteByUIDFn func(ctx context.Context, uid string) error
	created       []*model.Session
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	m.created = append(m.created, session)
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findFn != nil {
		return m.findFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUID(ctx context.Context, uid string) error {
	if m.deleteByUIDFn != nil {
		return m.deleteByUIDFn(ctx, uid)
	}
	return nil
}

// containsStr は部分文字列の存在を検証するヘルパー。
func containsStr(s, sub string) bool {
	return strings.Contains(s, sub)
}

// --- テスト ---

func TestHandleCallback_NewUser_CreatesProfileAndIdentity(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "google-sub-1",
				Email:          "user@example.com",
				Name:           "Test User",
				Provider:       "google",
			}, nil
		},
	}
	identRepo := &mockIdentityRepo{}
	profileRepo := &mockProfileRepo{}
	sessionRepo := &mockSessionRepo{}

	svc := NewService(oauth, identRepo, profileRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	session, err := svc.HandleCallback(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if session == nil {
		t.Fatal("expected non-nil session")
	}

	if len(profileRepo.ensured) != 1 {
		t.Fatalf("Ensure called %d times, want 1", len(profileRepo.ensured))
	}
	if len(identRepo.created) != 1 {
		t.Fatalf("identity created %d times, want 1", len(identRepo.created))
	}

	identity := identRepo.created[0]
	if identity.UID != profileRepo.ensured[0] {
		t.Errorf("identity.UID = %q, should match ensured profile uid %q", identity.UID, profileRepo.ensured[0])
	}
	if identity.ProviderUserID != "google-sub-1" {
		t.Errorf("ProviderUserID = %q", identity.ProviderUserID)
	}
	if session.UID != identity.UID {
		t.Errorf("session.UID = %q, want %q", session.UID, identity.UID)
	}
}

func TestHandleCallback_ExistingUser_EnsuresProfileAndReusesUID(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: "google-sub-1", Provider: "google"}, nil
		},
	}
	identRepo := &mockIdentityRepo{
		findFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "ident-1", UID: "u1", Provider: provider, ProviderUserID: providerUserID}, nil
		},
	}
	profileRepo := &mockProfileRepo{}
	sessionRepo := &mockSessionRepo{}

	svc := NewService(oauth, identRepo, profileRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	session, err := svc.HandleCallback(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if session.UID != "u1" {
		t.Errorf("session.UID = %q, want u1", session.UID)
	}
	// 既存ユーザーでも再サインイン時にプロフィールの存在を保証すること
	if len(profileRepo.ensured) != 1 || profileRepo.ensured[0] != "u1" {
		t.Errorf("ensured = %v, want [u1]", profileRepo.ensured)
	}
	// 既存identityは再作成しないこと
	if len(identRepo.created) != 0 {
		t.Errorf("identity should not be re-created, got %d", len(identRepo.created))
	}
}

func TestHandleCallback_ExchangeFails(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return nil, errors.New("invalid code")
		},
	}
	svc := NewService(oauth, &mockIdentityRepo{}, &mockProfileRepo{}, &mockSessionRepo{}, ServiceConfig{})

	_, err := svc.HandleCallback(context.Background(), "bad-code")
	if err == nil {
		t.Fatal("expected error when code exchange fails")
	}
}

func TestHandleCallback_ProfileEnsureFails(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: "google-sub-1", Provider: "google"}, nil
		},
	}
	profileRepo := &mockProfileRepo{
		ensureFn: func(ctx context.Context, uid string) error {
			return errors.New("db down")
		},
	}
	svc := NewService(oauth, &mockIdentityRepo{}, profileRepo, &mockSessionRepo{}, ServiceConfig{})

	_, err := svc.HandleCallback(context.Background(), "auth-code")
	if err == nil {
		t.Fatal("expected error when profile bootstrap fails")
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deleted string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := NewService(&mockOAuthProvider{}, &mockIdentityRepo{}, &mockProfileRepo{}, sessionRepo, ServiceConfig{})

	if err := svc.Logout(context.Background(), "session-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleted != "session-1" {
		t.Errorf("deleted session = %q, want session-1", deleted)
	}
}

func TestLogout_EmptySessionID(t *testing.T) {
	svc := NewService(&mockOAuthProvider{}, &mockIdentityRepo{}, &mockProfileRepo{}, &mockSessionRepo{}, ServiceConfig{})
	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestGetCurrentProfile_Success(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UID: "u1"}, nil
		},
	}
	profileRepo := &mockProfileRepo{
		findFn: func(ctx context.Context, uid string) (*model.Profile, error) {
			p := model.NewProfile(uid)
			p.TotalTime = 42
			return p, nil
		},
	}
	svc := NewService(&mockOAuthProvider{}, &mockIdentityRepo{}, profileRepo, sessionRepo, ServiceConfig{})

	profile, err := svc.GetCurrentProfile(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("GetCurrentProfile() error = %v", err)
	}
	if profile.UID != "u1" {
		t.Errorf("UID = %q, want u1", profile.UID)
	}
	if profile.TotalTime != 42 {
		t.Errorf("TotalTime = %d, want 42", profile.TotalTime)
	}
}

func TestGetCurrentProfile_ExpiredSession(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil
		},
	}
	svc := NewService(&mockOAuthProvider{}, &mockIdentityRepo{}, &mockProfileRepo{}, sessionRepo, ServiceConfig{})

	if _, err := svc.GetCurrentProfile(context.Background(), "stale"); err == nil {
		t.Fatal("expected error for expired session")
	}
}
