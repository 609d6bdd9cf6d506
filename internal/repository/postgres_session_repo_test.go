package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tracko/tracko-web/internal/model"
)

// PostgresIdentityRepoはIdentityRepositoryインターフェースを満たすことを検証
func TestPostgresIdentityRepo_ImplementsInterface(t *testing.T) {
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

func TestNewPostgresIdentityRepo_Initializes(t *testing.T) {
	repo := NewPostgresIdentityRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestPostgresSessionRepo_CreateFindDelete(t *testing.T) {
	db := setupProfileTestDB(t)
	profileRepo := NewPostgresProfileRepo(db)
	sessionRepo := NewPostgresSessionRepo(db)
	ctx := context.Background()

	if err := profileRepo.Ensure(ctx, "u1"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	session := &model.Session{
		ID:        uuid.New().String(),
		UID:       "u1",
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
	if err := sessionRepo.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := sessionRepo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found == nil {
		t.Fatal("expected session to be found")
	}
	if found.UID != "u1" {
		t.Errorf("UID = %q, want u1", found.UID)
	}

	if err := sessionRepo.DeleteByID(ctx, session.ID); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	found, err = sessionRepo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID() after delete error = %v", err)
	}
	if found != nil {
		t.Error("expected session to be deleted")
	}
}

func TestPostgresSessionRepo_FindByID_ExpiredReturnsNil(t *testing.T) {
	db := setupProfileTestDB(t)
	profileRepo := NewPostgresProfileRepo(db)
	sessionRepo := NewPostgresSessionRepo(db)
	ctx := context.Background()

	if err := profileRepo.Ensure(ctx, "u1"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	session := &model.Session{
		ID:        uuid.New().String(),
		UID:       "u1",
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := sessionRepo.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := sessionRepo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found != nil {
		t.Error("expired session should not be returned")
	}
}

func TestPostgresIdentityRepo_CreateAndFind(t *testing.T) {
	db := setupProfileTestDB(t)
	profileRepo := NewPostgresProfileRepo(db)
	identRepo := NewPostgresIdentityRepo(db)
	ctx := context.Background()

	if err := profileRepo.Ensure(ctx, "u1"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	identity := &model.Identity{
		ID:             uuid.New().String(),
		UID:            "u1",
		Provider:       "google",
		ProviderUserID: "google-sub-123",
		Email:          "user@example.com",
		Name:           "Test User",
		CreatedAt:      time.Now(),
	}
	if err := identRepo.Create(ctx, identity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := identRepo.FindByProviderAndProviderUserID(ctx, "google", "google-sub-123")
	if err != nil {
		t.Fatalf("FindByProviderAndProviderUserID() error = %v", err)
	}
	if found == nil {
		t.Fatal("expected identity to be found")
	}
	if found.UID != "u1" {
		t.Errorf("UID = %q, want u1", found.UID)
	}

	missing, err := identRepo.FindByProviderAndProviderUserID(ctx, "google", "nobody")
	if err != nil {
		t.Fatalf("FindByProviderAndProviderUserID() error = %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown provider user id")
	}
}
