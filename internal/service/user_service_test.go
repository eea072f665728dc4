package service

import (
	"context"
	"errors"
	"testing"

	"github.com/twogether/internal/db"
)

func TestUserServiceRegisterAndAuthenticate(t *testing.T) {
	gdb := openServiceTestDB(t)
	svc := NewUserService(gdb, nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Email: " Alice@Example.com ", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Email != "alice@example.com" || user.DisplayName != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Password == "secret1" {
		t.Fatalf("password must be hashed")
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "secret1"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "123"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "secret1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}

	if _, err := svc.Authenticate(ctx, "ALICE@example.com", "secret1"); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestUserServicePartnerLinking(t *testing.T) {
	gdb := openServiceTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewUserService(gdb, notifier)
	alice := mustCreateUser(t, gdb, "alice@example.com")
	bob := mustCreateUser(t, gdb, "bob@example.com")
	carol := mustCreateUser(t, gdb, "carol@example.com")
	ctx := context.Background()

	if _, err := svc.PartnerOf(alice.ID); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
	if _, err := svc.LinkPartner(ctx, alice.ID, "alice@example.com"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self link, got %v", err)
	}

	partner, err := svc.LinkPartner(ctx, alice.ID, "BOB@example.com")
	if err != nil {
		t.Fatalf("LinkPartner returned error: %v", err)
	}
	if partner.ID != bob.ID {
		t.Fatalf("linked wrong partner %s", partner.ID)
	}
	if got, _ := svc.PartnerOf(bob.ID); got != alice.ID {
		t.Fatalf("link must be mutual, got %q", got)
	}
	if !notifier.has(profileTopic(bob.ID)) {
		t.Fatalf("expected partner profile topic to be published")
	}

	if _, err := svc.LinkPartner(ctx, carol.ID, "alice@example.com"); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
	if _, err := svc.LinkPartner(ctx, alice.ID, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := svc.UnlinkPartner(ctx, bob.ID); err != nil {
		t.Fatalf("UnlinkPartner returned error: %v", err)
	}
	if _, err := svc.PartnerOf(alice.ID); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("unlink must clear both sides, got %v", err)
	}
	if err := svc.UnlinkPartner(ctx, bob.ID); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
}

func TestUserServiceUpdateProfile(t *testing.T) {
	gdb := openServiceTestDB(t)
	svc := NewUserService(gdb, nil)
	user := mustCreateUser(t, gdb, "alice@example.com")

	name := "Ally"
	updated, err := svc.UpdateProfile(user.ID, ProfileInput{
		DisplayName: &name,
		Settings:    &db.UserSettings{Theme: " dark ", Notifications: true, Timezone: "Asia/Shanghai"},
	})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.DisplayName != "Ally" || updated.Settings.Theme != "dark" || updated.Settings.Timezone != "Asia/Shanghai" {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	empty := " "
	if _, err := svc.UpdateProfile(user.ID, ProfileInput{DisplayName: &empty}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := svc.SetAvatarURL("ghost", "/uploads/a.png"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
