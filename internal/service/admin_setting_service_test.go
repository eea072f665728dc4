package service

import (
	"errors"
	"testing"
)

func TestAdminSettingServiceDefaultsAndUpdate(t *testing.T) {
	gdb := openServiceTestDB(t)
	svc := NewAdminSettingService(gdb, 50)

	settings, err := svc.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings returned error: %v", err)
	}
	if settings.AwardMaxAmount != 50 || settings.MaintenanceMode {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	limit := 20
	on := true
	notice := "  Valentine's week bonus  "
	updated, err := svc.UpdateSettings(AdminSettingsInput{AwardMaxAmount: &limit, MaintenanceMode: &on, Announcement: &notice})
	if err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	if updated.AwardMaxAmount != 20 || !updated.MaintenanceMode || updated.Announcement != "Valentine's week bonus" {
		t.Fatalf("unexpected settings: %+v", updated)
	}
	if svc.AwardMaxAmount() != 20 || !svc.MaintenanceMode() {
		t.Fatalf("accessors should reflect stored settings")
	}

	off := false
	if _, err := svc.UpdateSettings(AdminSettingsInput{MaintenanceMode: &off}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	if svc.MaintenanceMode() || svc.AwardMaxAmount() != 20 {
		t.Fatalf("partial update must keep other settings")
	}

	zero := 0
	if _, err := svc.UpdateSettings(AdminSettingsInput{AwardMaxAmount: &zero}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
