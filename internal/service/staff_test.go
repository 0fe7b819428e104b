package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/crypto/bcrypt"
)

func hashPasscode(t *testing.T, passcode string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash passcode: %v", err)
	}
	return string(h)
}

// staffFixture is an outlet with an active crew member (1234), an inactive
// one (5555) and an outlet-less superadmin (9999).
func staffFixture(t *testing.T, outletID uuid.UUID) (*mockStore, []database.StaffPasscode) {
	t.Helper()
	staff := []database.StaffPasscode{
		{ID: uuid.New(), OutletID: pgtype.UUID{Bytes: outletID, Valid: true}, StaffName: "Dina",
			Role: enum.StaffRoleCrew, PasscodeHash: hashPasscode(t, "1234"), IsActive: true},
		{ID: uuid.New(), OutletID: pgtype.UUID{Bytes: outletID, Valid: true}, StaffName: "Rudi",
			Role: enum.StaffRoleCrew, PasscodeHash: hashPasscode(t, "5555"), IsActive: false},
		{ID: uuid.New(), StaffName: "Owner", Role: enum.StaffRoleSuperadmin,
			PasscodeHash: hashPasscode(t, "9999"), IsActive: true},
	}
	store := &mockStore{
		listStaffPasscodesForOutletFn: func(ctx context.Context, id uuid.UUID) ([]database.StaffPasscode, error) {
			return staff, nil
		},
		touchStaffPasscodeFn: func(ctx context.Context, id uuid.UUID) error { return nil },
	}
	return store, staff
}

func auditMetadata(t *testing.T, row database.CreateStaffRedemptionLogParams) map[string]any {
	t.Helper()
	var meta map[string]any
	if err := json.Unmarshal(row.Metadata, &meta); err != nil {
		t.Fatalf("decode audit metadata: %v", err)
	}
	return meta
}

func TestVerify_Success(t *testing.T) {
	outletID := uuid.New()
	store, staff := staffFixture(t, outletID)
	touched := uuid.Nil
	store.touchStaffPasscodeFn = func(ctx context.Context, id uuid.UUID) error {
		touched = id
		return nil
	}
	gate := NewStaffGate(store, LockoutPolicy{})

	identity, err := gate.Verify(context.Background(), outletID, "1234", map[string]any{"order_number": "ORD-0042"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.StaffID != staff[0].ID || identity.StaffName != "Dina" || identity.IsSuperadmin {
		t.Errorf("unexpected identity %+v", identity)
	}
	if touched != staff[0].ID {
		t.Error("last_used_at should be touched for the matched staff")
	}

	if len(store.redemptionLogs) != 1 {
		t.Fatalf("expected exactly 1 audit row, got %d", len(store.redemptionLogs))
	}
	row := store.redemptionLogs[0]
	if !row.Success || row.RedemptionType != redemptionTypePasscode {
		t.Errorf("unexpected audit row %+v", row)
	}
	if !row.StaffPasscodeID.Valid || row.StaffPasscodeID.Bytes != staff[0].ID {
		t.Error("audit row should reference the staff passcode")
	}
	meta := auditMetadata(t, row)
	if _, ok := meta["passcode"]; ok {
		t.Error("successful attempts must not record the raw passcode")
	}
	if meta["order_number"] != "ORD-0042" || meta["staff_name"] != "Dina" {
		t.Errorf("unexpected metadata %v", meta)
	}
}

func TestVerify_Superadmin(t *testing.T) {
	outletID := uuid.New()
	store, _ := staffFixture(t, outletID)
	gate := NewStaffGate(store, LockoutPolicy{})

	identity, err := gate.Verify(context.Background(), outletID, "9999", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !identity.IsSuperadmin {
		t.Error("expected superadmin identity")
	}
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name     string
		passcode string
		want     error
	}{
		{"unknown passcode", "0000", ErrInvalidPasscode},
		{"inactive staff", "5555", ErrStaffInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outletID := uuid.New()
			store, _ := staffFixture(t, outletID)
			gate := NewStaffGate(store, LockoutPolicy{})

			_, err := gate.Verify(context.Background(), outletID, tt.passcode, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(store.redemptionLogs) != 1 {
				t.Fatalf("expected exactly 1 audit row, got %d", len(store.redemptionLogs))
			}
			row := store.redemptionLogs[0]
			if row.Success || row.StaffPasscodeID.Valid {
				t.Errorf("failed attempt should not reference staff: %+v", row)
			}
			meta := auditMetadata(t, row)
			if meta["passcode"] != tt.passcode {
				t.Errorf("failed attempt should record the raw passcode, got %v", meta["passcode"])
			}
			if meta["reason"] != tt.want.Error() {
				t.Errorf("expected reason %q, got %v", tt.want.Error(), meta["reason"])
			}
		})
	}
}

func TestVerify_IncompleteInputNotAudited(t *testing.T) {
	for _, passcode := range []string{"", "123", "12345", "12a4", " 123"} {
		t.Run(passcode, func(t *testing.T) {
			store := &mockStore{}
			gate := NewStaffGate(store, LockoutPolicy{})

			_, err := gate.Verify(context.Background(), uuid.New(), passcode, nil)
			if !errors.Is(err, ErrPasscodeIncomplete) {
				t.Fatalf("expected ErrPasscodeIncomplete, got %v", err)
			}
			if len(store.redemptionLogs) != 0 {
				t.Error("incomplete input must not be audited")
			}
		})
	}
}

func TestVerify_AuditFailureDoesNotBlock(t *testing.T) {
	outletID := uuid.New()
	store, _ := staffFixture(t, outletID)
	store.auditErr = errors.New("disk full")
	gate := NewStaffGate(store, LockoutPolicy{})

	if _, err := gate.Verify(context.Background(), outletID, "1234", nil); err != nil {
		t.Fatalf("audit failure should only be logged, got %v", err)
	}
}

func TestVerify_Lockout(t *testing.T) {
	outletID := uuid.New()
	store, _ := staffFixture(t, outletID)
	gate := NewStaffGate(store, LockoutPolicy{MaxFailures: 3, Duration: 30 * time.Second})
	now := time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := gate.Verify(ctx, outletID, "0000", nil); !errors.Is(err, ErrInvalidPasscode) {
			t.Fatalf("attempt %d: expected ErrInvalidPasscode, got %v", i, err)
		}
	}

	// Even the correct passcode is refused while locked, and still audited.
	if _, err := gate.Verify(ctx, outletID, "1234", nil); !errors.Is(err, ErrPasscodeLocked) {
		t.Fatalf("expected ErrPasscodeLocked, got %v", err)
	}
	if len(store.redemptionLogs) != 4 {
		t.Errorf("expected 4 audit rows, got %d", len(store.redemptionLogs))
	}

	// Other outlets are unaffected.
	otherStore, _ := staffFixture(t, uuid.New())
	gate.store = otherStore
	if _, err := gate.Verify(ctx, uuid.New(), "1234", nil); err != nil {
		t.Fatalf("other outlet should not be locked: %v", err)
	}
	gate.store = store

	now = now.Add(31 * time.Second)
	if _, err := gate.Verify(ctx, outletID, "1234", nil); err != nil {
		t.Fatalf("lock should expire, got %v", err)
	}
}

func TestVerify_SuccessResetsFailures(t *testing.T) {
	outletID := uuid.New()
	store, _ := staffFixture(t, outletID)
	gate := NewStaffGate(store, LockoutPolicy{MaxFailures: 2, Duration: time.Minute})
	ctx := context.Background()

	gate.Verify(ctx, outletID, "0000", nil) //nolint:errcheck
	if _, err := gate.Verify(ctx, outletID, "1234", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gate.Verify(ctx, outletID, "0000", nil) //nolint:errcheck
	if _, err := gate.Verify(ctx, outletID, "1234", nil); err != nil {
		t.Fatalf("a success should reset the failure count, got %v", err)
	}
}
