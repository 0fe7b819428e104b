package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/crypto/bcrypt"
)

const passcodeLength = 4

// Audit type of a passcode verification row in log_staff_redemption.
const redemptionTypePasscode = "passcode"

// Errors returned by the staff identity gate.
var (
	ErrPasscodeIncomplete = errors.New("passcode must be exactly 4 digits")
	ErrInvalidPasscode    = errors.New("invalid passcode")
	ErrStaffInactive      = errors.New("staff account is inactive")
	ErrPasscodeLocked     = errors.New("too many failed passcode attempts")
)

// StaffStore defines the DB methods needed by the staff gate.
// Satisfied by *database.Queries.
type StaffStore interface {
	ListStaffPasscodesForOutlet(ctx context.Context, outletID uuid.UUID) ([]database.StaffPasscode, error)
	TouchStaffPasscode(ctx context.Context, id uuid.UUID) error
	CreateStaffRedemptionLog(ctx context.Context, arg database.CreateStaffRedemptionLogParams) (database.LogStaffRedemption, error)
}

// StaffIdentity is a staff member resolved from a passcode.
type StaffIdentity struct {
	StaffID      uuid.UUID `json:"staff_id"`
	StaffName    string    `json:"staff_name"`
	IsSuperadmin bool      `json:"is_superadmin"`
}

// LockoutPolicy bounds consecutive failures per outlet. MaxFailures of
// zero disables the lockout.
type LockoutPolicy struct {
	MaxFailures int
	Duration    time.Duration
}

type lockState struct {
	failures    int
	lockedUntil time.Time
}

// StaffGate resolves 4-digit passcodes to staff identities. Every attempt
// that reaches a lookup writes exactly one audit row.
type StaffGate struct {
	store  StaffStore
	policy LockoutPolicy
	now    func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*lockState
}

func NewStaffGate(store StaffStore, policy LockoutPolicy) *StaffGate {
	return &StaffGate{
		store:  store,
		policy: policy,
		now:    time.Now,
		locks:  make(map[uuid.UUID]*lockState),
	}
}

// Verify checks passcode against the outlet's staff (and outlet-less
// superadmins). Input that is not exactly four digits is rejected before
// any lookup and is not audited. metadata is merged into the audit row.
func (g *StaffGate) Verify(ctx context.Context, outletID uuid.UUID, passcode string, metadata map[string]any) (*StaffIdentity, error) {
	if !isPasscode(passcode) {
		return nil, ErrPasscodeIncomplete
	}

	if g.locked(outletID) {
		g.audit(ctx, outletID, nil, passcode, ErrPasscodeLocked, metadata)
		return nil, ErrPasscodeLocked
	}

	staff, err := g.store.ListStaffPasscodesForOutlet(ctx, outletID)
	if err != nil {
		return nil, fmt.Errorf("list staff passcodes: %w", err)
	}

	var match *database.StaffPasscode
	inactive := false
	for i := range staff {
		if bcrypt.CompareHashAndPassword([]byte(staff[i].PasscodeHash), []byte(passcode)) != nil {
			continue
		}
		if !staff[i].IsActive {
			inactive = true
			continue
		}
		match = &staff[i]
		break
	}

	if match == nil {
		reason := ErrInvalidPasscode
		if inactive {
			reason = ErrStaffInactive
		}
		g.recordFailure(outletID)
		g.audit(ctx, outletID, nil, passcode, reason, metadata)
		return nil, reason
	}

	g.resetFailures(outletID)
	if err := g.store.TouchStaffPasscode(ctx, match.ID); err != nil {
		log.Printf("WARN: touch staff passcode %s: %v", match.ID, err)
	}
	g.audit(ctx, outletID, match, passcode, nil, metadata)

	return &StaffIdentity{
		StaffID:      match.ID,
		StaffName:    match.StaffName,
		IsSuperadmin: match.Role == enum.StaffRoleSuperadmin,
	}, nil
}

// audit appends the single log_staff_redemption row for an attempt. The raw
// passcode is recorded only for failed attempts.
func (g *StaffGate) audit(ctx context.Context, outletID uuid.UUID, staff *database.StaffPasscode, passcode string, reason error, extra map[string]any) {
	meta := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		meta[k] = v
	}

	var staffID pgtype.UUID
	if staff != nil {
		staffID = uuidOrNull(staff.ID)
		meta["staff_name"] = staff.StaffName
	} else {
		meta["passcode"] = passcode
		meta["reason"] = reason.Error()
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		raw = []byte("{}")
	}

	_, err = g.store.CreateStaffRedemptionLog(ctx, database.CreateStaffRedemptionLogParams{
		StaffPasscodeID: staffID,
		OutletID:        uuidOrNull(outletID),
		RedemptionType:  redemptionTypePasscode,
		Items:           []byte("[]"),
		Success:         staff != nil,
		Metadata:        raw,
	})
	if err != nil {
		log.Printf("ERROR: write passcode audit row: %v", err)
	}
}

func (g *StaffGate) locked(outletID uuid.UUID) bool {
	if g.policy.MaxFailures <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.locks[outletID]
	if !ok || st.lockedUntil.IsZero() {
		return false
	}
	if g.now().Before(st.lockedUntil) {
		return true
	}
	delete(g.locks, outletID)
	return false
}

func (g *StaffGate) recordFailure(outletID uuid.UUID) {
	if g.policy.MaxFailures <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.locks[outletID]
	if !ok {
		st = &lockState{}
		g.locks[outletID] = st
	}
	st.failures++
	if st.failures >= g.policy.MaxFailures {
		st.lockedUntil = g.now().Add(g.policy.Duration)
		log.Printf("WARN: passcode gate locked for outlet %s after %d failures", outletID, st.failures)
	}
}

func (g *StaffGate) resetFailures(outletID uuid.UUID) {
	g.mu.Lock()
	delete(g.locks, outletID)
	g.mu.Unlock()
}

func isPasscode(s string) bool {
	if len(s) != passcodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
