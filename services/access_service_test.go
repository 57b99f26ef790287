package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gymAccessAPI/internal/accesslog"
	"gymAccessAPI/internal/attendance"
	"gymAccessAPI/internal/clock"
	"gymAccessAPI/internal/device"
	"gymAccessAPI/internal/member"
)

type fakeMembers struct {
	byNo      map[string]*member.Member
	findErr   error
	suspended []string
}

func (f *fakeMembers) FindByMemberNo(ctx context.Context, memberNo string) (*member.Member, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.byNo[memberNo], nil
}

func (f *fakeMembers) SuspendDoorAccess(ctx context.Context, memberID string) error {
	f.suspended = append(f.suspended, memberID)
	return nil
}

type fakeDevices struct {
	byID map[string]*device.Device
}

func (f *fakeDevices) FindByID(ctx context.Context, deviceID string) (*device.Device, error) {
	return f.byID[deviceID], nil
}

type fakeSessions struct {
	last    *attendance.Session
	lastErr error
	opened  []string
	closed  []string
}

func (f *fakeSessions) LastSession(ctx context.Context, memberID string) (*attendance.Session, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return f.last, nil
}

func (f *fakeSessions) Open(ctx context.Context, memberID, deviceID string, at time.Time) (*attendance.Session, error) {
	f.opened = append(f.opened, memberID)
	s := &attendance.Session{ID: "sess-new", MemberID: memberID, CheckInTime: at, Status: attendance.StatusCheckedIn, DeviceID: deviceID}
	f.last = s
	return s, nil
}

func (f *fakeSessions) Close(ctx context.Context, sessionID string, at time.Time) (*attendance.Session, error) {
	f.closed = append(f.closed, sessionID)
	out := at
	s := &attendance.Session{
		ID:              sessionID,
		MemberID:        f.last.MemberID,
		CheckInTime:     f.last.CheckInTime,
		CheckOutTime:    &out,
		DurationMinutes: attendance.DurationMinutes(f.last.CheckInTime, at),
		Status:          attendance.StatusCheckedOut,
	}
	f.last = s
	return s, nil
}

type fakeLogs struct {
	entries []*accesslog.Entry
}

func (f *fakeLogs) Record(ctx context.Context, e *accesslog.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func activeMember(now time.Time) *member.Member {
	due := now.AddDate(0, 0, 10)
	paid := now.AddDate(0, -1, 0)
	return &member.Member{
		ID:                "mem-1",
		MemberNo:          "GYM000001",
		FirstName:         "Iva",
		MembershipEndDate: now.AddDate(1, 0, 0),
		MonthlyFee:        45,
		PaymentStatus:     member.StatusUnpaid,
		LastPaymentDate:   &paid,
		NextPaymentDue:    &due,
		DoorAccessEnabled: true,
		IsActive:          true,
	}
}

func activeDevice() *device.Device {
	return &device.Device{ID: "door-1", Name: "Front door", IsActive: true}
}

func newGate(now time.Time, m *member.Member, d *device.Device) (*AccessService, *fakeMembers, *fakeSessions, *fakeLogs) {
	members := &fakeMembers{byNo: map[string]*member.Member{}}
	if m != nil {
		members.byNo[m.MemberNo] = m
	}
	devices := &fakeDevices{byID: map[string]*device.Device{}}
	if d != nil {
		devices.byID[d.ID] = d
	}
	sessions := &fakeSessions{}
	logs := &fakeLogs{}
	svc := NewAccessService(members, devices, sessions, logs, &clock.Fixed{T: now})
	return svc, members, sessions, logs
}

func TestProcessDoorAccessChecksIn(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	m := activeMember(now)
	svc, _, sessions, _ := newGate(now, m, activeDevice())

	decision := svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-1")

	if !decision.Access {
		t.Fatalf("expected access granted, got denial: %s", decision.Reason)
	}
	if decision.AccessType != accesslog.TypeCheckIn {
		t.Errorf("access type = %q, want check_in", decision.AccessType)
	}
	if len(sessions.opened) != 1 || sessions.opened[0] != "mem-1" {
		t.Errorf("expected one session opened for mem-1, got %v", sessions.opened)
	}
	if decision.Session == nil || decision.Session.Status != attendance.StatusCheckedIn {
		t.Errorf("decision should carry the opened session")
	}
}

func TestProcessDoorAccessChecksOutOpenSession(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	m := activeMember(now)
	svc, _, sessions, _ := newGate(now, m, activeDevice())
	sessions.last = &attendance.Session{
		ID:          "sess-1",
		MemberID:    "mem-1",
		CheckInTime: now.Add(-90 * time.Minute),
		Status:      attendance.StatusCheckedIn,
	}

	decision := svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-1")

	if !decision.Access {
		t.Fatalf("expected access granted, got denial: %s", decision.Reason)
	}
	if decision.AccessType != accesslog.TypeCheckOut {
		t.Errorf("access type = %q, want check_out", decision.AccessType)
	}
	if len(sessions.closed) != 1 || sessions.closed[0] != "sess-1" {
		t.Errorf("expected sess-1 closed, got %v", sessions.closed)
	}
	if decision.Session.DurationMinutes != 90 {
		t.Errorf("duration = %d minutes, want 90", decision.Session.DurationMinutes)
	}
	if decision.Session.Status != attendance.StatusCheckedOut {
		t.Errorf("session status = %q, want checked_out", decision.Session.Status)
	}
}

func TestProcessDoorAccessSuspendsOverdueBeyondGrace(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	m := activeMember(now)
	due := now.AddDate(0, 0, -member.GracePeriodDays-1)
	m.NextPaymentDue = &due
	paid := due.AddDate(0, -1, 0)
	m.LastPaymentDate = &paid
	svc, members, sessions, _ := newGate(now, m, activeDevice())

	decision := svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-1")

	if decision.Access {
		t.Fatal("expected denial for payment overdue beyond grace")
	}
	if decision.Reason != ReasonPaymentOverdue {
		t.Errorf("reason = %q, want %q", decision.Reason, ReasonPaymentOverdue)
	}
	if len(members.suspended) != 1 || members.suspended[0] != "mem-1" {
		t.Errorf("expected mem-1 suspended, got %v", members.suspended)
	}
	if len(sessions.opened) != 0 {
		t.Errorf("no session should open on denial, got %v", sessions.opened)
	}
}

func TestProcessDoorAccessGrantsWithinGrace(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	m := activeMember(now)
	// Exactly at the grace boundary: still tolerated.
	due := now.AddDate(0, 0, -member.GracePeriodDays)
	m.NextPaymentDue = &due
	paid := due.AddDate(0, -1, 0)
	m.LastPaymentDate = &paid
	svc, members, _, _ := newGate(now, m, activeDevice())

	decision := svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-1")

	if !decision.Access {
		t.Fatalf("expected access within grace period, got denial: %s", decision.Reason)
	}
	if len(members.suspended) != 0 {
		t.Errorf("no suspension expected within grace, got %v", members.suspended)
	}
}

func TestVerifyMemberAccessHasNoSideEffects(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	m := activeMember(now)
	due := now.AddDate(0, 0, -member.GracePeriodDays-5)
	m.NextPaymentDue = &due
	m.LastPaymentDate = nil
	svc, members, sessions, logs := newGate(now, m, activeDevice())

	decision := svc.VerifyMemberAccess(context.Background(), "GYM000001", "door-1")

	if decision.Access {
		t.Fatal("expected overdue denial")
	}
	if decision.Reason != ReasonPaymentOverdue {
		t.Errorf("reason = %q, want %q", decision.Reason, ReasonPaymentOverdue)
	}
	if len(members.suspended) != 0 {
		t.Errorf("dry run must not suspend, got %v", members.suspended)
	}
	if len(sessions.opened)+len(sessions.closed) != 0 {
		t.Error("dry run must not touch sessions")
	}
	if len(logs.entries) != 0 {
		t.Errorf("dry run must not log attempts, got %d entries", len(logs.entries))
	}
}

func TestProcessDoorAccessDenialOrdering(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*member.Member)
		reason string
	}{
		{"inactive outranks overdue", func(m *member.Member) {
			m.IsActive = false
			due := now.AddDate(0, -3, 0)
			m.NextPaymentDue = &due
			m.LastPaymentDate = nil
		}, ReasonMemberInactive},
		{"disabled access outranks expiry", func(m *member.Member) {
			m.DoorAccessEnabled = false
			m.MembershipEndDate = now.AddDate(0, -1, 0)
		}, ReasonAccessDisabled},
		{"expired membership", func(m *member.Member) {
			m.MembershipEndDate = now.AddDate(0, 0, -1)
		}, ReasonMembershipExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := activeMember(now)
			tt.mutate(m)
			svc, _, _, _ := newGate(now, m, activeDevice())

			decision := svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-1")
			if decision.Access {
				t.Fatal("expected denial")
			}
			if decision.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", decision.Reason, tt.reason)
			}
		})
	}
}

func TestProcessDoorAccessUnknownMemberAndDevice(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	m := activeMember(now)
	svc, _, _, _ := newGate(now, m, activeDevice())

	if d := svc.ProcessDoorAccess(context.Background(), "GYM999999", "door-1"); d.Access || d.Reason != ReasonMemberNotFound {
		t.Errorf("unknown member: access=%v reason=%q", d.Access, d.Reason)
	}
	if d := svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-unknown"); d.Access || d.Reason != ReasonDeviceNotFound {
		t.Errorf("unknown device: access=%v reason=%q", d.Access, d.Reason)
	}
}

func TestProcessDoorAccessFailsClosed(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	svc, members, _, _ := newGate(now, activeMember(now), activeDevice())
	members.findErr = errors.New("connection refused")

	decision := svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-1")

	if decision.Access {
		t.Fatal("infrastructure failure must deny")
	}
	if decision.Reason != ReasonSystemError {
		t.Errorf("reason = %q, want %q", decision.Reason, ReasonSystemError)
	}
}

func TestLockMapReleasedAfterEvaluation(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	m := activeMember(now)
	svc, _, sessions, _ := newGate(now, m, activeDevice())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.ProcessDoorAccess(context.Background(), "GYM000001", "door-1")
		}()
	}
	wg.Wait()

	// One grant checks in, the other checks out; the serialized section must
	// never let both see the prior session as closed.
	if len(sessions.opened) != 1 || len(sessions.closed) != 1 {
		t.Errorf("opened=%d closed=%d, want exactly one of each", len(sessions.opened), len(sessions.closed))
	}
	if len(svc.memberLocks) != 0 {
		t.Errorf("lock map holds %d entries after evaluations finished, want 0", len(svc.memberLocks))
	}
}

func TestManualAttendanceStateMachine(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	m := activeMember(now)
	svc, _, sessions, logs := newGate(now, m, activeDevice())

	// Check-out with nothing open is rejected.
	_, err := svc.ManualAttendance(context.Background(), &attendance.ManualEntryRequest{
		MemberNo: "GYM000001", Type: "check_out", Reason: "forgot card",
	}, "staff-1")
	if err == nil {
		t.Fatal("expected error for check_out with no open session")
	}

	// Manual check-in opens a session.
	entry, err := svc.ManualAttendance(context.Background(), &attendance.ManualEntryRequest{
		MemberNo: "GYM000001", Type: "check_in", Reason: "forgot card",
	}, "staff-1")
	if err != nil {
		t.Fatalf("manual check_in: %v", err)
	}
	if entry.Method != accesslog.MethodManual || entry.RecordedBy != "staff-1" {
		t.Errorf("entry method=%q recordedBy=%q, want manual/staff-1", entry.Method, entry.RecordedBy)
	}
	if len(sessions.opened) != 1 {
		t.Fatalf("expected one opened session, got %d", len(sessions.opened))
	}

	// Second check-in while one is open is rejected.
	if _, err := svc.ManualAttendance(context.Background(), &attendance.ManualEntryRequest{
		MemberNo: "GYM000001", Type: "check_in", Reason: "duplicate",
	}, "staff-1"); err == nil {
		t.Fatal("expected error for check_in with session already open")
	}

	// Check-out closes it.
	entry, err = svc.ManualAttendance(context.Background(), &attendance.ManualEntryRequest{
		MemberNo: "GYM000001", Type: "check_out", Reason: "leaving",
	}, "staff-2")
	if err != nil {
		t.Fatalf("manual check_out: %v", err)
	}
	if entry.Type != accesslog.TypeCheckOut {
		t.Errorf("entry type = %q, want check_out", entry.Type)
	}
	if len(sessions.closed) != 1 {
		t.Errorf("expected one closed session, got %d", len(sessions.closed))
	}
	if len(logs.entries) != 2 {
		t.Errorf("expected 2 log entries, got %d", len(logs.entries))
	}

	// Missing reason is rejected before any lookup.
	if _, err := svc.ManualAttendance(context.Background(), &attendance.ManualEntryRequest{
		MemberNo: "GYM000001", Type: "check_in",
	}, "staff-1"); err == nil {
		t.Fatal("expected error for missing reason")
	}
}
