package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gymAccessAPI/internal/accesslog"
	"gymAccessAPI/internal/attendance"
	"gymAccessAPI/internal/clock"
	"gymAccessAPI/internal/device"
	"gymAccessAPI/internal/member"
)

// Denial reasons are operator-facing and must stay distinguishable; they are
// matched by the kiosk UI.
const (
	ReasonMemberNotFound    = "Member not found"
	ReasonMemberInactive    = "Member account is inactive"
	ReasonAccessDisabled    = "Door access is disabled"
	ReasonMembershipExpired = "Membership has expired"
	ReasonPaymentOverdue    = "Payment overdue - access suspended"
	ReasonDeviceNotFound    = "Device not found"
	ReasonDeviceInactive    = "Device is inactive"
	ReasonSystemError       = "System error"
)

// MemberDirectory is the member lookup surface the gate needs. FindByMemberNo
// returns (nil, nil) for an unknown number; errors mean infrastructure
// trouble and the gate fails closed.
type MemberDirectory interface {
	FindByMemberNo(ctx context.Context, memberNo string) (*member.Member, error)
	SuspendDoorAccess(ctx context.Context, memberID string) error
}

// DeviceRegistry answers whether a door controller is known and active.
type DeviceRegistry interface {
	FindByID(ctx context.Context, deviceID string) (*device.Device, error)
}

// SessionTracker owns session rows. The gate serializes calls per member; a
// tracker only has to be atomic per statement.
type SessionTracker interface {
	LastSession(ctx context.Context, memberID string) (*attendance.Session, error)
	Open(ctx context.Context, memberID, deviceID string, at time.Time) (*attendance.Session, error)
	Close(ctx context.Context, sessionID string, at time.Time) (*attendance.Session, error)
}

// AccessRecorder persists access attempts.
type AccessRecorder interface {
	Record(ctx context.Context, e *accesslog.Entry) error
}

// AccessDecision is the structured outcome of a gate evaluation. Denials are
// data, not errors; errors are reserved for infrastructure failures.
type AccessDecision struct {
	Access     bool                `json:"access"`
	Reason     string              `json:"reason,omitempty"`
	AccessType accesslog.EventType `json:"access_type,omitempty"`
	Member     *member.Member      `json:"member,omitempty"`
	Device     *device.Device      `json:"device,omitempty"`
	Session    *attendance.Session `json:"session,omitempty"`
}

// AccessService is the door access gate: it decides whether a member may
// pass a controlled door right now, and applies the side effects of that
// decision (session open/close, overdue suspension, attempt logging).
type AccessService struct {
	members  MemberDirectory
	devices  DeviceRegistry
	sessions SessionTracker
	logs     AccessRecorder
	clock    clock.Clock

	mu          sync.Mutex
	memberLocks map[string]*memberLock
}

type memberLock struct {
	mu   sync.Mutex
	refs int
}

func NewAccessService(members MemberDirectory, devices DeviceRegistry, sessions SessionTracker, logs AccessRecorder, clk clock.Clock) *AccessService {
	return &AccessService{
		members:     members,
		devices:     devices,
		sessions:    sessions,
		logs:        logs,
		clock:       clk,
		memberLocks: make(map[string]*memberLock),
	}
}

// ProcessDoorAccess evaluates an access attempt from a physical device and
// applies its side effects. Every attempt, granted or denied, is persisted;
// infrastructure failures fail closed.
func (s *AccessService) ProcessDoorAccess(ctx context.Context, memberNo, deviceID string) *AccessDecision {
	return s.evaluate(ctx, memberNo, deviceID, true)
}

// VerifyMemberAccess is the dry run used for UI pre-checks: same decision
// logic, no session transition, no log entry, no suspension.
func (s *AccessService) VerifyMemberAccess(ctx context.Context, memberNo, deviceID string) *AccessDecision {
	return s.evaluate(ctx, memberNo, deviceID, false)
}

func (s *AccessService) evaluate(ctx context.Context, memberNo, deviceID string, apply bool) *AccessDecision {
	now := s.clock.Now()

	m, err := s.members.FindByMemberNo(ctx, memberNo)
	if err != nil {
		return s.failClosed(ctx, nil, deviceID, err, apply)
	}
	if m == nil {
		return s.deny(ctx, nil, deviceID, ReasonMemberNotFound, apply)
	}
	if !m.IsActive {
		return s.deny(ctx, m, deviceID, ReasonMemberInactive, apply)
	}
	if !m.DoorAccessEnabled {
		return s.deny(ctx, m, deviceID, ReasonAccessDisabled, apply)
	}
	if m.MembershipEndDate.Before(now) {
		return s.deny(ctx, m, deviceID, ReasonMembershipExpired, apply)
	}

	if member.OverdueBeyondGrace(m.NextPaymentDue, now) &&
		member.ResolvePaymentStatus(m.PaymentStatus, m.NextPaymentDue, m.LastPaymentDate, now) != member.StatusPaid {
		if apply {
			if err := s.members.SuspendDoorAccess(ctx, m.ID); err != nil {
				return s.failClosed(ctx, m, deviceID, err, apply)
			}
		}
		return s.deny(ctx, m, deviceID, ReasonPaymentOverdue, apply)
	}

	d, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return s.failClosed(ctx, m, deviceID, err, apply)
	}
	if d == nil {
		return s.deny(ctx, m, deviceID, ReasonDeviceNotFound, apply)
	}
	if !d.IsActive {
		return s.deny(ctx, m, deviceID, ReasonDeviceInactive, apply)
	}

	decision := &AccessDecision{Access: true, Member: m, Device: d}

	if !apply {
		// Dry run still reports which way the session would swing.
		last, err := s.sessions.LastSession(ctx, m.ID)
		if err != nil {
			return s.failClosed(ctx, m, deviceID, err, apply)
		}
		decision.AccessType = accesslog.TypeCheckIn
		if last != nil && last.Status == attendance.StatusCheckedIn {
			decision.AccessType = accesslog.TypeCheckOut
		}
		return decision
	}

	// The read-last-session/write sequence must be serialized per member:
	// two concurrent grants must not both see the prior session as open.
	unlock := s.lockMember(m.ID)
	defer unlock()

	last, err := s.sessions.LastSession(ctx, m.ID)
	if err != nil {
		return s.failClosed(ctx, m, deviceID, err, apply)
	}

	var sess *attendance.Session
	if last != nil && last.Status == attendance.StatusCheckedIn {
		decision.AccessType = accesslog.TypeCheckOut
		sess, err = s.sessions.Close(ctx, last.ID, now)
	} else {
		decision.AccessType = accesslog.TypeCheckIn
		sess, err = s.sessions.Open(ctx, m.ID, deviceID, now)
	}
	if err != nil {
		return s.failClosed(ctx, m, deviceID, err, apply)
	}
	decision.Session = sess

	s.record(ctx, &accesslog.Entry{
		MemberID:  &m.ID,
		DeviceID:  &deviceID,
		Type:      decision.AccessType,
		Status:    accesslog.StatusSuccess,
		Method:    accesslog.MethodDevice,
		Timestamp: now,
	})

	return decision
}

// ManualAttendance records a check-in or check-out entered by staff. It
// bypasses the gate checks but still obeys the session state machine, and
// the entry is attributed to the operator who recorded it.
func (s *AccessService) ManualAttendance(ctx context.Context, req *attendance.ManualEntryRequest, recordedBy string) (*accesslog.Entry, error) {
	if req.Type != "check_in" && req.Type != "check_out" {
		return nil, fmt.Errorf("type must be check_in or check_out")
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("reason is required for manual entries")
	}

	m, err := s.members.FindByMemberNo(ctx, req.MemberNo)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("member %s not found", req.MemberNo)
	}

	now := s.clock.Now()

	unlock := s.lockMember(m.ID)
	defer unlock()

	last, err := s.sessions.LastSession(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	open := last != nil && last.Status == attendance.StatusCheckedIn

	var entryType accesslog.EventType
	switch req.Type {
	case "check_in":
		if open {
			return nil, fmt.Errorf("member %s already has an open session", req.MemberNo)
		}
		if _, err := s.sessions.Open(ctx, m.ID, req.DeviceID, now); err != nil {
			return nil, err
		}
		entryType = accesslog.TypeCheckIn
	case "check_out":
		if !open {
			return nil, fmt.Errorf("member %s has no open session", req.MemberNo)
		}
		if _, err := s.sessions.Close(ctx, last.ID, now); err != nil {
			return nil, err
		}
		entryType = accesslog.TypeCheckOut
	}

	entry := &accesslog.Entry{
		MemberID:   &m.ID,
		MemberNo:   m.MemberNo,
		Type:       entryType,
		Status:     accesslog.StatusSuccess,
		Reason:     req.Reason,
		Method:     accesslog.MethodManual,
		RecordedBy: recordedBy,
		Timestamp:  now,
	}
	if req.DeviceID != "" {
		entry.DeviceID = &req.DeviceID
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// deny returns a structured denial and logs the attempt. Denial is an
// expected outcome, never an error.
func (s *AccessService) deny(ctx context.Context, m *member.Member, deviceID, reason string, apply bool) *AccessDecision {
	decision := &AccessDecision{Access: false, Reason: reason, Member: m}

	if apply {
		entry := &accesslog.Entry{
			Type:      accesslog.TypeDenied,
			Status:    accesslog.StatusDenied,
			Reason:    reason,
			Method:    accesslog.MethodDevice,
			Timestamp: s.clock.Now(),
		}
		if m != nil {
			entry.MemberID = &m.ID
			entry.MemberNo = m.MemberNo
		}
		if deviceID != "" {
			entry.DeviceID = &deviceID
		}
		s.record(ctx, entry)
	}
	return decision
}

// failClosed turns an infrastructure failure into a denial. The hardware is
// waiting on an answer; when in doubt the door stays shut.
func (s *AccessService) failClosed(ctx context.Context, m *member.Member, deviceID string, err error, apply bool) *AccessDecision {
	log.Printf("AccessService: evaluation failed, denying access: %v", err)
	return s.deny(ctx, m, deviceID, ReasonSystemError, apply)
}

func (s *AccessService) record(ctx context.Context, e *accesslog.Entry) {
	if err := s.logs.Record(ctx, e); err != nil {
		log.Printf("AccessService: failed to persist access log entry: %v", err)
	}
}

// lockMember returns the per-member critical section, creating it on first
// use. Entries are reference counted and dropped when the last holder
// leaves, so the map tracks members mid-evaluation rather than every member
// ever seen.
func (s *AccessService) lockMember(memberID string) func() {
	s.mu.Lock()
	l, ok := s.memberLocks[memberID]
	if !ok {
		l = &memberLock{}
		s.memberLocks[memberID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.memberLocks, memberID)
		}
		s.mu.Unlock()
	}
}
