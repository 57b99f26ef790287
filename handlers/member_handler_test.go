package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"gymAccessAPI/internal/clock"
	"gymAccessAPI/internal/member"
)

type stubDirectory struct {
	member *member.Member
}

func (s *stubDirectory) CreateMember(ctx context.Context, req *member.CreateMemberRequest) (*member.Member, error) {
	return nil, nil
}

func (s *stubDirectory) FindByMemberNo(ctx context.Context, memberNo string) (*member.Member, error) {
	return s.member, nil
}

func (s *stubDirectory) Deactivate(ctx context.Context, memberNo, recordedBy string) error {
	return nil
}

func (s *stubDirectory) OverridePaymentStatus(ctx context.Context, memberNo string, req *member.UpdatePaymentStatusRequest, recordedBy string) (*member.Member, error) {
	return nil, nil
}

func (s *stubDirectory) SetDoorAccess(ctx context.Context, memberNo string, enabled bool, reason, recordedBy string) (*member.Member, error) {
	return nil, nil
}

func (s *stubDirectory) RegisterPushToken(ctx context.Context, memberNo, token, platform string) error {
	return nil
}

func TestGetMemberPresentsDerivedStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -40)

	// The stored summary says paid, but the dates say otherwise as of the
	// handler's time source.
	h := &MemberHandler{
		memberService: &stubDirectory{member: &member.Member{
			ID:             "mem-1",
			MemberNo:       "GYM000001",
			PaymentStatus:  member.StatusPaid,
			NextPaymentDue: &due,
			IsActive:       true,
		}},
		clock: &clock.Fixed{T: now},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/GYM000001", nil)
	req = mux.SetURLVars(req, map[string]string{"memberNo": "GYM000001"})
	rr := httptest.NewRecorder()

	h.GetMember(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got member.Member
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.PaymentStatus != member.StatusOverdue {
		t.Errorf("payment_status = %q, want %q derived as of the handler clock", got.PaymentStatus, member.StatusOverdue)
	}
}

func TestGetMemberNotFound(t *testing.T) {
	h := &MemberHandler{
		memberService: &stubDirectory{},
		clock:         &clock.Fixed{T: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/GYM999999", nil)
	req = mux.SetURLVars(req, map[string]string{"memberNo": "GYM999999"})
	rr := httptest.NewRecorder()

	h.GetMember(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}
