package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gymAccessAPI/internal/clock"
	"gymAccessAPI/internal/member"
	"gymAccessAPI/middleware"
	"gymAccessAPI/services"
)

// memberDirectory is what this handler needs from the member service.
type memberDirectory interface {
	CreateMember(ctx context.Context, req *member.CreateMemberRequest) (*member.Member, error)
	FindByMemberNo(ctx context.Context, memberNo string) (*member.Member, error)
	Deactivate(ctx context.Context, memberNo, recordedBy string) error
	OverridePaymentStatus(ctx context.Context, memberNo string, req *member.UpdatePaymentStatusRequest, recordedBy string) (*member.Member, error)
	SetDoorAccess(ctx context.Context, memberNo string, enabled bool, reason, recordedBy string) (*member.Member, error)
	RegisterPushToken(ctx context.Context, memberNo, token, platform string) error
}

type MemberHandler struct {
	memberService memberDirectory
	clock         clock.Clock
}

func NewMemberHandler(memberService *services.MemberService, clk clock.Clock) *MemberHandler {
	return &MemberHandler{
		memberService: memberService,
		clock:         clk,
	}
}

// POST /api/v1/members - enroll a new member
func (h *MemberHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetStaffID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "Staff not authenticated")
		return
	}

	var req member.CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	m, err := h.memberService.CreateMember(ctx, &req)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, m)
}

// GET /api/v1/members/{memberNo}
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	memberNo := mux.Vars(r)["memberNo"]
	m, err := h.memberService.FindByMemberNo(ctx, memberNo)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get member")
		return
	}
	if m == nil {
		respondWithError(w, http.StatusNotFound, "Member not found")
		return
	}

	// The stored summary can lag between reconciliation runs; present the
	// status derived from the dates as of this read.
	m.PaymentStatus = member.ResolvePaymentStatus(m.PaymentStatus, m.NextPaymentDue, m.LastPaymentDate, h.clock.Now())

	respondWithJSON(w, http.StatusOK, m)
}

// DELETE /api/v1/members/{memberNo} - soft deactivation, never a hard delete
func (h *MemberHandler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	staffID, ok := middleware.GetStaffID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Staff not authenticated")
		return
	}

	memberNo := mux.Vars(r)["memberNo"]
	if err := h.memberService.Deactivate(ctx, memberNo, staffID); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Member deactivated"})
}

// PUT /api/v1/members/{memberNo}/payment-status - audited administrative
// override of the derived payment status
func (h *MemberHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	staffID, ok := middleware.GetStaffID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Staff not authenticated")
		return
	}

	var req member.UpdatePaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	memberNo := mux.Vars(r)["memberNo"]
	m, err := h.memberService.OverridePaymentStatus(ctx, memberNo, &req, staffID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, m)
}

// PUT /api/v1/members/{memberNo}/door-access - explicit enable/disable;
// the only path that turns suspended access back on
func (h *MemberHandler) SetDoorAccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	staffID, ok := middleware.GetStaffID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Staff not authenticated")
		return
	}

	var req member.SetDoorAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	memberNo := mux.Vars(r)["memberNo"]
	m, err := h.memberService.SetDoorAccess(ctx, memberNo, req.Enabled, req.Reason, staffID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, m)
}

// POST /api/v1/members/{memberNo}/push-token - register a device token for
// payment reminder pushes
func (h *MemberHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}

	memberNo := mux.Vars(r)["memberNo"]
	if err := h.memberService.RegisterPushToken(ctx, memberNo, req.Token, req.Platform); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Push token registered"})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(fmt.Sprintf(`{"error": %q}`, message)))
}
