package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gymAccessAPI/middleware"
	"gymAccessAPI/services"
)

type AccessHandler struct {
	accessService *services.AccessService
}

func NewAccessHandler(accessService *services.AccessService) *AccessHandler {
	return &AccessHandler{
		accessService: accessService,
	}
}

type accessRequest struct {
	MemberNo string `json:"member_no"`
	DeviceID string `json:"device_id"`
}

// POST /api/v1/access/door - evaluate a door access attempt from a device.
// Denials come back as 200 with a structured decision; a non-200 here would
// make controllers retry what was a perfectly good answer.
func (h *AccessHandler) ProcessDoorAccess(w http.ResponseWriter, r *http.Request) {
	// Someone is standing at the door; keep the timeout tight and let the
	// gate fail closed if the database is slow.
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MemberNo == "" || req.DeviceID == "" {
		respondWithError(w, http.StatusBadRequest, "member_no and device_id are required")
		return
	}

	decision := h.accessService.ProcessDoorAccess(ctx, req.MemberNo, req.DeviceID)
	middleware.RecordAccessDecision(decision.Access, decision.Reason)

	respondWithJSON(w, http.StatusOK, decision)
}

// POST /api/v1/access/verify - dry-run evaluation with no side effects,
// used by the front-desk UI for pre-checks.
func (h *AccessHandler) VerifyMemberAccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MemberNo == "" || req.DeviceID == "" {
		respondWithError(w, http.StatusBadRequest, "member_no and device_id are required")
		return
	}

	decision := h.accessService.VerifyMemberAccess(ctx, req.MemberNo, req.DeviceID)
	respondWithJSON(w, http.StatusOK, decision)
}
