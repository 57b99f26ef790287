package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gymAccessAPI/internal/payment"
	"gymAccessAPI/middleware"
	"gymAccessAPI/services"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// POST /api/v1/payments - record a completed payment. Settlement happened
// upstream; this rolls the member's billing state forward.
func (h *PaymentHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	staffID, ok := middleware.GetStaffID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Staff not authenticated")
		return
	}

	var req payment.RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MemberNo == "" {
		respondWithError(w, http.StatusBadRequest, "member_no is required")
		return
	}

	p, err := h.paymentService.RecordPayment(ctx, &req, staffID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, p)
}

// POST /api/v1/payments/{id}/refund
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	staffID, ok := middleware.GetStaffID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Staff not authenticated")
		return
	}

	var req payment.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	paymentID := mux.Vars(r)["id"]
	p, err := h.paymentService.Refund(ctx, paymentID, req.Reason, staffID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}
