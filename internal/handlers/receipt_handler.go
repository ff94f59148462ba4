package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/middleware"
	"github.com/summitstairs/backend/internal/services"
)

type ReceiptHandler struct {
	service   *services.ReceiptService
	validator *services.ValidationHelper
}

func NewReceiptHandler(service *services.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateReceipt issues a QR-coded receipt for a deposit
// @Summary Generate deposit receipt
// @Description Issue a one-time QR receipt for a recorded deposit
// @Tags receipts
// @Produce json
// @Security BearerAuth
// @Param depositId path int true "Deposit ID"
// @Success 200 {object} object{token=string,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /deposits/{depositId}/receipt [post]
func (h *ReceiptHandler) GenerateReceipt(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	depositID, err := strconv.ParseInt(chi.URLParam(r, "depositId"), 10, 64)
	if err != nil || depositID <= 0 {
		services.SendErrorResponse(w, "Invalid deposit ID", http.StatusBadRequest, nil)
		return
	}

	token, qrImage, err := h.service.GenerateReceipt(r.Context(), depositID, userID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), apperrors.HTTPStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"token":   token,
		"qrImage": qrImage,
	})
}

// VerifyReceipt resolves a scanned receipt token
// @Summary Verify deposit receipt
// @Description Resolve a scanned receipt token; tokens are single use
// @Tags receipts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{token=string} true "Receipt verification request"
// @Success 200 {object} services.ReceiptPayload
// @Failure 404 {object} services.ErrorResponse
// @Router /receipts/verify [post]
func (h *ReceiptHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token" validate:"required,uuid"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payload, err := h.service.VerifyReceipt(r.Context(), req.Token)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), apperrors.HTTPStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"receipt": payload,
	})
}
