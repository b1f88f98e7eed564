package handler

import (
	"net/http"

	"ecotrace-api/internal/service"
	"ecotrace-api/pkg/response"
)

// RegistrationHandler binds scanned products to consumers.
type RegistrationHandler struct {
	registration *service.Registration
}

// NewRegistrationHandler creates a new registration handler.
func NewRegistrationHandler(registration *service.Registration) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// RegisterRequest is the body of POST /registrations. Either Payload (the
// scanned code) or the explicit identity triple must be given.
type RegisterRequest struct {
	Payload        string `json:"payload,omitempty"`
	ManufacturerID string `json:"manufacturerId,omitempty"`
	ProductID      string `json:"productId,omitempty"`
	SerialNumber   string `json:"serialNumber,omitempty"`
	ModelNumber    string `json:"modelNumber,omitempty"`
	SecretKey      string `json:"secretKey"`
}

// RegisterResponse mirrors the registration outcome.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Register handles POST /api/v1/registrations
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		result *service.RegistrationResult
		err    error
	)
	consumerID := subjectOf(r)
	if req.Payload != "" {
		result, err = h.registration.RegisterPayload(r.Context(), consumerID, req.Payload, req.ModelNumber, req.SecretKey)
	} else {
		result, err = h.registration.Register(r.Context(), consumerID, service.RegistrationInput{
			ManufacturerID: req.ManufacturerID,
			ProductID:      req.ProductID,
			SerialNumber:   req.SerialNumber,
			ModelNumber:    req.ModelNumber,
			SecretKey:      req.SecretKey,
		})
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.Created(w, RegisterResponse{Success: result.Success, Message: result.Message})
}
