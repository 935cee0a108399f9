package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tableserve/tableserve-auth/internal/metrics"
	"github.com/tableserve/tableserve-auth/internal/model"
	"github.com/tableserve/tableserve-auth/internal/service"
)

const maxBodyBytes = 1 << 20 // 1MB

const registeredMessage = "User registered successfully"

// AuthHandler handles HTTP requests for registration and login.
type AuthHandler struct {
	service *service.AuthService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, m *metrics.Metrics, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: svc, metrics: m, logger: logger}
}

// HandleRegister handles POST /api/auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !decodeJSON(w, r, &req) {
		h.countRegister(metrics.OutcomeInvalid)
		return
	}

	err := h.service.Register(r.Context(), req)
	switch {
	case err == nil:
		h.countRegister(metrics.OutcomeSuccess)
		writeJSON(w, http.StatusOK, model.MessageResponse{Message: registeredMessage})
	case errors.Is(err, service.ErrUsernameRequired),
		errors.Is(err, service.ErrEmailRequired),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrPasswordRequired):
		h.countRegister(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrEmailTaken):
		h.countRegister(metrics.OutcomeConflict)
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
	default:
		h.logger.ErrorContext(r.Context(), "registration failed", "error", err)
		h.countRegister(metrics.OutcomeError)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}

// HandleLogin handles POST /api/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeJSON(w, r, &req) {
		h.countLogin(metrics.OutcomeInvalid)
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.countLogin(metrics.OutcomeInvalid)
			writeJSON(w, http.StatusUnauthorized, errorResponse(err.Error()))
			return
		}
		h.logger.ErrorContext(r.Context(), "login failed", "error", err)
		h.countLogin(metrics.OutcomeError)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	h.countLogin(metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) countRegister(outcome string) {
	if h.metrics != nil {
		h.metrics.RegisterTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *AuthHandler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginTotal.WithLabelValues(outcome).Inc()
	}
}

// decodeJSON reads a size-limited JSON body into v, writing the error
// response itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}
