package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/davmie/userbase/internal/auth"
	"github.com/davmie/userbase/internal/metrics"
	"github.com/davmie/userbase/internal/models"
)

// loginFailedMessage is deliberately the same for unknown usernames and bad
// passwords so the endpoint cannot be used to enumerate accounts. The
// distinction is logged server-side.
const loginFailedMessage = "invalid username or password"

// ==========================
// Auth Handler
// ==========================
type AuthHandler struct {
	Auth *auth.Service
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,max=50"`
	Email     string `json:"email" validate:"required,email,max=100"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"omitempty,max=50"`
	LastName  string `json:"lastName" validate:"omitempty,max=50"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ==========================
// Register
// ==========================
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input registerRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid json", http.StatusBadRequest)
		return
	}
	if fields := validateStruct(input); fields != nil {
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	candidate := &models.User{
		Username:  input.Username,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		IsActive:  true,
	}

	_, err := h.Auth.Register(r.Context(), candidate, input.Password)
	switch {
	case errors.Is(err, auth.ErrDuplicateUsername):
		metrics.RecordRegistration("duplicate")
		JSONError(w, "username already exists", http.StatusBadRequest)
		return
	case errors.Is(err, auth.ErrDuplicateEmail):
		metrics.RecordRegistration("duplicate")
		JSONError(w, "email already exists", http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("register failed", "username", input.Username, "error", err)
		metrics.RecordRegistration("error")
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	metrics.RecordRegistration("created")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "user registered successfully"})
}

// ==========================
// Login
// ==========================
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid json", http.StatusBadRequest)
		return
	}
	if fields := validateStruct(input); fields != nil {
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	token, err := h.Auth.Login(r.Context(), input.Username, input.Password)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		slog.Info("login failed", "username", input.Username, "reason", "user not found")
		metrics.RecordLogin("not_found")
		JSONError(w, loginFailedMessage, http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		slog.Info("login failed", "username", input.Username, "reason", "bad password")
		metrics.RecordLogin("bad_password")
		JSONError(w, loginFailedMessage, http.StatusUnauthorized)
		return
	case err != nil:
		slog.Error("login failed", "username", input.Username, "error", err)
		metrics.RecordLogin("error")
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	metrics.RecordLogin("success")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}
