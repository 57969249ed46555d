package handlers

import (
	"log"
	"net/http"
	"time"

	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

type AuthHandler struct {
	auth      *services.AuthService
	tokens    *mW.TokenManager
	revoker   *mW.TokenRevoker
	validator *services.ValidationHelper
}

func NewAuthHandler(auth *services.AuthService, tokens *mW.TokenManager, revoker *mW.TokenRevoker) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		tokens:    tokens,
		revoker:   revoker,
		validator: services.NewValidationHelper(),
	}
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email string `json:"email" validate:"required,email" example:"jane@example.com"` // Login email
	PIN   string `json:"pin" validate:"required" example:"1234"`                     // Account PIN
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Account   models.Account `json:"account"`
}

// Register handles account registration
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.RegisterRequest true "Registration request"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] registration attempt from IP: %s", r.RemoteAddr)

	var req services.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, acc)
}

// Login authenticates with email and PIN
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 423 {object} services.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	acc, err := h.auth.Authenticate(r.Context(), req.Email, req.PIN)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, expires, err := h.tokens.Generate(acc)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for account %d: %v", acc.ID, err)
		services.SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, ExpiresAt: expires, Account: acc})
}

// Logout revokes the presented token
// @Summary Logout
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := mW.ClaimsFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := h.revoker.Revoke(r.Context(), claims.ID, ttl); err != nil {
		log.Printf("[AUTH] failed to revoke token for account %d: %v", claims.AccountID, err)
		services.SendErrorResponse(w, "Logout failed", http.StatusServiceUnavailable, nil)
		return
	}
	h.auth.Logout(r.Context(), claims.AccountID)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}
