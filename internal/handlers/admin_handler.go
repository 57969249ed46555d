package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/services"
)

type AdminHandler struct {
	auth *services.AuthService
}

func NewAdminHandler(auth *services.AuthService) *AdminHandler {
	return &AdminHandler{auth: auth}
}

// Freeze locks a standard account
// @Summary Freeze account
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/freeze [put]
func (h *AdminHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, true)
}

// Unfreeze clears the lock of a standard account
// @Summary Unfreeze account
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} models.Account
// @Router /admin/accounts/{accountId}/unfreeze [put]
func (h *AdminHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, false)
}

func (h *AdminHandler) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil || targetID < 1 {
		services.SendErrorResponse(w, "Invalid account ID", http.StatusBadRequest, nil)
		return
	}

	adminID, _ := mW.AccountIDFrom(r.Context())
	acc, err := h.auth.SetFrozen(r.Context(), targetID, frozen)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	log.Printf("[ADMIN] account %d set frozen=%t by administrator %d", targetID, frozen, adminID)
	writeJSON(w, http.StatusOK, acc)
}
