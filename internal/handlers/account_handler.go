package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/shopspring/decimal"
)

const (
	dateLayout           = "2006-01-02"
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

type AccountHandler struct {
	engine    *services.Engine
	auth      *services.AuthService
	activity  *services.ActivityRecorder
	validator *services.ValidationHelper
}

func NewAccountHandler(engine *services.Engine, auth *services.AuthService, activity *services.ActivityRecorder) *AccountHandler {
	return &AccountHandler{
		engine:    engine,
		auth:      auth,
		activity:  activity,
		validator: services.NewValidationHelper(),
	}
}

// AmountRequest represents a deposit or withdrawal
// @Description Deposit/withdraw request structure
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"100.00"` // Positive amount, 2 decimal places max
}

// TransferRequest represents a transfer to another account holder
// @Description Transfer request structure
type TransferRequest struct {
	RecipientEmail string          `json:"recipient_email" validate:"required" example:"bob@example.com"` // Recipient login email
	Amount         decimal.Decimal `json:"amount" swaggertype:"string" example:"25.50"` // Positive amount, 2 decimal places max
}

// ChangePINRequest represents a PIN change
// @Description PIN change request structure
type ChangePINRequest struct {
	CurrentPIN string `json:"current_pin" validate:"required" example:"1234"`
	NewPIN     string `json:"new_pin" validate:"required" example:"5678"`
}

// OperationResponse is returned by every balance-changing endpoint
// @Description Balance operation result
type OperationResponse struct {
	Message    string          `json:"message"`
	NewBalance decimal.Decimal `json:"new_balance" swaggertype:"string"`
	Reference  string          `json:"reference"`
}

func (h *AccountHandler) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := mW.AccountIDFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return id, ok
}

// Me returns the authenticated account
// @Summary Get current account
// @Tags accounts
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Account
// @Router /accounts/me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	acc, err := h.engine.Account(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// Deposit credits the authenticated account
// @Summary Deposit funds
// @Tags accounts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body AmountRequest true "Deposit request"
// @Success 200 {object} OperationResponse
// @Failure 400 {object} services.ErrorResponse
// @Router /accounts/deposit [post]
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.Deposit(r.Context(), id, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResponse{
		Message:    "Deposit successful",
		NewBalance: res.NewBalance,
		Reference:  res.Reference.String(),
	})
}

// Withdraw debits the authenticated account
// @Summary Withdraw funds
// @Tags accounts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body AmountRequest true "Withdrawal request"
// @Success 200 {object} OperationResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 423 {object} services.ErrorResponse
// @Router /accounts/withdraw [post]
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.Withdraw(r.Context(), id, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResponse{
		Message:    "Withdrawal successful",
		NewBalance: res.NewBalance,
		Reference:  res.Reference.String(),
	})
}

// Transfer moves funds to another account holder by email
// @Summary Transfer funds
// @Tags accounts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body TransferRequest true "Transfer request"
// @Success 200 {object} OperationResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/transfer [post]
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	res, err := h.engine.Transfer(r.Context(), id, req.RecipientEmail, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResponse{
		Message:    "Transfer successful",
		NewBalance: res.NewBalance,
		Reference:  res.Reference.String(),
	})
}

// ChangePIN replaces the PIN of the authenticated account
// @Summary Change PIN
// @Tags accounts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ChangePINRequest true "PIN change request"
// @Success 200 {object} map[string]string
// @Failure 401 {object} services.ErrorResponse
// @Router /accounts/pin [put]
func (h *AccountHandler) ChangePIN(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req ChangePINRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.auth.ChangePIN(r.Context(), id, req.CurrentPIN, req.NewPIN); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "PIN changed successfully"})
}

// Transactions lists the ledger of the authenticated account
// @Summary Transaction history
// @Tags accounts
// @Security BearerAuth
// @Produce json
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD), inclusive"
// @Param type query string false "deposit, withdraw, transfer_out or transfer_in"
// @Param page query int false "Page number"
// @Param per_page query int false "Entries per page (max 100)"
// @Success 200 {object} models.LedgerPage
// @Router /accounts/me/transactions [get]
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	filter, err := parseLedgerFilter(r)
	if err != nil {
		log.Printf("[HTTP] bad history query for account %d: %v", id, err)
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	page, err := h.engine.History(r.Context(), id, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Activities lists recent security events of the authenticated account
// @Summary Activity log
// @Tags accounts
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Maximum entries (default 20, max 100)"
// @Success 200 {array} models.ActivityLogEntry
// @Router /accounts/me/activities [get]
func (h *AccountHandler) Activities(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := h.activity.Recent(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.ActivityLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseLedgerFilter(r *http.Request) (models.LedgerFilter, error) {
	q := r.URL.Query()
	filter := models.LedgerFilter{Type: models.EntryType(q.Get("type"))}

	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, errInvalidQuery("from")
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, errInvalidQuery("to")
		}
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}

	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		return filter, errInvalidQuery("page")
	}
	if filter.PerPage, err = intParam(q.Get("per_page")); err != nil {
		return filter, errInvalidQuery("per_page")
	}
	return filter, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string {
	return "invalid query parameter: " + string(e)
}
