package credit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/credits-api/internal/middleware"
	"github.com/mwork/credits-api/internal/pkg/errorhandler"
	"github.com/mwork/credits-api/internal/pkg/response"
	"github.com/mwork/credits-api/internal/pkg/validator"
)

// Handler handles credit ledger HTTP requests
type Handler struct {
	svc Service
}

// NewHandler creates credit handler
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns the account ledger router. Every route is scoped to the
// account in the path and guarded by RequireAccountAccess.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Route("/{id}", func(r chi.Router) {
		r.Use(middleware.RequireAccountAccess("id"))

		r.Post("/grants", h.AddGrant)
		r.Post("/deductions", h.AddDeduction)
		r.Get("/balance", h.Balance)
		r.Get("/statement", h.Statement)
		r.Get("/events", h.Events)
	})

	return r
}

// AddGrant handles POST /accounts/{id}/grants
// @Summary Add credit grant
// @Tags Credit
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body AddGrantRequest true "Grant"
// @Success 201 {object} response.Response{data=GrantEvent}
// @Failure 400,401,403,422,500 {object} response.Response
// @Router /accounts/{id}/grants [post]
func (h *Handler) AddGrant(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}

	var req AddGrantRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	event, err := h.svc.AddGrant(r.Context(), accountID, req.Input())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.Created(w, event)
}

// AddDeduction handles POST /accounts/{id}/deductions
// @Summary Add credit deduction
// @Tags Credit
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body AddDeductionRequest true "Deduction"
// @Success 201 {object} response.Response{data=DeductionEvent}
// @Failure 400,401,403,422,500 {object} response.Response
// @Router /accounts/{id}/deductions [post]
func (h *Handler) AddDeduction(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}

	var req AddDeductionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	event, err := h.svc.AddDeduction(r.Context(), accountID, req.Input())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.Created(w, event)
}

// Balance handles GET /accounts/{id}/balance?at=
// @Summary Balance at a point in time
// @Tags Credit
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param at query int true "Timestamp"
// @Success 200 {object} response.Response{data=BalanceResponse}
// @Failure 400,401,403,500 {object} response.Response
// @Router /accounts/{id}/balance [get]
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	at, ok := atParam(w, r)
	if !ok {
		return
	}

	balance, err := h.svc.BalanceAt(r.Context(), accountID, at)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.OK(w, BalanceResponse{AccountID: accountID, At: at, Balance: balance})
}

// Statement handles GET /accounts/{id}/statement?at=
// @Summary Allocation breakdown at a point in time
// @Tags Credit
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param at query int true "Timestamp"
// @Success 200 {object} response.Response{data=AccountStatement}
// @Failure 400,401,403,500 {object} response.Response
// @Router /accounts/{id}/statement [get]
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	at, ok := atParam(w, r)
	if !ok {
		return
	}

	stmt, err := h.svc.StatementAt(r.Context(), accountID, at)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.OK(w, stmt)
}

// Events handles GET /accounts/{id}/events
// @Summary Stored grants and deductions
// @Tags Credit
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} response.Response{data=EventSet}
// @Failure 400,401,403,500 {object} response.Response
// @Router /accounts/{id}/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}

	set, err := h.svc.ListEvents(r.Context(), accountID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	response.OK(w, set)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidGrant), errors.Is(err, ErrInvalidDeduction):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrInvalidAccount):
		response.BadRequest(w, "Invalid account ID")
	default:
		errorhandler.HandleInternal(r.Context(), w, err)
	}
}

func accountParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || id == uuid.Nil {
		response.BadRequest(w, "Invalid account ID")
		return uuid.Nil, false
	}
	return id, true
}

func atParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		response.BadRequest(w, "Query parameter 'at' is required")
		return 0, false
	}
	at, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.BadRequest(w, "Query parameter 'at' must be an integer timestamp")
		return 0, false
	}
	return at, true
}
