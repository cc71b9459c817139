// AngelaMos | 2026
// handler.go

package license

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/license-gate/internal/account"
	"github.com/carterperez-dev/license-gate/internal/core"
	"github.com/carterperez-dev/license-gate/internal/middleware"
)

type ActivateRequest struct {
	Package        string     `json:"package"         validate:"required,max=64"`
	PeriodEnd      *time.Time `json:"period_end"`
	CustomerID     string     `json:"customer_id"     validate:"max=255"`
	SubscriptionID string     `json:"subscription_id" validate:"max=255"`
}

type Handler struct {
	machine   *Machine
	accounts  account.Repository
	validator *validator.Validate
}

func NewHandler(machine *Machine, accounts account.Repository) *Handler {
	return &Handler{
		machine:   machine,
		accounts:  accounts,
		validator: core.NewValidator(),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.With(authenticator).Get("/account/license", h.GetMine)

	r.Route("/admin/licenses", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Post("/{username}/activate", h.Activate)
		r.Post("/{username}/cancel", h.Cancel)
	})
}

func (h *Handler) GetMine(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.FindByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	core.OK(w, h.machine.Summary(acc))
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	acc, err := h.accounts.FindByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleError(w, err)
		return
	}

	updated, err := h.machine.Activate(r.Context(), acc, Activation{
		Package:        req.Package,
		CustomerID:     req.CustomerID,
		SubscriptionID: req.SubscriptionID,
		PeriodEnd:      req.PeriodEnd,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	core.OK(w, h.machine.Summary(updated))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.FindByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.machine.Cancel(r.Context(), acc, nil); err != nil {
		handleError(w, err)
		return
	}

	updated, err := h.accounts.FindByID(r.Context(), acc.ID)
	if err != nil {
		handleError(w, err)
		return
	}

	core.OK(w, h.machine.Summary(updated))
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "account")
	case errors.Is(err, ErrUnknownPackage):
		core.BadRequest(w, "unknown package")
	case errors.Is(err, ErrNotCancellable):
		core.JSONError(w, core.PolicyError(
			"license cannot be cancelled",
			"NOT_CANCELLABLE",
		))
	default:
		core.InternalServerError(w, err)
	}
}
