// AngelaMos | 2026
// handler.go

package hwid

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

type ResetRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
}

type ResetResponse struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	NextResetFrom *time.Time `json:"next_reset_from,omitempty"`
}

type Handler struct {
	engine    *Engine
	accounts  account.Repository
	validator *validator.Validate
}

func NewHandler(engine *Engine, accounts account.Repository) *Handler {
	return &Handler{
		engine:    engine,
		accounts:  accounts,
		validator: core.NewValidator(),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.With(authenticator, adminOnly).Post("/reset-hwid", h.AdminReset)
	r.With(authenticator).Post("/account/reset-hwid", h.SelfReset)
}

func (h *Handler) AdminReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	acc, err := h.accounts.FindByUsername(r.Context(), req.Username)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.engine.Reset(r.Context(), acc); err != nil {
		handleError(w, err)
		return
	}

	core.JSON(w, http.StatusOK, ResetResponse{
		Success: true,
		Message: "hardware lock cleared for " + acc.Username,
	})
}

func (h *Handler) SelfReset(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.FindByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.engine.SelfReset(r.Context(), acc); err != nil {
		handleError(w, err)
		return
	}

	next := h.engine.NextSelfReset(acc)
	core.JSON(w, http.StatusOK, ResetResponse{
		Success:       true,
		Message:       "hardware lock cleared",
		NextResetFrom: &next,
	})
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "account")
	case errors.Is(err, ErrNotLocked):
		core.JSONError(w, core.PolicyError(
			"hardware id is not locked",
			"NOT_LOCKED",
		))
	case errors.Is(err, ErrCooldownActive):
		core.JSONError(w, core.PolicyError(
			err.Error(),
			"COOLDOWN_ACTIVE",
		))
	default:
		core.InternalServerError(w, err)
	}
}
