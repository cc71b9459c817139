// AngelaMos | 2026
// handler.go

package account

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/license-gate/internal/core"
	"github.com/carterperez-dev/license-gate/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.With(authenticator).Get("/account", h.GetMe)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetUserID(r.Context())

	acc, err := h.service.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToAccountResponse(acc))
}
