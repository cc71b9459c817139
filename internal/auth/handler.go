// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/license-gate/internal/account"
	"github.com/carterperez-dev/license-gate/internal/core"
	"github.com/carterperez-dev/license-gate/internal/hwid"
	"github.com/carterperez-dev/license-gate/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: core.NewValidator(),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, loginLimiter func(http.Handler) http.Handler,
) {
	r.With(loginLimiter).Post("/login", h.ClientLogin)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.With(loginLimiter).Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/me", h.GetMe)
			r.Post("/logout", h.Logout)
		})
	})
}

func (h *Handler) ClientLogin(w http.ResponseWriter, r *http.Request) {
	var req ClientLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeClientLogin(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.ClientLogin(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingFields):
			writeClientLogin(w, http.StatusBadRequest, "Missing username, password or hwid")
		case errors.Is(err, account.ErrInvalidCredentials):
			writeClientLogin(w, http.StatusUnauthorized, "Invalid username or password")
		case errors.Is(err, ErrNoActiveLicense):
			writeClientLogin(w, http.StatusForbidden, "No active subscription")
		case errors.Is(err, hwid.ErrHardwareMismatch):
			writeClientLogin(w, http.StatusForbidden, "Hardware ID mismatch")
		case errors.Is(err, core.ErrConflict):
			writeClientLogin(w, http.StatusConflict, "Hardware lock changed, please retry")
		default:
			core.JSONError(w, err)
		}
		return
	}

	message := "Login successful"
	if res.FirstUse {
		message = "Login successful, hardware locked to this device"
	}

	summary := res.Summary
	core.JSON(w, http.StatusOK, ClientLoginResponse{
		Success:      true,
		Message:      message,
		Username:     res.Account.Username,
		Subscription: &summary,
	})
}

func writeClientLogin(w http.ResponseWriter, status int, message string) {
	core.JSON(w, status, ClientLoginResponse{Message: message})
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.SignUp(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUsernameTaken):
			core.JSONError(w, core.DuplicateError("username"))
		case errors.Is(err, core.ErrInvalidInput):
			core.BadRequest(w, "invalid username or password")
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.Created(w, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			core.JSONError(
				w,
				core.UnauthorizedError("invalid username or password"),
			)
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), middleware.GetClaims(r.Context())); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetUserID(r.Context())
	if accountID == "" {
		core.Unauthorized(w, "")
		return
	}

	acc, err := h.service.GetCurrentAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "account")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, account.ToAccountResponse(acc))
}
