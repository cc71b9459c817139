// AngelaMos | 2026
// handler.go

package vouch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/license-gate/internal/core"
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
	authenticator, submitLimiter func(http.Handler) http.Handler,
) {
	r.Route("/vouches", func(r chi.Router) {
		r.Get("/", h.ListApproved)
		r.Get("/featured", h.ListFeatured)
		r.Get("/stats", h.Stats)
		r.With(authenticator, submitLimiter).Post("/", h.Submit)
	})
}

func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/vouches", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/pending", h.ListPending)
		r.Post("/{vouchID}/approve", h.Approve)
		r.Post("/{vouchID}/reject", h.Reject)
		r.Post("/{vouchID}/feature", h.ToggleFeatured)
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	id, err := h.service.Submit(r.Context(), SubmitInput{
		AuthorID:     middleware.GetUserID(r.Context()),
		TargetUserID: req.TargetUserID,
		Rating:       req.Rating,
		Message:      req.Message,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	core.Created(w, SubmitResponse{ID: id})
}

func (h *Handler) ListApproved(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntQuery(r, "limit", DefaultPageSize)

	page, err := h.service.ListApproved(
		r.Context(),
		q.Get("target"),
		q.Get("cursor"),
		limit,
	)
	if err != nil {
		handleError(w, err)
		return
	}

	core.CursorPage(
		w,
		ToVouchResponseList(page.Vouches),
		len(page.Vouches),
		clampLimit(limit),
		page.NextCursor,
	)
}

func (h *Handler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", DefaultPageSize)

	page, err := h.service.ListFeatured(r.Context(), limit)
	if err != nil {
		handleError(w, err)
		return
	}

	core.CursorPage(
		w,
		ToVouchResponseList(page.Vouches),
		len(page.Vouches),
		clampLimit(limit),
		page.NextCursor,
	)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		handleError(w, err)
		return
	}

	core.OK(w, stats)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	vouches, err := h.service.ListPending(
		r.Context(),
		parseIntQuery(r, "limit", DefaultPageSize),
	)
	if err != nil {
		handleError(w, err)
		return
	}

	core.OK(w, ToVouchResponseList(vouches))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vouchID")

	err := h.service.Approve(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}

	h.respondWithVouch(w, r, id)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			core.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	id := chi.URLParam(r, "vouchID")
	err := h.service.Reject(
		r.Context(),
		id,
		middleware.GetUserID(r.Context()),
		req.Reason,
	)
	if err != nil {
		handleError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) ToggleFeatured(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vouchID")

	featured, err := h.service.ToggleFeatured(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	core.OK(w, FeatureResponse{ID: id, Featured: featured})
}

func (h *Handler) respondWithVouch(w http.ResponseWriter, r *http.Request, id string) {
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	core.OK(w, ToVouchResponse(v))
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "vouch")
	case errors.Is(err, ErrValidation):
		core.BadRequest(w, strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "))
	case errors.Is(err, ErrInvalidCursor):
		core.BadRequest(w, "invalid cursor")
	case errors.Is(err, ErrNotApproved):
		core.JSONError(w, core.PolicyError(
			"vouch must be approved first",
			"NOT_APPROVED",
		))
	case errors.Is(err, ErrRejected):
		core.JSONError(w, core.PolicyError(
			"vouch was rejected",
			"REJECTED",
		))
	default:
		core.InternalServerError(w, err)
	}
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
