// AngelaMos | 2026
// handler.go

package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/license-gate/internal/core"
)

const maxPayloadBytes = 1 << 16

type Handler struct {
	verifier  *Verifier
	processor *Processor
	logger    *slog.Logger
}

func NewHandler(verifier *Verifier, processor *Processor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		verifier:  verifier,
		processor: processor,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe/webhook", h.Receive)
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		core.BadRequest(w, "unreadable request body")
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get(SignatureHeader)); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature rejected", "error", err)
		core.JSONError(w, core.NewAppError(
			err,
			"invalid signature",
			http.StatusBadRequest,
			"INVALID_SIGNATURE",
		))
		return
	}

	evt, err := ParseEvent(payload)
	if err != nil {
		core.BadRequest(w, "malformed event")
		return
	}

	res, err := h.processor.Process(r.Context(), evt)
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			core.JSONError(w, core.NewAppError(
				core.ErrConflict,
				"event is already being processed",
				http.StatusConflict,
				"IN_FLIGHT",
			))
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"duplicate": res.Duplicate,
	})
}
