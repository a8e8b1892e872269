package intake

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/dispatch/internal/request"
	"github.com/kazz187/dispatch/pkg/cerr"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/intents", h.submit)
}

type submitRequest struct {
	Intent string `json:"intent"`
}

func (h *Handler) submit(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := request.UserID(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req submitRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := h.service.Submit(ctx, userID, req.Intent)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}
