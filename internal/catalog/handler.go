package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
)

// Handler exposes the catalog lists.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/brands", h.listBrands)
	r.Post("/brands", h.addBrand)
	r.Delete("/brands/{brand}", h.removeBrand)
	r.Get("/brands/{brand}/models", h.listModels)
	r.Post("/brands/{brand}/models", h.addModel)
	r.Delete("/brands/{brand}/models/{model}", h.removeModel)
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.addCategory)
	r.Delete("/categories/{category}", h.removeCategory)
}

type nameRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type listResponse struct {
	Items []string `json:"items"`
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Brands(r.Context())
	h.respondList(w, r, items, err)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Categories(r.Context())
	h.respondList(w, r, items, err)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Models(r.Context(), param(r, "brand"))
	h.respondList(w, r, items, err)
}

func (h *Handler) addBrand(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	name, err := h.service.AddBrand(r.Context(), req.Name)
	h.respondCreated(w, r, name, err)
}

func (h *Handler) addCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	name, err := h.service.AddCategory(r.Context(), req.Name)
	h.respondCreated(w, r, name, err)
}

func (h *Handler) addModel(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	name, err := h.service.AddModel(r.Context(), param(r, "brand"), req.Name)
	h.respondCreated(w, r, name, err)
}

func (h *Handler) removeBrand(w http.ResponseWriter, r *http.Request) {
	h.respondDeleted(w, r, h.service.RemoveBrand(r.Context(), param(r, "brand")))
}

func (h *Handler) removeCategory(w http.ResponseWriter, r *http.Request) {
	h.respondDeleted(w, r, h.service.RemoveCategory(r.Context(), param(r, "category")))
}

func (h *Handler) removeModel(w http.ResponseWriter, r *http.Request) {
	h.respondDeleted(w, r, h.service.RemoveModel(r.Context(), param(r, "brand"), param(r, "model")))
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, items []string, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items})
}

func (h *Handler) respondCreated(w http.ResponseWriter, r *http.Request, name string, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, nameRequest{Name: name})
}

func (h *Handler) respondDeleted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidName):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func param(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
