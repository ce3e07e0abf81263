package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/pos", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.Post("/", h.createPO)
		r.Get("/{id}", h.getPO)
		r.Put("/{id}", h.updatePO)
		r.Get("/{id}/remaining", h.remaining)
		r.Get("/{id}/draft-receipt", h.draftReceipt)
		r.Get("/{id}/history", h.history)
		r.Post("/{id}/approve", h.approvePO)
		r.Post("/{id}/status", h.overrideStatus)
		r.Post("/{id}/cancel", h.cancelPO)
	})
	r.Route("/grns", func(r chi.Router) {
		r.Get("/", h.listGRNs)
		r.Post("/", h.createGRN)
		r.Post("/validate", h.validateGRN)
		r.Get("/{id}", h.getGRN)
		r.Delete("/{id}", h.deleteGRN)
	})
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	filters := listFilters(r)
	filters.Incomplete, _ = strconv.ParseBool(r.URL.Query().Get("incomplete"))
	items, total, err := h.service.ListPOs(r.Context(), limit, offset, filters)
	if err != nil {
		h.writeError(w, r, "list POs", err)
		return
	}
	if items == nil {
		items = []POListItem{}
	}
	httpx.JSON(w, http.StatusOK, ListResponse[POListItem]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), req.toInput(actorID(r)))
	if err != nil {
		h.writeError(w, r, "create PO", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse(po))
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get PO", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(po))
}

func (h *Handler) updatePO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req OrderRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), id, req.toInput(actorID(r)))
	if err != nil {
		h.writeError(w, r, "update PO", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(po))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, r, "history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) remaining(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	lines, err := h.service.Remaining(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "remaining", err)
		return
	}
	out := make([]RemainingResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, RemainingResponse(l))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) draftReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.DraftReceipt(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "draft receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receiptResponse(0, "", receipt))
}

func (h *Handler) approvePO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.ApprovePurchaseOrder(r.Context(), id, actorID(r))
	if err != nil {
		h.writeError(w, r, "approve PO", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(po))
}

func (h *Handler) overrideStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	po, err := h.service.OverrideStatus(r.Context(), id, fulfillment.Status(req.Status), actorID(r))
	if err != nil {
		h.writeError(w, r, "override PO status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(po))
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.CancelPurchaseOrder(r.Context(), id, actorID(r))
	if err != nil {
		h.writeError(w, r, "cancel PO", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(po))
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	items, total, err := h.service.ListGRNs(r.Context(), limit, offset, listFilters(r))
	if err != nil {
		h.writeError(w, r, "list GRNs", err)
		return
	}
	if items == nil {
		items = []GRNListItem{}
	}
	httpx.JSON(w, http.StatusOK, ListResponse[GRNListItem]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), req.toInput(r.Header.Get("Idempotency-Key"), actorID(r)))
	if err != nil {
		h.writeError(w, r, "create GRN", err)
		return
	}
	resp := receiptResponse(grn.ID, grn.Number, grn.Receipt)
	resp.Totals = totalsResponse(grn.Totals)
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) validateGRN(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	result, err := h.service.ValidateGoodsReceipt(r.Context(), req.toInput("", actorID(r)))
	if err != nil {
		h.writeError(w, r, "validate GRN", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	grn, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get GRN", err)
		return
	}
	resp := receiptResponse(grn.ID, grn.Number, grn.Receipt)
	resp.Totals = totalsResponse(grn.Totals)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGoodsReceipt(r.Context(), id, actorID(r)); err != nil {
		h.writeError(w, r, "delete GRN", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var rejected *ReceiptRejectedError
	switch {
	case errors.As(err, &rejected):
		status := http.StatusUnprocessableEntity
		if errors.Is(err, ErrPrecondition) {
			status = http.StatusConflict
		}
		httpx.ProblemWithErrors(w, status, "Receipt Rejected", rejected.Result.String(), rejected.Result.Errors)
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrPrecondition):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrLocked), errors.Is(err, ErrConcurrentUpdate):
		httpx.Problem(w, http.StatusConflict, "Order Busy", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func listFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	vendorID, _ := strconv.ParseInt(q.Get("vendor_id"), 10, 64)
	return ListFilters{
		Status:   q.Get("status"),
		VendorID: vendorID,
		Search:   q.Get("search"),
		SortBy:   q.Get("sort"),
		SortDir:  q.Get("dir"),
	}
}

// actorID reads the acting user forwarded by the gateway. Authentication
// happens upstream.
func actorID(r *http.Request) int64 {
	return shared.ActorFromRequest(r)
}
