package billing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hallbook/hallbook/internal/platform/httpx"
	"github.com/hallbook/hallbook/internal/tenant"
)

// Handler exposes invoice and payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice and payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Get("/{id}", h.getInvoice)
		r.Delete("/{id}", h.cancelInvoice)
		r.Post("/{id}/reconcile", h.reconcileInvoice)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/", h.recordPayment)
		r.Get("/{id}", h.getPayment)
		r.Delete("/{id}", h.deletePayment)
	})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var in CreateInvoiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	res, err := h.service.CreateInvoiceFromBooking(r.Context(), ownerID, in)
	if err != nil {
		h.fail(w, r, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	bookingID, err := httpx.QueryID(r, "booking_id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	items, err := h.service.ListInvoices(r.Context(), ownerID, bookingID)
	if err != nil {
		h.fail(w, r, "list invoices", err)
		return
	}
	if items == nil {
		items = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	detail, err := h.service.GetInvoice(r.Context(), ownerID, id)
	if err != nil {
		h.fail(w, r, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) reconcileInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	inv, err := h.service.ReconcileInvoice(r.Context(), ownerID, id)
	if err != nil {
		h.fail(w, r, "reconcile invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	inv, err := h.service.CancelInvoice(r.Context(), ownerID, id, r.URL.Query().Get("reason"))
	if err != nil {
		h.fail(w, r, "cancel invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var in RecordPaymentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	res, err := h.service.RecordPayment(r.Context(), ownerID, in)
	if err != nil {
		h.fail(w, r, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var filter PaymentFilter
	if filter.BookingID, err = httpx.QueryID(r, "booking_id"); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if filter.InvoiceID, err = httpx.QueryID(r, "invoice_id"); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	filter.IncludeDeleted, _ = strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	items, err := h.service.ListPayments(r.Context(), ownerID, filter)
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	if items == nil {
		items = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	pay, err := h.service.GetPayment(r.Context(), ownerID, id)
	if err != nil {
		h.fail(w, r, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pay)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	inv, err := h.service.DeletePayment(r.Context(), ownerID, id)
	if err != nil {
		h.fail(w, r, "delete payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "invoice": inv})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, r, err)
}
