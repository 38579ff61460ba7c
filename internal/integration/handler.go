package integration

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hallbook/hallbook/internal/platform/httpx"
	"github.com/hallbook/hallbook/internal/tenant"
)

// CreditNoteInput requests a credit note for a synced invoice.
type CreditNoteInput struct {
	InvoiceID int64  `json:"invoice_id" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

// SyncResult is returned by the manual sync endpoints.
type SyncResult struct {
	RecordType RecordType `json:"record_type"`
	RecordID   int64      `json:"record_id"`
	QoyodID    string     `json:"qoyod_id"`
}

// Handler exposes the accounting endpoints.
type Handler struct {
	logger  *slog.Logger
	gateway *Gateway
	store   Store
	gate    tenant.WriteGate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, gateway *Gateway, store Store, gate tenant.WriteGate) *Handler {
	return &Handler{logger: logger, gateway: gateway, store: store, gate: gate}
}

// MountRoutes registers the accounting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting", func(r chi.Router) {
		r.Post("/credit-notes", h.issueCreditNote)
		r.Post("/sync/{type}/{id}", h.syncRecord)
		r.Get("/sync-logs", h.listLogs)
	})
}

func (h *Handler) issueCreditNote(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var in CreditNoteInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := httpx.Validate(in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := tenant.EnsureWritable(r.Context(), h.gate, ownerID); err != nil {
		h.fail(w, r, "issue credit note", err)
		return
	}
	remoteID, err := h.gateway.IssueCreditNote(r.Context(), ownerID, in.InvoiceID, in.Reason)
	if err != nil {
		h.fail(w, r, "issue credit note", err)
		return
	}
	inv, err := h.store.GetInvoice(r.Context(), ownerID, in.InvoiceID)
	if err != nil {
		h.fail(w, r, "issue credit note", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"qoyod_credit_note_id": remoteID, "invoice": inv})
}

func (h *Handler) syncRecord(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	recordType, ok := ParseRecordType(chi.URLParam(r, "type"))
	if !ok {
		httpx.RespondError(w, r, httpx.FieldErrors{"type": "is invalid"})
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if err := tenant.EnsureWritable(r.Context(), h.gate, ownerID); err != nil {
		h.fail(w, r, "sync record", err)
		return
	}

	var sync func(context.Context, int64, int64) (string, error)
	switch recordType {
	case RecordCustomer:
		sync = h.gateway.SyncCustomer
	case RecordInvoice:
		sync = h.gateway.SyncInvoice
	case RecordPayment:
		sync = h.gateway.SyncPayment
	default:
		httpx.RespondError(w, r, httpx.FieldErrors{"type": "is invalid"})
		return
	}
	remoteID, err := sync(r.Context(), ownerID, id)
	if err != nil {
		h.fail(w, r, "sync record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, SyncResult{RecordType: recordType, RecordID: id, QoyodID: remoteID})
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	var f LogFilter
	if raw := r.URL.Query().Get("record_type"); raw != "" {
		rt, ok := ParseRecordType(raw)
		if !ok {
			httpx.RespondError(w, r, httpx.FieldErrors{"record_type": "is invalid"})
			return
		}
		f.RecordType = rt
	}
	if f.RecordID, err = httpx.QueryID(r, "record_id"); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}
	items, err := h.store.ListLogs(r.Context(), ownerID, f)
	if err != nil {
		h.fail(w, r, "list sync logs", err)
		return
	}
	if items == nil {
		items = []SyncLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status := httpx.StatusOf(err); status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, r, err)
}
