package booking

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hallbook/hallbook/internal/platform/httpx"
	"github.com/hallbook/hallbook/internal/shared"
	"github.com/hallbook/hallbook/internal/tenant"
)

// IdempotencyHeader carries the client's request key on POST /bookings.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyModule = "booking.create"

// IdempotencyGuard records processed request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler manages booking endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    IdempotencyGuard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyGuard) *Handler {
	return &Handler{logger: logger, service: service, idem: idem}
}

// MountRoutes registers the authenticated booking routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Get("/", h.listBookings)
		r.Post("/", h.createBooking)
		r.Get("/{id}", h.getBooking)
		r.Patch("/{id}", h.updateBooking)
		r.Delete("/{id}", h.cancelBooking)
		r.Post("/{id}/status", h.changeStatus)
		r.Get("/{id}/history", h.history)
	})
}

// MountPublicRoutes registers the self-service booking link.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/public/halls/{token}/bookings", h.createPublicBooking)
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.RespondError(w, r, tenant.ErrUnauthenticated)
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}

	var scoped string
	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" && h.idem != nil {
		scoped = strconv.FormatInt(actor.TenantID(), 10) + ":" + key
		if err := h.idem.CheckAndInsert(ctx, scoped, idempotencyModule); err != nil {
			h.fail(w, r, "idempotency check", err)
			return
		}
	}

	created, err := h.service.CreateBooking(ctx, actor, in)
	if err != nil {
		if scoped != "" {
			if delErr := h.idem.Delete(context.WithoutCancel(ctx), scoped, idempotencyModule); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.fail(w, r, "create booking", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) createPublicBooking(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		httpx.RespondError(w, r, ErrHallNotFound)
		return
	}
	var in PublicInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	created, err := h.service.CreatePublicBooking(r.Context(), token, in)
	if err != nil {
		h.fail(w, r, "create public booking", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"booking_number": created.Booking.Number,
		"status":         created.Booking.Status,
		"event_date":     created.Booking.EventDate.Format("2006-01-02"),
	})
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tenant.OwnerOf(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	f, err := filterFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	page, perPage := shared.PageFromRequest(r)
	pg := shared.NewPagination(page, perPage, 0)
	f.Limit, f.Offset = pg.PerPage, pg.Offset()

	items, total, err := h.service.ListBookings(r.Context(), ownerID, f)
	if err != nil {
		h.fail(w, r, "list bookings", err)
		return
	}
	if items == nil {
		items = []Booking{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func filterFromRequest(r *http.Request) (Filter, error) {
	var (
		f   Filter
		err error
	)
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		f.Status = Status(strings.ToUpper(raw))
		if !f.Status.IsValid() {
			return f, httpx.FieldErrors{"status": "is invalid"}
		}
	}
	if f.HallID, err = httpx.QueryID(r, "hall_id"); err != nil {
		return f, err
	}
	if f.CustomerID, err = httpx.QueryID(r, "customer_id"); err != nil {
		return f, err
	}
	if raw := q.Get("from"); raw != "" {
		d, err := parseDate("from", raw)
		if err != nil {
			return f, err
		}
		f.From = &d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := parseDate("to", raw)
		if err != nil {
			return f, err
		}
		f.To = &d
	}
	f.IncludeDeleted, _ = strconv.ParseBool(q.Get("include_deleted"))
	return f, nil
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
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
	detail, err := h.service.GetBooking(r.Context(), ownerID, id)
	if err != nil {
		h.fail(w, r, "get booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) updateBooking(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	b, err := h.service.UpdateBooking(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, r, "update booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	b, err := h.service.ChangeStatus(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, r, "change booking status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	b, err := h.service.CancelBooking(r.Context(), actor, id, r.URL.Query().Get("reason"))
	if err != nil {
		h.fail(w, r, "cancel booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
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
	entries, err := h.service.History(r.Context(), ownerID, id)
	if err != nil {
		h.fail(w, r, "booking history", err)
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (tenant.Identity, int64, bool) {
	actor, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, tenant.ErrUnauthenticated)
		return tenant.Identity{}, 0, false
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, err)
		return tenant.Identity{}, 0, false
	}
	return actor, id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, r, err)
}
