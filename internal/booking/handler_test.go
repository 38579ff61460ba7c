package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallbook/hallbook/internal/shared"
	"github.com/hallbook/hallbook/internal/tenant"
)

type memGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (g *memGuard) CheckAndInsert(_ context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = map[string]bool{}
	}
	if g.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	g.keys[module+":"+key] = true
	return nil
}

func (g *memGuard) Delete(_ context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, module+":"+key)
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *memRepo, *memGuard) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	guard := &memGuard{}
	h := NewHandler(slog.New(slog.DiscardHandler), svc, guard)
	r := chi.NewRouter()
	h.MountRoutes(r)
	h.MountPublicRoutes(r)
	return r, repo, guard
}

func doRequest(h http.Handler, method, path, body string, id *tenant.Identity, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if id != nil {
		req = req.WithContext(tenant.WithIdentity(context.Background(), *id))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const createBody = `{
	"customer": {"name": "Sara", "phone": "0500000001"},
	"hall_id": 11,
	"event_date": "2025-05-01",
	"start_time": "2025-05-01T18:00:00Z",
	"end_time": "2025-05-01T23:00:00Z",
	"guest_count": 120,
	"total_amount": "10000",
	"discount_amount": "500",
	"down_payment": "5000"
}`

func TestHandlerCreateBookingIsIdempotent(t *testing.T) {
	h, repo, _ := newTestRouter(t)
	key := map[string]string{IdempotencyHeader: "req-1"}

	rec := doRequest(h, http.MethodPost, "/bookings", createBody, &ownerOfA, key)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Created
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "BK-2025-0001", created.Booking.Number)
	assert.Equal(t, StatusConfirmed, created.Booking.Status)
	require.NotNil(t, created.Invoice)
	assert.Equal(t, "652.17", created.Invoice.VATAmount.String())

	rec = doRequest(h, http.MethodPost, "/bookings", createBody, &ownerOfA, key)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, repo.bookings, 1)

	// Keys are scoped per tenant.
	body := strings.Replace(createBody, `"hall_id": 11`, `"hall_id": 22`, 1)
	rec = doRequest(h, http.MethodPost, "/bookings", body, &ownerOfB, key)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerCreateBookingReleasesKeyOnFailure(t *testing.T) {
	h, repo, guard := newTestRouter(t)
	key := map[string]string{IdempotencyHeader: "req-2"}

	body := strings.Replace(createBody, `"down_payment": "5000"`, `"down_payment": "9999"`, 1)
	rec := doRequest(h, http.MethodPost, "/bookings", body, &ownerOfA, key)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, guard.keys)

	rec = doRequest(h, http.MethodPost, "/bookings", createBody, &ownerOfA, key)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, repo.bookings, 1)
}

func TestHandlerRequiresIdentity(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := doRequest(h, http.MethodPost, "/bookings", createBody, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doRequest(h, http.MethodGet, "/bookings", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerBookingLifecycle(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := doRequest(h, http.MethodPost, "/bookings", createBody, &ownerOfA, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/bookings?status=confirmed", "", &ownerOfA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []Booking         `json:"data"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Pagination.Total)
	id := page.Data[0].ID

	path := "/bookings/" + jsonID(id)
	rec = doRequest(h, http.MethodGet, path, "", &ownerOfB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(h, http.MethodPost, path+"/status", `{"status":"CHECKED_IN"}`, &ownerOfA, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doRequest(h, http.MethodPost, path+"/status", `{"status":"PENDING"}`, &ownerOfA, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(h, http.MethodDelete, path+"?reason=venue+closed", "", &ownerOfA, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(h, http.MethodGet, path+"/history", "", &ownerOfA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Data []HistoryEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Data, 3)
	assert.Equal(t, "venue closed", hist.Data[2].Note)

	rec = doRequest(h, http.MethodGet, "/bookings?status=nope", "", &ownerOfA, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPublicBooking(t *testing.T) {
	h, _, _ := newTestRouter(t)
	body := `{
		"customer": {"name": "Fahad", "phone": "0555555555"},
		"event_date": "2025-06-10",
		"start_time": "2025-06-10T19:00:00Z",
		"end_time": "2025-06-10T23:00:00Z",
		"guest_count": 80
	}`

	rec := doRequest(h, http.MethodPost, "/public/halls/"+hallToken.String()+"/bookings", body, nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "BK-2025-0001", res["booking_number"])
	assert.Equal(t, "PENDING", res["status"])
	assert.Equal(t, "2025-06-10", res["event_date"])

	rec = doRequest(h, http.MethodPost, "/public/halls/not-a-token/bookings", body, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
