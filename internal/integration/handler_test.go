package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/tenant"
)

func newTestHandler(t *testing.T) (http.Handler, *gatewayFixture, stubGate) {
	t.Helper()
	f := newGatewayFixture(t)
	gate := stubGate{denied: map[int64]bool{}}
	h := NewHandler(slog.New(slog.DiscardHandler), f.gw, f.store, gate)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, f, gate
}

func call(h http.Handler, method, path, body string, owner int64, lang string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	if owner != 0 {
		req = req.WithContext(tenant.WithIdentity(req.Context(), tenant.Identity{UserID: owner, Role: tenant.RoleOwner}))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestManualSyncEndpoints(t *testing.T) {
	h, f, _ := newTestHandler(t)
	c := f.store.addCustomer(ownerA, "Sara")
	inv := f.store.addInvoice(ownerA, c.ID, "5000")

	rr := call(h, http.MethodPost, "/accounting/sync/invoices/"+itoa(inv.ID), "", ownerA, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res SyncResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, RecordInvoice, res.RecordType)
	assert.NotEmpty(t, res.QoyodID)

	rr = call(h, http.MethodPost, "/accounting/sync/widgets/1", "", ownerA, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(h, http.MethodPost, "/accounting/sync/invoices/"+itoa(inv.ID), "", 0, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestManualSyncFailureIs502AndLocalized(t *testing.T) {
	h, f, _ := newTestHandler(t)
	c := f.store.addCustomer(ownerA, "Sara")
	inv := f.store.addInvoice(ownerA, c.ID, "5000")
	f.remote.fail("POST /invoices", http.StatusInternalServerError)

	rr := call(h, http.MethodPost, "/accounting/sync/invoices/"+itoa(inv.ID), "", ownerA, "ar")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "فشل الطلب إلى النظام المحاسبي")

	stored, _ := f.store.GetInvoice(t.Context(), ownerA, inv.ID)
	assert.False(t, stored.SyncedToQoyod)
	assert.Equal(t, billing.StatusPaid, stored.Status)
}

func TestCreditNoteEndpoint(t *testing.T) {
	h, f, gate := newTestHandler(t)
	c := f.store.addCustomer(ownerA, "Sara")
	inv := f.store.addInvoice(ownerA, c.ID, "5000")
	body := `{"invoice_id":` + itoa(inv.ID) + `,"reason":"event cancelled"}`

	rr := call(h, http.MethodPost, "/accounting/credit-notes", body, ownerA, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code, "unsynced invoice")
	assert.Zero(t, f.remote.callCount())

	f.store.markInvoiceRemote(inv.ID, "700")
	f.store.customers[c.ID].QoyodCustomerID = ptr("55")

	gate.denied[ownerA] = true
	rr = call(h, http.MethodPost, "/accounting/credit-notes", body, ownerA, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	delete(gate.denied, ownerA)

	rr = call(h, http.MethodPost, "/accounting/credit-notes", body, ownerA, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out struct {
		CreditNoteID string          `json:"qoyod_credit_note_id"`
		Invoice      billing.Invoice `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.NotEmpty(t, out.CreditNoteID)
	assert.Equal(t, billing.StatusCancelled, out.Invoice.Status)

	rr = call(h, http.MethodPost, "/accounting/credit-notes", `{"invoice_id":0}`, ownerA, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSyncLogsEndpoint(t *testing.T) {
	h, f, _ := newTestHandler(t)
	c := f.store.addCustomer(ownerA, "Sara")
	other := f.store.addCustomer(ownerB, "Omar")
	f.settings[ownerB] = enabledSettings(f.remote.srv.URL)
	_, err := f.gw.SyncCustomer(t.Context(), ownerA, c.ID)
	require.NoError(t, err)
	_, err = f.gw.SyncCustomer(t.Context(), ownerB, other.ID)
	require.NoError(t, err)

	rr := call(h, http.MethodGet, "/accounting/sync-logs?record_type=customers&record_id="+itoa(c.ID), "", ownerA, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Data []SyncLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, RecordCustomer, out.Data[0].RecordType)
	assert.Equal(t, c.ID, out.Data[0].RecordID)

	rr = call(h, http.MethodGet, "/accounting/sync-logs?record_type=nope", "", ownerA, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
