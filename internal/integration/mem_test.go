package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/money"
	"github.com/hallbook/hallbook/internal/qoyod"
)

const (
	ownerA int64 = 100
	ownerB int64 = 200
)

// memStore implements Store and Outbox.
type memStore struct {
	mu        sync.Mutex
	customers map[int64]*customers.Customer
	invoices  map[int64]*billing.Invoice
	payments  map[int64]*billing.Payment
	logs      []SyncLog
	jobs      map[int64]*Job
	nextID    int64
	now       time.Time
}

func newMemStore() *memStore {
	return &memStore{
		customers: map[int64]*customers.Customer{},
		invoices:  map[int64]*billing.Invoice{},
		payments:  map[int64]*billing.Payment{},
		jobs:      map[int64]*Job{},
		now:       time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addCustomer(owner int64, name string) *customers.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &customers.Customer{ID: m.nextID, OwnerID: owner, Name: name, Phone: "0500000001"}
	m.customers[c.ID] = c
	return c
}

func (m *memStore) addInvoice(owner, customerID int64, total string) *billing.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	amount := decimal.RequireFromString(total)
	split := money.SplitInclusive(amount, decimal.NewFromInt(15)).Rounded()
	inv := &billing.Invoice{
		ID:          m.nextID,
		OwnerID:     owner,
		Number:      fmt.Sprintf("INV-2025-%04d", m.nextID),
		BookingID:   1,
		CustomerID:  customerID,
		Subtotal:    split.Subtotal,
		VATAmount:   split.VAT,
		TotalAmount: amount,
		PaidAmount:  amount,
		VATMethod:   money.VATInclusive,
		Status:      billing.StatusPaid,
		IssueDate:   m.now,
		DueDate:     m.now,
	}
	m.invoices[inv.ID] = inv
	return inv
}

func (m *memStore) addPayment(owner, invoiceID int64, amount string) *billing.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := &billing.Payment{
		ID:          m.nextID,
		OwnerID:     owner,
		Number:      fmt.Sprintf("PAY-2025-%04d", m.nextID),
		BookingID:   1,
		InvoiceID:   &invoiceID,
		Amount:      decimal.RequireFromString(amount),
		Method:      billing.MethodCash,
		PaymentDate: m.now,
	}
	m.payments[p.ID] = p
	return p
}

func (m *memStore) markInvoiceRemote(id int64, remoteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[id].QoyodInvoiceID = &remoteID
	m.invoices[id].SyncedToQoyod = true
}

func (m *memStore) GetCustomer(_ context.Context, owner, id int64) (*customers.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.OwnerID != owner {
		return nil, customers.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) MarkCustomerSynced(_ context.Context, owner, id int64, remoteID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.OwnerID != owner {
		return customers.ErrNotFound
	}
	c.QoyodCustomerID, c.SyncedToQoyod, c.LastSyncAt = &remoteID, true, &at
	return nil
}

func (m *memStore) GetInvoice(_ context.Context, owner, id int64) (*billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.OwnerID != owner {
		return nil, billing.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memStore) MarkInvoiceSynced(_ context.Context, owner, id int64, remoteID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.OwnerID != owner {
		return billing.ErrInvoiceNotFound
	}
	inv.QoyodInvoiceID, inv.SyncedToQoyod, inv.LastSyncAt = &remoteID, true, &at
	return nil
}

func (m *memStore) ApplyCreditNote(_ context.Context, owner, id int64, remoteID, note string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.OwnerID != owner {
		return billing.ErrInvoiceNotFound
	}
	inv.Status = billing.StatusCancelled
	inv.QoyodCreditNoteID = &remoteID
	if inv.Notes == "" {
		inv.Notes = note
	} else {
		inv.Notes += "\n" + note
	}
	inv.LastSyncAt = &at
	return nil
}

func (m *memStore) GetPayment(_ context.Context, owner, id int64) (*billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.OwnerID != owner {
		return nil, billing.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) InvoicePayments(_ context.Context, owner, invoiceID int64) ([]billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.Payment
	for _, p := range m.payments {
		if p.OwnerID == owner && p.InvoiceID != nil && *p.InvoiceID == invoiceID && !p.IsDeleted {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) MarkPaymentSynced(_ context.Context, owner, id int64, remoteID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.OwnerID != owner {
		return billing.ErrPaymentNotFound
	}
	p.QoyodPaymentID, p.SyncedToQoyod, p.LastSyncAt = &remoteID, true, &at
	return nil
}

func (m *memStore) InsertLog(_ context.Context, e SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, e)
	return nil
}

func (m *memStore) ListLogs(_ context.Context, owner int64, f LogFilter) ([]SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SyncLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		e := m.logs[i]
		if e.OwnerID != owner {
			continue
		}
		if f.RecordType != "" && e.RecordType != f.RecordType {
			continue
		}
		if f.RecordID > 0 && e.RecordID != f.RecordID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) logsFor(rt RecordType) []SyncLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SyncLog
	for _, e := range m.logs {
		if e.RecordType == rt {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) InsertJob(_ context.Context, owner int64, rt RecordType, recordID int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.OwnerID == owner && j.RecordType == rt && j.RecordID == recordID {
			if j.Status != JobFailed {
				return 0, false, nil
			}
			j.Status, j.AvailableAt = JobPending, m.now
			return j.ID, true, nil
		}
	}
	m.nextID++
	m.jobs[m.nextID] = &Job{ID: m.nextID, OwnerID: owner, RecordType: rt, RecordID: recordID,
		Status: JobPending, AvailableAt: m.now, CreatedAt: m.now, UpdatedAt: m.now}
	return m.nextID, true, nil
}

func (m *memStore) GetJob(_ context.Context, id int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) DueJobs(_ context.Context, now time.Time, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		due := j.Status == JobPending || (j.Status == JobFailed && j.Attempts < MaxJobAttempts)
		if due && !j.AvailableAt.After(now) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkDispatched(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && (j.Status == JobPending || j.Status == JobFailed) {
		j.Status = JobDispatched
	}
	return nil
}

func (m *memStore) CompleteJob(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status, j.LastError = JobDone, ""
	j.Attempts++
	return nil
}

func (m *memStore) FailJob(_ context.Context, id int64, status JobStatus, msg string, retryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status, j.LastError, j.AvailableAt = status, msg, retryAt
	j.Attempts++
	return nil
}

func (m *memStore) job(rt RecordType, recordID int64) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.RecordType == rt && j.RecordID == recordID {
			cp := *j
			return &cp
		}
	}
	return nil
}

// fakeQoyod is an in-process stand-in for the Qoyod API.
type fakeQoyod struct {
	mu          sync.Mutex
	calls       []string
	bodies      map[string][]byte
	contacts    map[string]string
	products    map[string]qoyod.Product
	accounts    []qoyod.Account
	inventories []qoyod.Inventory
	failures    map[string]int
	nextID      int
	srv         *httptest.Server
}

func newFakeQoyod(t *testing.T) *fakeQoyod {
	t.Helper()
	f := &fakeQoyod{
		bodies:   map[string][]byte{},
		contacts: map[string]string{},
		products: map[string]qoyod.Product{},
		accounts: []qoyod.Account{
			{ID: "1", NameEn: "Accounts Receivable", NameAr: "الذمم المدينة"},
			{ID: "2", NameEn: "Main Bank", NameAr: "البنك"},
			{ID: "3", NameEn: "Petty Cash", NameAr: "الصندوق"},
			{ID: "4", NameEn: "Service Revenue", NameAr: "إيرادات الخدمات"},
		},
		inventories: []qoyod.Inventory{{ID: "9", NameEn: "Main"}},
		failures:    map[string]int{},
		nextID:      1000,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeQoyod) fail(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = status
}

func (f *fakeQoyod) product(sku string) (qoyod.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[sku]
	return p, ok
}

func (f *fakeQoyod) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeQoyod) called(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == route {
			n++
		}
	}
	return n
}

func (f *fakeQoyod) body(route string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]any
	_ = json.Unmarshal(f.bodies[route], &out)
	return out
}

func (f *fakeQoyod) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	route := r.Method + " " + r.URL.Path
	if strings.HasPrefix(r.URL.Path, "/products/") && r.Method == http.MethodPut {
		route = "PUT /products/{id}"
	}
	f.calls = append(f.calls, route)
	body, _ := io.ReadAll(r.Body)
	if len(body) > 0 {
		f.bodies[route] = body
	}
	if status, ok := f.failures[route]; ok {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"message":"rejected"}`)
		return
	}
	reply := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	newID := func() int {
		f.nextID++
		return f.nextID
	}

	switch route {
	case "GET /customers":
		id, ok := f.contacts[r.URL.Query().Get("q[name_eq]")]
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		reply(map[string]any{"customers": []map[string]any{{"id": json.Number(id), "name": r.URL.Query().Get("q[name_eq]")}}})
	case "POST /customers":
		var in struct {
			Contact qoyod.ContactInput `json:"contact"`
		}
		_ = json.Unmarshal(body, &in)
		id := newID()
		f.contacts[in.Contact.Name] = fmt.Sprint(id)
		reply(map[string]any{"contact": map[string]any{"id": id, "name": in.Contact.Name}})
	case "GET /products":
		p, ok := f.products[r.URL.Query().Get("q[sku_eq]")]
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		reply(map[string]any{"products": []qoyod.Product{p}})
	case "POST /products":
		var in struct {
			Product qoyod.ProductInput `json:"product"`
		}
		_ = json.Unmarshal(body, &in)
		p := qoyod.Product{ID: qoyod.ID(fmt.Sprint(newID())), SKU: in.Product.SKU, TrackQuantity: in.Product.TrackQuantity}
		f.products[p.SKU] = p
		reply(map[string]any{"product": p})
	case "PUT /products/{id}":
		var in struct {
			Product qoyod.ProductInput `json:"product"`
		}
		_ = json.Unmarshal(body, &in)
		p := f.products[in.Product.SKU]
		p.TrackQuantity = in.Product.TrackQuantity
		f.products[in.Product.SKU] = p
		reply(map[string]any{"product": p})
	case "GET /accounts":
		reply(map[string]any{"accounts": f.accounts})
	case "GET /product_unit_types":
		reply(map[string]any{"product_unit_types": []qoyod.UnitType{{ID: "5", Name: "Service"}}})
	case "GET /inventories":
		reply(map[string]any{"inventories": f.inventories})
	case "POST /invoices":
		reply(map[string]any{"invoice": map[string]any{"id": newID(), "status": "Approved"}})
	case "POST /invoice_payments":
		reply(map[string]any{"invoice_payment": map[string]any{"id": newID()}})
	case "POST /credit_notes":
		reply(map[string]any{"credit_note": map[string]any{"id": newID()}})
	default:
		http.NotFound(w, r)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingObserver) ObserveSync(recordType, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[recordType+"/"+status]++
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	ids      []int64
	attempts []int
	fail     error
}

func (e *recordingEnqueuer) EnqueueSync(_ context.Context, jobID int64, attempt int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.ids = append(e.ids, jobID)
	e.attempts = append(e.attempts, attempt)
	return nil
}

func (e *recordingEnqueuer) enqueuedAttempts() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.attempts...)
}

func (e *recordingEnqueuer) enqueued() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.ids...)
}

type stubGate struct {
	denied map[int64]bool
}

func (g stubGate) IsWriteAllowed(_ context.Context, owner int64) (bool, error) {
	return !g.denied[owner], nil
}

func ptr[T any](v T) *T { return &v }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
