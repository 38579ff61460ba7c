package billing

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/sequence"
)

// memRepo is an in-memory Repository. WithTx restores the previous state
// when fn fails.
type memRepo struct {
	mu       sync.Mutex
	bookings map[int64]*BookingRef
	invoices map[int64]*Invoice
	payments map[int64]*Payment
	nextID   int64

	failInsertPayment error
}

func newMemRepo() *memRepo {
	return &memRepo{
		bookings: map[int64]*BookingRef{},
		invoices: map[int64]*Invoice{},
		payments: map[int64]*Payment{},
	}
}

func (m *memRepo) addBooking(b BookingRef) {
	m.bookings[b.ID] = &b
}

func (m *memRepo) snapshot() (map[int64]*Invoice, map[int64]*Payment) {
	invs := make(map[int64]*Invoice, len(m.invoices))
	for k, v := range m.invoices {
		c := *v
		invs[k] = &c
	}
	pays := make(map[int64]*Payment, len(m.payments))
	for k, v := range m.payments {
		c := *v
		pays[k] = &c
	}
	return invs, pays
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	invs, pays := m.snapshot()
	nextID := m.nextID
	m.mu.Unlock()
	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.invoices, m.payments, m.nextID = invs, pays, nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) NextNumber(ctx context.Context, kind sequence.Kind, year int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sequence.NewGenerator(finderFunc(func(prefix string) string {
		best := ""
		consider := func(n string) {
			if len(n) > len(prefix) && n[:len(prefix)] == prefix && (len(n) > len(best) || (len(n) == len(best) && n > best)) {
				best = n
			}
		}
		for _, inv := range m.invoices {
			consider(inv.Number)
		}
		for _, p := range m.payments {
			consider(p.Number)
		}
		return best
	})).Next(ctx, kind, year)
}

type finderFunc func(prefix string) string

func (f finderFunc) MaxNumber(_ context.Context, _ sequence.Kind, prefix string) (string, error) {
	return f(prefix), nil
}

func (m *memRepo) InsertInvoice(_ context.Context, inv Invoice) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inv.ID = m.nextID
	m.invoices[inv.ID] = &inv
	out := inv
	return &out, nil
}

func (m *memRepo) InsertPayment(_ context.Context, p Payment) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertPayment != nil {
		return nil, m.failInsertPayment
	}
	m.nextID++
	p.ID = m.nextID
	m.payments[p.ID] = &p
	out := p
	return &out, nil
}

func (m *memRepo) LockBooking(_ context.Context, ownerID, bookingID int64) (*BookingRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.OwnerID != ownerID {
		return nil, ErrBookingNotFound
	}
	out := *b
	return &out, nil
}

func (m *memRepo) InvoicedTotal(_ context.Context, ownerID, bookingID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, inv := range m.invoices {
		if inv.OwnerID == ownerID && inv.BookingID == bookingID && inv.Status != StatusCancelled {
			total = total.Add(inv.TotalAmount)
		}
	}
	return total, nil
}

func (m *memRepo) GetInvoice(_ context.Context, ownerID, id int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.OwnerID != ownerID {
		return nil, ErrInvoiceNotFound
	}
	out := *inv
	return &out, nil
}

func (m *memRepo) LockInvoice(ctx context.Context, ownerID, id int64) (*Invoice, error) {
	return m.GetInvoice(ctx, ownerID, id)
}

func (m *memRepo) SumActivePayments(_ context.Context, ownerID, invoiceID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, p := range m.payments {
		if p.OwnerID == ownerID && p.InvoiceID != nil && *p.InvoiceID == invoiceID && !p.IsDeleted {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (m *memRepo) UpdateInvoicePaid(_ context.Context, ownerID, id int64, paid decimal.Decimal, status InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.OwnerID != ownerID {
		return ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.Status = status
	return nil
}

func (m *memRepo) CancelInvoice(_ context.Context, ownerID, id int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.OwnerID != ownerID {
		return ErrInvoiceNotFound
	}
	inv.Status = StatusCancelled
	inv.Notes = note
	return nil
}

func (m *memRepo) GetPayment(_ context.Context, ownerID, id int64) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

func (m *memRepo) SoftDeletePayment(_ context.Context, ownerID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.OwnerID != ownerID || p.IsDeleted {
		return ErrPaymentNotFound
	}
	p.IsDeleted = true
	return nil
}

func (m *memRepo) ListInvoices(_ context.Context, ownerID, bookingID int64) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.OwnerID == ownerID && (bookingID == 0 || inv.BookingID == bookingID) {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) ListPayments(_ context.Context, ownerID int64, f PaymentFilter) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.payments {
		if p.OwnerID != ownerID || (!f.IncludeDeleted && p.IsDeleted) {
			continue
		}
		if f.BookingID > 0 && p.BookingID != f.BookingID {
			continue
		}
		if f.InvoiceID > 0 && (p.InvoiceID == nil || *p.InvoiceID != f.InvoiceID) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// recordingHooks captures sync notifications.
type recordingHooks struct {
	mu       sync.Mutex
	invoices []int64
	payments []int64
}

func (h *recordingHooks) InvoiceCreated(_ context.Context, _ int64, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invoices = append(h.invoices, id)
}

func (h *recordingHooks) PaymentCreated(_ context.Context, _ int64, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payments = append(h.payments, id)
}

type stubGate struct{ allowed bool }

func (g stubGate) IsWriteAllowed(context.Context, int64) (bool, error) { return g.allowed, nil }
