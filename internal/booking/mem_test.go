package booking

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/sequence"
)

// memRepo is an in-memory Repository covering bookings, customers and
// billing rows. WithTx restores every table when fn fails.
type memRepo struct {
	mu        sync.Mutex
	halls     map[int64]*Hall
	bookings  map[int64]*Booking
	history   []HistoryEntry
	customers map[int64]*customers.Customer
	invoices  map[int64]*billing.Invoice
	payments  map[int64]*billing.Payment
	nextID    int64

	failInsertInvoice error
}

func newMemRepo() *memRepo {
	return &memRepo{
		halls:     map[int64]*Hall{},
		bookings:  map[int64]*Booking{},
		customers: map[int64]*customers.Customer{},
		invoices:  map[int64]*billing.Invoice{},
		payments:  map[int64]*billing.Payment{},
	}
}

func (m *memRepo) addHall(h Hall) {
	h.IsActive = true
	m.halls[h.ID] = &h
}

type memState struct {
	bookings  map[int64]*Booking
	history   []HistoryEntry
	customers map[int64]*customers.Customer
	invoices  map[int64]*billing.Invoice
	payments  map[int64]*billing.Payment
	nextID    int64
}

func cloneMap[T any](in map[int64]*T) map[int64]*T {
	out := make(map[int64]*T, len(in))
	for k, v := range in {
		c := *v
		out[k] = &c
	}
	return out
}

func (m *memRepo) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memState{
		bookings:  cloneMap(m.bookings),
		history:   append([]HistoryEntry(nil), m.history...),
		customers: cloneMap(m.customers),
		invoices:  cloneMap(m.invoices),
		payments:  cloneMap(m.payments),
		nextID:    m.nextID,
	}
}

func (m *memRepo) restore(s memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings, m.history, m.customers = s.bookings, s.history, s.customers
	m.invoices, m.payments, m.nextID = s.invoices, s.payments, s.nextID
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	state := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(state)
		return err
	}
	return nil
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) Customers() customers.Store { return memCustomers{m} }

func (m *memRepo) Billing() billing.Writer { return memBilling{m} }

func (m *memRepo) GetHall(_ context.Context, ownerID, hallID int64) (*Hall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.halls[hallID]
	if !ok || h.OwnerID != ownerID || !h.IsActive {
		return nil, ErrHallNotFound
	}
	out := *h
	return &out, nil
}

func (m *memRepo) HallByToken(_ context.Context, token uuid.UUID) (*Hall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.halls {
		if h.PublicToken == token && h.IsActive {
			out := *h
			return &out, nil
		}
	}
	return nil, ErrHallNotFound
}

func (m *memRepo) InsertBooking(_ context.Context, b Booking) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.id()
	m.bookings[b.ID] = &b
	out := b
	return &out, nil
}

func (m *memRepo) AppendHistory(_ context.Context, h HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = int64(len(m.history) + 1)
	m.history = append(m.history, h)
	return nil
}

func (m *memRepo) GetBooking(_ context.Context, ownerID, id int64) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.OwnerID != ownerID {
		return nil, ErrBookingNotFound
	}
	out := *b
	return &out, nil
}

func (m *memRepo) LockBooking(ctx context.Context, ownerID, id int64) (*Booking, error) {
	return m.GetBooking(ctx, ownerID, id)
}

func (m *memRepo) SetStatus(_ context.Context, ownerID, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.OwnerID != ownerID {
		return ErrBookingNotFound
	}
	b.Status = status
	if status == StatusCancelled {
		b.IsDeleted = true
	}
	return nil
}

func (m *memRepo) UpdateBooking(_ context.Context, b Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[b.ID]
	if !ok || cur.OwnerID != b.OwnerID {
		return ErrBookingNotFound
	}
	*cur = b
	return nil
}

func (m *memRepo) InvoicedTotal(_ context.Context, ownerID, bookingID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, inv := range m.invoices {
		if inv.OwnerID == ownerID && inv.BookingID == bookingID && inv.Status != billing.StatusCancelled {
			total = total.Add(inv.TotalAmount)
		}
	}
	return total, nil
}

func (m *memRepo) GetCustomer(ctx context.Context, ownerID, id int64) (*customers.Customer, error) {
	return memCustomers{m}.Get(ctx, ownerID, id)
}

func (m *memRepo) ListBookings(_ context.Context, ownerID int64, f Filter) ([]Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Booking
	for _, b := range m.bookings {
		if b.OwnerID != ownerID || (b.IsDeleted && !f.IncludeDeleted) {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		all = append(all, *b)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if f.Offset < len(all) {
		all = all[f.Offset:]
	} else {
		all = nil
	}
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *memRepo) ListHistory(_ context.Context, ownerID, bookingID int64) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryEntry
	for _, h := range m.history {
		if h.OwnerID == ownerID && h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out, nil
}

// ListInvoices and ListPayments make memRepo a BillingReader too.
func (m *memRepo) ListInvoices(_ context.Context, ownerID, bookingID int64) ([]billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.Invoice
	for _, inv := range m.invoices {
		if inv.OwnerID == ownerID && inv.BookingID == bookingID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListPayments(_ context.Context, ownerID int64, f billing.PaymentFilter) ([]billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.Payment
	for _, p := range m.payments {
		if p.OwnerID == ownerID && p.BookingID == f.BookingID && !p.IsDeleted {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memCustomers struct{ m *memRepo }

func (c memCustomers) Get(_ context.Context, ownerID, id int64) (*customers.Customer, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	row, ok := c.m.customers[id]
	if !ok || row.OwnerID != ownerID {
		return nil, customers.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (c memCustomers) FindByPhoneOrNationalID(_ context.Context, ownerID int64, phone, nationalID string) (*customers.Customer, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	for _, row := range c.m.customers {
		if row.OwnerID == ownerID && phone != "" && row.Phone == phone {
			out := *row
			return &out, nil
		}
	}
	for _, row := range c.m.customers {
		if row.OwnerID == ownerID && nationalID != "" && row.NationalID != nil && *row.NationalID == nationalID {
			out := *row
			return &out, nil
		}
	}
	return nil, customers.ErrNotFound
}

func (c memCustomers) Create(_ context.Context, ownerID int64, d customers.Details) (*customers.Customer, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	row := &customers.Customer{ID: c.m.id(), OwnerID: ownerID, Name: d.Name, Phone: d.Phone}
	if d.NationalID != "" {
		nid := d.NationalID
		row.NationalID = &nid
	}
	c.m.customers[row.ID] = row
	out := *row
	return &out, nil
}

type memBilling struct{ m *memRepo }

func (b memBilling) NextNumber(ctx context.Context, kind sequence.Kind, year int) (string, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	return sequence.NewGenerator(finderFunc(func(prefix string) string {
		var numbers []string
		for _, bk := range b.m.bookings {
			numbers = append(numbers, bk.Number)
		}
		for _, inv := range b.m.invoices {
			numbers = append(numbers, inv.Number)
		}
		for _, p := range b.m.payments {
			numbers = append(numbers, p.Number)
		}
		best := ""
		for _, n := range numbers {
			if strings.HasPrefix(n, prefix) && (len(n) > len(best) || (len(n) == len(best) && n > best)) {
				best = n
			}
		}
		return best
	})).Next(ctx, kind, year)
}

func (b memBilling) InsertInvoice(_ context.Context, inv billing.Invoice) (*billing.Invoice, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	if b.m.failInsertInvoice != nil {
		return nil, b.m.failInsertInvoice
	}
	inv.ID = b.m.id()
	b.m.invoices[inv.ID] = &inv
	out := inv
	return &out, nil
}

func (b memBilling) InsertPayment(_ context.Context, p billing.Payment) (*billing.Payment, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	p.ID = b.m.id()
	b.m.payments[p.ID] = &p
	out := p
	return &out, nil
}

type finderFunc func(prefix string) string

func (f finderFunc) MaxNumber(_ context.Context, _ sequence.Kind, prefix string) (string, error) {
	return f(prefix), nil
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
