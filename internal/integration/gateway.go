package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/qoyod"
	"github.com/hallbook/hallbook/internal/tenant"
)

// Canonical service product. The fallback SKU is used when the canonical
// product tracks inventory and cannot be corrected.
const (
	ServiceProductSKU         = "HALL-BOOKING-SERVICE"
	ServiceProductFallbackSKU = "HALL-BOOKING-SERVICE-2"

	serviceProductNameEn = "Hall booking service"
	serviceProductNameAr = "خدمة حجز قاعة"
	serviceProductType   = "Service"
)

// ClientFactory builds a Qoyod client for one tenant's settings.
type ClientFactory func(settings tenant.AccountingSettings) *qoyod.Client

// SyncObserver counts sync attempts.
type SyncObserver interface {
	ObserveSync(recordType, status string)
}

// NewClientFactory returns a factory that applies timeout to every client.
// fallbackURL replaces the public default for tenants without a base URL.
func NewClientFactory(fallbackURL string, timeout time.Duration) ClientFactory {
	return func(s tenant.AccountingSettings) *qoyod.Client {
		baseURL := s.RemoteBaseURL()
		if s.BaseURL == "" && fallbackURL != "" {
			baseURL = fallbackURL
		}
		return qoyod.New(baseURL, s.APIKey, qoyod.WithTimeout(timeout))
	}
}

// Gateway mirrors local records into the tenant's Qoyod account. Every remote
// attempt appends exactly one sync log row.
type Gateway struct {
	store     Store
	settings  tenant.SettingsProvider
	newClient ClientFactory
	metrics   SyncObserver
	logger    *slog.Logger
	now       func() time.Time
}

// NewGateway constructs the gateway. metrics may be nil.
func NewGateway(store Store, settings tenant.SettingsProvider, newClient ClientFactory, metrics SyncObserver, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if newClient == nil {
		newClient = NewClientFactory("", qoyod.DefaultTimeout)
	}
	return &Gateway{
		store:     store,
		settings:  settings,
		newClient: newClient,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (g *Gateway) clientFor(ctx context.Context, ownerID int64) (*qoyod.Client, tenant.AccountingSettings, error) {
	s, err := g.settings.Accounting(ctx, ownerID)
	if err != nil {
		return nil, tenant.AccountingSettings{}, err
	}
	if !s.Enabled || s.APIKey == "" {
		return nil, s, ErrSyncDisabled
	}
	return g.newClient(s), s, nil
}

// attempt runs one remote operation and records its outcome.
func (g *Gateway) attempt(ctx context.Context, ownerID int64, syncType SyncType, recordType RecordType, recordID int64, fn func(ctx context.Context) (string, error)) (string, error) {
	started := g.now()
	traced, trace := qoyod.WithTrace(ctx)
	remoteID, err := fn(traced)

	entry := SyncLog{
		OwnerID:     ownerID,
		SyncType:    syncType,
		RecordType:  recordType,
		RecordID:    recordID,
		Status:      SyncSuccess,
		CreatedAt:   started,
		CompletedAt: g.now(),
	}
	entry.RequestPayload, entry.ResponsePayload = trace.Payloads()
	if remoteID != "" {
		entry.QoyodID = &remoteID
	}
	if err != nil {
		entry.Status = SyncFailure
		entry.ErrorMessage = err.Error()
	}
	if logErr := g.store.InsertLog(context.WithoutCancel(ctx), entry); logErr != nil {
		g.logger.Error("write sync log", slog.String("record_type", string(recordType)),
			slog.Int64("record_id", recordID), slog.Any("error", logErr))
	}
	if g.metrics != nil {
		g.metrics.ObserveSync(string(recordType), string(entry.Status))
	}
	if err != nil {
		g.logger.Warn("accounting sync failed", slog.Int64("owner_id", ownerID),
			slog.String("record_type", string(recordType)), slog.Int64("record_id", recordID),
			slog.Any("error", err))
		return "", err
	}
	return remoteID, nil
}

// SyncCustomer returns the customer's remote id, creating the remote contact
// when needed. A stored remote id is returned without any remote call.
func (g *Gateway) SyncCustomer(ctx context.Context, ownerID, customerID int64) (string, error) {
	c, err := g.store.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return "", err
	}
	if id := c.RemoteID(); id != "" {
		return id, nil
	}
	client, _, err := g.clientFor(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return g.attempt(ctx, ownerID, SyncCreate, RecordCustomer, customerID, func(ctx context.Context) (string, error) {
		contact, err := client.FindCustomerByName(ctx, c.Name)
		if err != nil {
			return "", remoteErr(err)
		}
		if contact == nil {
			contact, err = client.CreateCustomer(ctx, contactInput(c))
			if err != nil {
				return "", remoteErr(err)
			}
		}
		remoteID := contact.ID.String()
		return remoteID, g.store.MarkCustomerSynced(ctx, ownerID, customerID, remoteID, g.now())
	})
}

// GetOrCreateServiceProduct resolves the non-inventory product every invoice
// line points at. A canonical product that tracks quantity is corrected; when
// the correction fails a fallback product is used instead.
func (g *Gateway) GetOrCreateServiceProduct(ctx context.Context, client *qoyod.Client) (qoyod.ID, error) {
	p, err := client.FindProductBySKU(ctx, ServiceProductSKU)
	if err != nil {
		return "", remoteErr(err)
	}
	if p == nil {
		return g.createServiceProduct(ctx, client, ServiceProductSKU)
	}
	if !p.TrackQuantity {
		return p.ID, nil
	}
	_, err = client.UpdateProduct(ctx, p.ID, serviceProductInput(ServiceProductSKU, p.UnitTypeID))
	if err == nil {
		return p.ID, nil
	}
	g.logger.Warn("correct service product", slog.String("product_id", p.ID.String()), slog.Any("error", err))

	fallback, err := client.FindProductBySKU(ctx, ServiceProductFallbackSKU)
	if err != nil {
		return "", remoteErr(err)
	}
	if fallback != nil && !fallback.TrackQuantity {
		return fallback.ID, nil
	}
	return g.createServiceProduct(ctx, client, ServiceProductFallbackSKU)
}

func (g *Gateway) createServiceProduct(ctx context.Context, client *qoyod.Client, sku string) (qoyod.ID, error) {
	units, err := client.ListUnitTypes(ctx)
	if err != nil {
		return "", remoteErr(err)
	}
	var unit qoyod.ID
	if len(units) > 0 {
		unit = units[0].ID
	}
	p, err := client.CreateProduct(ctx, serviceProductInput(sku, unit))
	if err != nil {
		return "", remoteErr(err)
	}
	return p.ID, nil
}

func serviceProductInput(sku string, unit qoyod.ID) qoyod.ProductInput {
	return qoyod.ProductInput{
		SKU:           sku,
		NameAr:        serviceProductNameAr,
		NameEn:        serviceProductNameEn,
		ProductType:   serviceProductType,
		UnitTypeID:    unit,
		TrackQuantity: false,
		IsSold:        true,
		IsBought:      false,
		SellingPrice:  decimal.Zero,
	}
}

func firstInventory(ctx context.Context, client *qoyod.Client) (qoyod.ID, error) {
	inventories, err := client.ListInventories(ctx)
	if err != nil {
		return "", remoteErr(err)
	}
	if len(inventories) == 0 {
		return "", ErrNoInventory
	}
	return inventories[0].ID, nil
}

// pickAccount returns the configured account or the heuristic match.
func pickAccount(ctx context.Context, client *qoyod.Client, configured string, keywords []string) (qoyod.ID, bool, error) {
	if configured != "" {
		return qoyod.ID(configured), true, nil
	}
	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		return "", false, remoteErr(err)
	}
	a, ok := PickAccountByHeuristic(accounts, keywords)
	return a.ID, ok, nil
}

// SyncInvoice pushes the invoice as one service line priced at its subtotal.
// The customer is synced first. Payments are pushed separately.
func (g *Gateway) SyncInvoice(ctx context.Context, ownerID, invoiceID int64) (string, error) {
	inv, err := g.store.GetInvoice(ctx, ownerID, invoiceID)
	if err != nil {
		return "", err
	}
	if id := inv.RemoteID(); id != "" {
		return id, nil
	}
	if inv.Status == billing.StatusCancelled {
		return "", ErrRecordClosed
	}
	client, settings, err := g.clientFor(ctx, ownerID)
	if err != nil {
		return "", err
	}
	contactID, err := g.SyncCustomer(ctx, ownerID, inv.CustomerID)
	if err != nil {
		return "", err
	}
	return g.attempt(ctx, ownerID, SyncCreate, RecordInvoice, invoiceID, func(ctx context.Context) (string, error) {
		productID, err := g.GetOrCreateServiceProduct(ctx, client)
		if err != nil {
			return "", err
		}
		inventoryID, err := firstInventory(ctx, client)
		if err != nil {
			return "", err
		}
		salesAccount, _, err := pickAccount(ctx, client, settings.DefaultSalesAccountID, salesAccountKeywords)
		if err != nil {
			return "", err
		}
		doc, err := client.CreateInvoice(ctx, invoiceInput(inv, qoyod.ID(contactID), productID, inventoryID, salesAccount, settings.VATPercentage))
		if err != nil {
			return "", remoteErr(err)
		}
		remoteID := doc.ID.String()
		return remoteID, g.store.MarkInvoiceSynced(ctx, ownerID, invoiceID, remoteID, g.now())
	})
}

// SyncPayment pushes a payment against its already synced invoice.
func (g *Gateway) SyncPayment(ctx context.Context, ownerID, paymentID int64) (string, error) {
	p, err := g.store.GetPayment(ctx, ownerID, paymentID)
	if err != nil {
		return "", err
	}
	if id := p.RemoteID(); id != "" {
		return id, nil
	}
	if p.IsDeleted {
		return "", ErrRecordClosed
	}
	if p.InvoiceID == nil {
		return "", ErrInvoiceNotSynced
	}
	inv, err := g.store.GetInvoice(ctx, ownerID, *p.InvoiceID)
	if err != nil {
		return "", err
	}
	if inv.RemoteID() == "" {
		return "", ErrInvoiceNotSynced
	}
	client, settings, err := g.clientFor(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return g.attempt(ctx, ownerID, SyncCreate, RecordPayment, paymentID, func(ctx context.Context) (string, error) {
		account, ok, err := pickAccount(ctx, client, settings.DefaultBankAccountID, bankAccountKeywords)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrNoBankAccount
		}
		doc, err := client.CreateInvoicePayment(ctx, paymentInput(p, qoyod.ID(inv.RemoteID()), account))
		if err != nil {
			return "", remoteErr(err)
		}
		remoteID := doc.ID.String()
		return remoteID, g.store.MarkPaymentSynced(ctx, ownerID, paymentID, remoteID, g.now())
	})
}

// IssueCreditNote reverses a synced invoice remotely and cancels it locally.
// The invoice row is kept with the credit note id and reason appended.
func (g *Gateway) IssueCreditNote(ctx context.Context, ownerID, invoiceID int64, reason string) (string, error) {
	inv, err := g.store.GetInvoice(ctx, ownerID, invoiceID)
	if err != nil {
		return "", err
	}
	if !inv.SyncedToQoyod || inv.RemoteID() == "" {
		return "", ErrMustSyncBeforeCreditNote
	}
	if inv.QoyodCreditNoteID != nil {
		return "", ErrCreditNoteExists
	}
	client, settings, err := g.clientFor(ctx, ownerID)
	if err != nil {
		return "", err
	}
	contactID, err := g.SyncCustomer(ctx, ownerID, inv.CustomerID)
	if err != nil {
		return "", err
	}
	return g.attempt(ctx, ownerID, SyncCreate, RecordCreditNote, invoiceID, func(ctx context.Context) (string, error) {
		productID, err := g.GetOrCreateServiceProduct(ctx, client)
		if err != nil {
			return "", err
		}
		inventoryID, err := firstInventory(ctx, client)
		if err != nil {
			return "", err
		}
		now := g.now()
		doc, err := client.CreateCreditNote(ctx, creditNoteInput(inv, qoyod.ID(contactID), productID, inventoryID, settings.VATPercentage, reason, now))
		if err != nil {
			return "", remoteErr(err)
		}
		remoteID := doc.ID.String()
		return remoteID, g.store.ApplyCreditNote(ctx, ownerID, invoiceID, remoteID, creditNoteRemark(remoteID, reason), now)
	})
}
