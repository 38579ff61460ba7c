package qoyod

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ID is a remote identifier. The API returns numbers; they are kept as text.
type ID string

// UnmarshalJSON accepts both JSON numbers and strings.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	*id = ID(strings.Trim(s, `"`))
	return nil
}

// String returns the raw identifier.
func (id ID) String() string { return string(id) }

// Contact is a customer or vendor.
type Contact struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Email        string `json:"email,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Status       string `json:"status,omitempty"`
}

// ContactInput creates a contact.
type ContactInput struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Email        string `json:"email,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	TaxNumber    string `json:"tax_number,omitempty"`
	Status       string `json:"status"`
}

// Product is a sellable item or service.
type Product struct {
	ID            ID     `json:"id"`
	SKU           string `json:"sku"`
	NameAr        string `json:"name_ar"`
	NameEn        string `json:"name_en"`
	ProductType   string `json:"type,omitempty"`
	TrackQuantity bool   `json:"track_quantity"`
	UnitTypeID    ID     `json:"unit_type_id,omitempty"`
}

// ProductInput creates or updates a product.
type ProductInput struct {
	SKU           string          `json:"sku"`
	NameAr        string          `json:"name_ar"`
	NameEn        string          `json:"name_en"`
	ProductType   string          `json:"product_type"`
	UnitTypeID    ID              `json:"unit_type_id,omitempty"`
	TrackQuantity bool            `json:"track_quantity"`
	IsSold        bool            `json:"is_sold"`
	IsBought      bool            `json:"is_bought"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	TaxID         ID              `json:"tax_id,omitempty"`
}

// Account is a chart-of-accounts entry.
type Account struct {
	ID     ID     `json:"id"`
	NameEn string `json:"name_en"`
	NameAr string `json:"name_ar"`
	Type   string `json:"type,omitempty"`
	Code   string `json:"code,omitempty"`
}

// UnitType is a product unit of measure.
type UnitType struct {
	ID   ID     `json:"id"`
	Name string `json:"unit_name"`
}

// Inventory is a remote warehouse.
type Inventory struct {
	ID     ID     `json:"id"`
	NameEn string `json:"name_en"`
	NameAr string `json:"name_ar"`
}

// LineItem is one row of an invoice or credit note.
type LineItem struct {
	ProductID    ID              `json:"product_id"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountType string          `json:"discount_type"`
	TaxPercent   decimal.Decimal `json:"tax_percent"`
	AccountID    ID              `json:"account_id,omitempty"`
}

// InvoiceInput creates a sales invoice.
type InvoiceInput struct {
	ContactID   ID         `json:"contact_id"`
	Reference   string     `json:"reference"`
	IssueDate   string     `json:"issue_date"`
	DueDate     string     `json:"due_date"`
	Status      string     `json:"status"`
	InventoryID ID         `json:"inventory_id"`
	Notes       string     `json:"notes,omitempty"`
	LineItems   []LineItem `json:"line_items"`
}

// PaymentInput records money received against an invoice.
type PaymentInput struct {
	Reference string          `json:"reference"`
	InvoiceID ID              `json:"invoice_id"`
	AccountID ID              `json:"account_id"`
	Date      string          `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
}

// CreditNoteInput reverses an invoice.
type CreditNoteInput struct {
	ContactID   ID         `json:"contact_id"`
	Reference   string     `json:"reference"`
	IssueDate   string     `json:"issue_date"`
	Status      string     `json:"status"`
	InventoryID ID         `json:"inventory_id"`
	ParentID    ID         `json:"parent_id"`
	Notes       string     `json:"notes,omitempty"`
	LineItems   []LineItem `json:"line_items"`
}

// Document is the minimal shape of a created invoice, payment or credit note.
type Document struct {
	ID        ID     `json:"id"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status,omitempty"`
}
