package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/customers"
	"github.com/hallbook/hallbook/internal/qoyod"
)

const (
	remoteDateLayout = "2006-01-02"
	remoteApproved   = "Approved"
	remoteActive     = "Active"
	discountFixed    = "amount"
)

// Account name keywords, in priority order.
var (
	bankAccountKeywords  = []string{"cash", "bank", "نقد", "بنك"}
	salesAccountKeywords = []string{"revenue", "sales", "إيراد", "مبيعات"}
)

// PickAccountByHeuristic returns the first account whose English or Arabic
// name contains the earliest listed keyword. Matching ignores case.
func PickAccountByHeuristic(accounts []qoyod.Account, keywords []string) (qoyod.Account, bool) {
	folder := cases.Fold()
	for _, kw := range keywords {
		needle := folder.String(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		for _, a := range accounts {
			if strings.Contains(folder.String(a.NameEn), needle) || strings.Contains(folder.String(a.NameAr), needle) {
				return a, true
			}
		}
	}
	return qoyod.Account{}, false
}

func remoteDate(t time.Time) string {
	return t.Format(remoteDateLayout)
}

func contactInput(c *customers.Customer) qoyod.ContactInput {
	in := qoyod.ContactInput{
		Name:        c.Name,
		PhoneNumber: c.Phone,
		Status:      remoteActive,
	}
	if c.Email != nil {
		in.Email = *c.Email
	}
	return in
}

func serviceLine(productID, accountID qoyod.ID, description string, amount, vatPercent decimal.Decimal) qoyod.LineItem {
	return qoyod.LineItem{
		ProductID:    productID,
		Description:  description,
		Quantity:     decimal.NewFromInt(1),
		UnitPrice:    amount,
		Discount:     decimal.Zero,
		DiscountType: discountFixed,
		TaxPercent:   vatPercent,
		AccountID:    accountID,
	}
}

func invoiceInput(inv *billing.Invoice, contactID, productID, inventoryID, accountID qoyod.ID, vatPercent decimal.Decimal) qoyod.InvoiceInput {
	return qoyod.InvoiceInput{
		ContactID:   contactID,
		Reference:   inv.Number,
		IssueDate:   remoteDate(inv.IssueDate),
		DueDate:     remoteDate(inv.DueDate),
		Status:      remoteApproved,
		InventoryID: inventoryID,
		Notes:       inv.Notes,
		LineItems: []qoyod.LineItem{
			serviceLine(productID, accountID, fmt.Sprintf("Hall booking %s", inv.Number), inv.Subtotal, vatPercent),
		},
	}
}

func paymentInput(p *billing.Payment, invoiceID, accountID qoyod.ID) qoyod.PaymentInput {
	return qoyod.PaymentInput{
		Reference: p.Number,
		InvoiceID: invoiceID,
		AccountID: accountID,
		Date:      remoteDate(p.PaymentDate),
		Amount:    p.Amount,
	}
}

func creditNoteInput(inv *billing.Invoice, contactID, productID, inventoryID qoyod.ID, vatPercent decimal.Decimal, reason string, issued time.Time) qoyod.CreditNoteInput {
	return qoyod.CreditNoteInput{
		ContactID:   contactID,
		Reference:   "CN-" + inv.Number,
		IssueDate:   remoteDate(issued),
		Status:      remoteApproved,
		InventoryID: inventoryID,
		ParentID:    qoyod.ID(inv.RemoteID()),
		Notes:       reason,
		LineItems: []qoyod.LineItem{
			serviceLine(productID, "", fmt.Sprintf("Reversal of %s", inv.Number), inv.Subtotal, vatPercent),
		},
	}
}

func creditNoteRemark(remoteID, reason string) string {
	return fmt.Sprintf("Credit note %s: %s", remoteID, reason)
}
