package billing

import (
	"context"
	"fmt"

	"github.com/hallbook/hallbook/internal/money"
)

// Reconciler recomputes an invoice's paid amount and status from its
// non-deleted payments. It never changes total_amount.
type Reconciler struct {
	repo Repository
}

// NewReconciler builds a Reconciler.
func NewReconciler(repo Repository) *Reconciler {
	return &Reconciler{repo: repo}
}

// Reconcile locks the invoice, re-sums its payments and writes paid amount and
// status when they changed. Running it twice yields the same state. A
// cancelled invoice keeps its status; only its paid amount is refreshed.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID, invoiceID int64) (*Invoice, error) {
	var out *Invoice
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, ownerID, invoiceID)
		if err != nil {
			return err
		}
		paid, err := tx.SumActivePayments(ctx, ownerID, invoiceID)
		if err != nil {
			return fmt.Errorf("sum payments: %w", err)
		}
		paid = money.Round(paid)
		status := inv.Status
		if status != StatusCancelled {
			status = DeriveStatus(paid, inv.TotalAmount)
		}
		if !paid.Equal(inv.PaidAmount) || status != inv.Status {
			if err := tx.UpdateInvoicePaid(ctx, ownerID, invoiceID, paid, status); err != nil {
				return err
			}
		}
		inv.PaidAmount = paid
		inv.Status = status
		out = inv
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile invoice %d: %w", invoiceID, err)
	}
	return out, nil
}
