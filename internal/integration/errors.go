package integration

import (
	"errors"
	"fmt"

	"github.com/hallbook/hallbook/internal/platform/httpx"
)

// Sync errors. ErrRemote wraps every failure returned by the Qoyod API.
var (
	ErrSyncDisabled             = httpx.NewError(httpx.ErrRule, "accounting integration is not configured")
	ErrInvoiceNotSynced         = httpx.NewError(httpx.ErrRule, "parent invoice is not synced")
	ErrMustSyncBeforeCreditNote = httpx.NewError(httpx.ErrRule, "invoice must be synced before issuing a credit note")
	ErrCreditNoteExists         = httpx.NewError(httpx.ErrRule, "invoice already has a credit note")
	ErrRecordClosed             = httpx.NewError(httpx.ErrRule, "cancelled or deleted records are not synced")
	ErrNoBankAccount            = httpx.NewError(httpx.ErrRule, "no bank or cash account found in the accounting system")
	ErrNoInventory              = httpx.NewError(httpx.ErrUpstream, "accounting system has no inventory")
	ErrRemote                   = httpx.NewError(httpx.ErrUpstream, "accounting system request failed")
	ErrJobNotFound              = httpx.NewError(httpx.ErrNotFound, "sync job not found")
	ErrUnsupportedRecord        = errors.New("integration: unsupported record type")
)

func remoteErr(err error) error {
	if err == nil || errors.Is(err, ErrRemote) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRemote, err)
}
