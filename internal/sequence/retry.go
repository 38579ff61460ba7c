package sequence

import "context"

// MaxAttempts bounds how often a write is retried after a number collision.
const MaxAttempts = 3

// Retry runs fn again while it fails with a number conflict, so that a
// concurrent writer that took the scanned number does not fail the request.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err = fn(); err == nil || !IsNumberConflict(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
