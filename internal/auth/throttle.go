package auth

import (
	"context"
	"fmt"
)

const defaultAttemptThreshold = 5

// Throttle enforces the failed-login lockout per (origin, account) key. All
// state lives in the AttemptStore; the throttle itself holds nothing
// mutable, so any number of service instances can share the same store.
//
// Counting and inserting are not transactionally coupled: two concurrent
// failures can both read a sub-threshold count and both insert, overshooting
// the threshold slightly. Over-counting only makes the throttle stricter.
type Throttle struct {
	store     AttemptStore
	threshold int
}

func NewThrottle(store AttemptStore, threshold int) *Throttle {
	if threshold <= 0 {
		threshold = defaultAttemptThreshold
	}

	return &Throttle{store: store, threshold: threshold}
}

// CheckAllowed refuses the key with ErrTooManyAttempts once the stored
// count reaches the threshold. Callers must invoke this before the password
// check so a locked key never burns bcrypt CPU.
func (t *Throttle) CheckAllowed(ctx context.Context, origin, accountID string) error {
	count, err := t.store.CountAttempts(ctx, origin, accountID)
	if err != nil {
		return fmt.Errorf("count login attempts: %w", err)
	}

	if count >= t.threshold {
		return ErrTooManyAttempts
	}

	return nil
}

// RecordFailure appends one failed attempt for the key. The store keeps
// accepting rows past the threshold; the verdict comes from CheckAllowed.
func (t *Throttle) RecordFailure(ctx context.Context, origin, accountID string) error {
	if err := t.store.InsertAttempt(ctx, origin, accountID); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}

	return nil
}

// Clear wipes all attempts for the key. Only called after a successful
// password verification.
func (t *Throttle) Clear(ctx context.Context, origin, accountID string) error {
	if err := t.store.DeleteAttempts(ctx, origin, accountID); err != nil {
		return fmt.Errorf("clear login attempts: %w", err)
	}

	return nil
}
