package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/hsm"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// LockoutGuard verifies PINs and runs the failed-attempt lockout:
// Unlocked -> Locked(until) after LockoutThreshold consecutive failures,
// back to Unlocked on the first success after the lock expires.
type LockoutGuard struct {
	st       store.Store
	hasher   *hsm.PINHasher
	activity *ActivityRecorder
	policy   config.Policy
	now      func() time.Time
}

func NewLockoutGuard(st store.Store, hasher *hsm.PINHasher, activity *ActivityRecorder, policy config.Policy, now func() time.Time) *LockoutGuard {
	if now == nil {
		now = time.Now
	}
	return &LockoutGuard{st: st, hasher: hasher, activity: activity, policy: policy, now: now}
}

// Authenticate returns the account when pin is correct. An unknown email and
// a wrong PIN both yield ErrWrongCredentials; a locked account yields
// *LockedError without consuming an attempt.
func (g *LockoutGuard) Authenticate(ctx context.Context, email, pin string) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, g.policy.StoreTimeout)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))
	acc, err := g.st.Accounts().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		g.hasher.VerifyDummy(pin)
		log.Printf("[AUTH] login attempt for unknown email")
		return models.Account{}, ErrWrongCredentials
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("load account: %w", err)
	}

	now := g.now()
	if acc.IsLocked(now) {
		g.activity.Record(ctx, acc.ID, models.ActivityAccountLocked, "Login attempt while account locked")
		log.Printf("[AUTH] login refused for locked account %d", acc.ID)
		return models.Account{}, &LockedError{Until: *acc.LockUntil}
	}

	ok, err := g.hasher.Verify(pin, acc.PinHash)
	if err != nil {
		return models.Account{}, fmt.Errorf("verify PIN for account %d: %w", acc.ID, err)
	}

	if ok {
		if acc.FailedAttempts > 0 || acc.LockUntil != nil {
			if err := g.st.Accounts().ResetAuthState(ctx, acc.ID); err != nil {
				return models.Account{}, fmt.Errorf("reset auth state: %w", err)
			}
			acc.FailedAttempts = 0
			acc.LockUntil = nil
		}
		g.activity.Record(ctx, acc.ID, models.ActivityLogin, "Successful login")
		log.Printf("[AUTH] login successful for account %d", acc.ID)
		return acc, nil
	}

	return models.Account{}, g.recordFailure(ctx, acc.ID, now)
}

func (g *LockoutGuard) recordFailure(ctx context.Context, accountID int64, now time.Time) error {
	var (
		count int
		until time.Time
	)
	err := g.st.WithTx(ctx, func(tx store.Store) error {
		var err error
		count, err = tx.Accounts().RecordFailedAttempt(ctx, accountID)
		if err != nil {
			return err
		}
		if count >= g.policy.LockoutThreshold {
			until = now.Add(g.policy.LockoutDuration)
			return tx.Accounts().Lock(ctx, accountID, until)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}

	g.activity.Record(ctx, accountID, models.ActivityFailedLogin,
		fmt.Sprintf("Failed login attempt (%d of %d)", count, g.policy.LockoutThreshold))

	if until.IsZero() {
		log.Printf("[AUTH] wrong PIN for account %d (%d/%d)", accountID, count, g.policy.LockoutThreshold)
		return ErrWrongCredentials
	}

	g.activity.Record(ctx, accountID, models.ActivityAccountLocked,
		fmt.Sprintf("Account locked after %d failed login attempts", count))
	log.Printf("[AUTH] account %d locked until %s", accountID, until.Format(time.RFC3339))
	return &LockedError{Until: until}
}
