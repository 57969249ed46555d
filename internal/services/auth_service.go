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
	"github.com/shopspring/decimal"
)

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=50,alphaspace" example:"Jane Doe"` // Account holder name
	Email string `json:"email" validate:"required,email,max=255" example:"jane@example.com"`  // Login email
	PIN   string `json:"pin" validate:"required,pin" example:"1234"`                          // 4-6 digit PIN
}

// AuthService owns account identity: registration, login, PIN changes,
// logout and the administrator freeze.
type AuthService struct {
	st        store.Store
	guard     *LockoutGuard
	hasher    *hsm.PINHasher
	activity  *ActivityRecorder
	validator *ValidationHelper
	policy    config.Policy
	now       func() time.Time
}

func NewAuthService(st store.Store, guard *LockoutGuard, hasher *hsm.PINHasher, activity *ActivityRecorder, policy config.Policy, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		st:        st,
		guard:     guard,
		hasher:    hasher,
		activity:  activity,
		validator: NewValidationHelper(),
		policy:    policy,
		now:       now,
	}
}

func (s *AuthService) Authenticate(ctx context.Context, email, pin string) (models.Account, error) {
	return s.guard.Authenticate(ctx, email, pin)
}

// Register creates a standard account with a zero balance.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (models.Account, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.validator.ValidateStruct(&req); err != nil {
		return models.Account{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.policy.StoreTimeout)
	defer cancel()

	hash, err := s.hasher.Hash(req.PIN)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash PIN: %w", err)
	}

	acc, err := s.st.Accounts().Create(ctx, models.Account{
		Name:    req.Name,
		Email:   req.Email,
		PinHash: hash,
		Balance: decimal.Zero,
		Role:    models.RoleStandard,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		log.Printf("[AUTH] registration refused, email already registered")
		return models.Account{}, ErrEmailTaken
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.activity.Record(ctx, acc.ID, models.ActivityRegistration, "Account registered")
	log.Printf("[AUTH] account %d registered", acc.ID)
	return acc, nil
}

// ChangePIN replaces the PIN after verifying the current one.
func (s *AuthService) ChangePIN(ctx context.Context, accountID int64, currentPIN, newPIN string) error {
	if !ValidPIN(newPIN) {
		return ErrInvalidPIN
	}

	ctx, cancel := context.WithTimeout(ctx, s.policy.StoreTimeout)
	defer cancel()

	acc, err := s.st.Accounts().Get(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	ok, err := s.hasher.Verify(currentPIN, acc.PinHash)
	if err != nil {
		return fmt.Errorf("verify PIN for account %d: %w", accountID, err)
	}
	if !ok {
		s.activity.Record(ctx, accountID, models.ActivityFailedPinChange, "PIN change failed: incorrect current PIN")
		return ErrIncorrectPIN
	}
	if currentPIN == newPIN {
		return ErrSamePIN
	}

	hash, err := s.hasher.Hash(newPIN)
	if err != nil {
		return fmt.Errorf("hash PIN: %w", err)
	}
	if err := s.st.Accounts().UpdatePinHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("update PIN: %w", err)
	}

	s.activity.Record(ctx, accountID, models.ActivityPinChanged, "PIN changed")
	log.Printf("[AUTH] PIN changed for account %d", accountID)
	return nil
}

func (s *AuthService) Logout(ctx context.Context, accountID int64) {
	s.activity.Record(ctx, accountID, models.ActivityLogout, "Logged out")
}

// SetFrozen freezes or unfreezes a standard account. Freezing locks the
// account for AdminFreezeDuration; unfreezing clears the lock and the
// failed-attempt counter.
func (s *AuthService) SetFrozen(ctx context.Context, targetID int64, frozen bool) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.policy.StoreTimeout)
	defer cancel()

	var target models.Account
	err := s.st.WithTx(ctx, func(tx store.Store) error {
		locked, err := tx.Accounts().LockForUpdate(ctx, targetID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		target = locked[0]
		if target.IsAdministrator() {
			return ErrAdministratorImmutable
		}

		if frozen {
			until := s.now().Add(s.policy.AdminFreezeDuration)
			target.LockUntil = &until
			return tx.Accounts().Lock(ctx, targetID, until)
		}
		target.LockUntil = nil
		target.FailedAttempts = 0
		return tx.Accounts().ResetAuthState(ctx, targetID)
	})
	if err != nil {
		if IsDomainError(err) {
			return models.Account{}, err
		}
		return models.Account{}, fmt.Errorf("update account %d: %w", targetID, err)
	}

	if frozen {
		s.activity.Record(ctx, targetID, models.ActivityAccountLocked, "Account frozen by administrator")
		log.Printf("[AUTH] account %d frozen until %s", targetID, target.LockUntil.Format(time.RFC3339))
	} else {
		s.activity.Record(ctx, targetID, models.ActivityAccountUnlocked, "Account unlocked by administrator")
		log.Printf("[AUTH] account %d unfrozen", targetID)
	}
	return target, nil
}
