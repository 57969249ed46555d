package services

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/hsm"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	st       *memory.Store
	clock    *testClock
	policy   config.Policy
	hasher   *hsm.PINHasher
	audit    *bytes.Buffer
	activity *ActivityRecorder
	engine   *Engine
	guard    *LockoutGuard
	auth     *AuthService
}

var (
	sharedHasherOnce sync.Once
	sharedHasher     *hsm.PINHasher
)

func testHasher() *hsm.PINHasher {
	sharedHasherOnce.Do(func() {
		sharedHasher = hsm.NewPINHasher(config.Argon2Config{
			Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32, SaltLength: 16,
		})
	})
	return sharedHasher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newTestClock()
	st := memory.New().WithClock(clock.Now)
	policy := config.DefaultPolicy()
	hasher := testHasher()

	var auditBuf syncBuffer
	audit := hsm.NewAuditLogger(log.New(&auditBuf, "", 0))
	activity := NewActivityRecorder(st.Activity(), clock.Now)
	guard := NewLockoutGuard(st, hasher, activity, policy, clock.Now)

	return &testEnv{
		st:       st,
		clock:    clock,
		policy:   policy,
		hasher:   hasher,
		audit:    &auditBuf.buf,
		activity: activity,
		engine:   NewEngine(st, NewRateLimiter(policy), activity, audit, policy, clock.Now),
		guard:    guard,
		auth:     NewAuthService(st, guard, hasher, activity, policy, clock.Now),
	}
}

// syncBuffer lets concurrent tests share one audit log.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// openAccount registers an account and funds it through the engine so the
// ledger stays consistent with the balance.
func (e *testEnv) openAccount(t *testing.T, email, pin, balance string) models.Account {
	t.Helper()
	hash, err := e.hasher.Hash(pin)
	require.NoError(t, err)

	acc, err := e.st.Accounts().Create(context.Background(), models.Account{
		Name:    "Test Holder",
		Email:   email,
		PinHash: hash,
		Balance: decimal.Zero,
		Role:    models.RoleStandard,
	})
	require.NoError(t, err)

	if amount := decimal.RequireFromString(balance); amount.IsPositive() {
		_, err := e.engine.Deposit(context.Background(), acc.ID, amount)
		require.NoError(t, err)
	}
	return acc
}

func (e *testEnv) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	acc, err := e.st.Accounts().Get(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func (e *testEnv) activityTypes(t *testing.T, id int64) []models.ActivityType {
	t.Helper()
	entries, err := e.st.Activity().ListByAccount(context.Background(), id, 0)
	require.NoError(t, err)
	// oldest first
	types := make([]models.ActivityType, len(entries))
	for i, entry := range entries {
		types[len(entries)-1-i] = entry.ActivityType
	}
	return types
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
