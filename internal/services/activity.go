package services

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

const (
	maxIPAddressLength = 45
	maxUserAgentLength = 500
	unknownClient      = "Unknown"
	activityTimeout    = 2 * time.Second
)

// RequestMeta identifies the client behind an operation for the activity log.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client metadata to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the client metadata in ctx, truncated to the column
// widths, with "Unknown" for anything missing.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return RequestMeta{
		IPAddress: clip(meta.IPAddress, maxIPAddressLength),
		UserAgent: clip(meta.UserAgent, maxUserAgentLength),
	}
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknownClient
	}
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary so the stored text stays valid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ActivityRecorder writes the per-account activity log. Writes are
// best-effort: a failure is logged and never reaches the caller.
type ActivityRecorder struct {
	log store.ActivityLog
	now func() time.Time
}

func NewActivityRecorder(activity store.ActivityLog, now func() time.Time) *ActivityRecorder {
	if now == nil {
		now = time.Now
	}
	return &ActivityRecorder{log: activity, now: now}
}

func (r *ActivityRecorder) Record(ctx context.Context, accountID int64, activityType models.ActivityType, description string) {
	meta := RequestMetaFrom(ctx)

	// Detached from the caller's deadline: the operation being recorded has
	// already committed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activityTimeout)
	defer cancel()

	err := r.log.Append(ctx, models.ActivityLogEntry{
		AccountID:    accountID,
		ActivityType: activityType,
		Description:  description,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    r.now(),
	})
	if err != nil {
		log.Printf("[ACTIVITY] failed to record %s for account %d: %v", activityType, accountID, err)
	}
}

// Recent returns the latest activity of an account, newest first.
func (r *ActivityRecorder) Recent(ctx context.Context, accountID int64, limit int) ([]models.ActivityLogEntry, error) {
	return r.log.ListByAccount(ctx, accountID, limit)
}
