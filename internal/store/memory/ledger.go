package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

// ledgerView and activityView share view's state access; they are separate
// types because both logs define Append.
type ledgerView struct{ *view }
type activityView struct{ *view }

func (l ledgerView) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerEntry{}, err
	}
	if l.owner.LedgerErr != nil {
		return models.LedgerEntry{}, l.owner.LedgerErr
	}
	if !entry.Type.Valid() {
		return models.LedgerEntry{}, fmt.Errorf("invalid ledger entry type %q", entry.Type)
	}

	st, release := l.acquire()
	defer release()

	if _, ok := st.accounts[entry.AccountID]; !ok {
		return models.LedgerEntry{}, store.ErrNotFound
	}
	st.nextEntryID++
	entry.ID = st.nextEntryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.owner.now()
	}
	st.entries = append(st.entries, entry)
	return entry, nil
}

func (l ledgerView) ListByAccount(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, release := l.acquire()
	defer release()

	var out []models.LedgerEntry
	for _, e := range st.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l ledgerView) List(ctx context.Context, accountID int64, filter models.LedgerFilter) (models.LedgerPage, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerPage{}, err
	}
	filter = store.NormalizeFilter(filter)

	st, release := l.acquire()
	defer release()

	var matched []models.LedgerEntry
	for i := len(st.entries) - 1; i >= 0; i-- {
		e := st.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}

	page := models.LedgerPage{
		Entries:    []models.LedgerEntry{},
		Total:      len(matched),
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: store.TotalPages(len(matched), filter.PerPage),
	}
	start := (filter.Page - 1) * filter.PerPage
	if start < len(matched) {
		end := start + filter.PerPage
		if end > len(matched) {
			end = len(matched)
		}
		page.Entries = matched[start:end]
	}
	return page, nil
}

func (l ledgerView) SumSince(ctx context.Context, accountID int64, entryType models.EntryType, since time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	st, release := l.acquire()
	defer release()

	total := decimal.Zero
	for _, e := range st.entries {
		if e.AccountID == accountID && e.Type == entryType && !e.CreatedAt.Before(since) {
			total = total.Add(e.Amount.Abs())
		}
	}
	return total, nil
}

func (l ledgerView) CountTransfersTo(ctx context.Context, senderID, recipientID int64, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	st, release := l.acquire()
	defer release()

	count := 0
	for _, e := range st.entries {
		if e.AccountID != senderID || e.Type != models.EntryTransferOut || e.CreatedAt.Before(since) {
			continue
		}
		if e.CounterpartyID != nil && *e.CounterpartyID == recipientID {
			count++
		}
	}
	return count, nil
}

func (a activityView) Append(ctx context.Context, entry models.ActivityLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.owner.ActivityErr != nil {
		return a.owner.ActivityErr
	}

	st, release := a.acquire()
	defer release()

	st.nextActivityID++
	entry.ID = st.nextActivityID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.owner.now()
	}
	st.activity = append(st.activity, entry)
	return nil
}

// ListByAccount returns up to limit entries, newest first. limit <= 0 means all.
func (a activityView) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.ActivityLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, release := a.acquire()
	defer release()

	var out []models.ActivityLogEntry
	for i := len(st.activity) - 1; i >= 0; i-- {
		if st.activity[i].AccountID != accountID {
			continue
		}
		out = append(out, st.activity[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
