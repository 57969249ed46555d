package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `id, account_id, type, amount, balance_after, counterparty_id, reference, created_at`

type ledgerLog struct {
	q querier
}

func scanEntry(row rowScanner) (models.LedgerEntry, error) {
	var (
		e            models.LedgerEntry
		entryType    string
		counterparty sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.AccountID, &entryType, &e.Amount, &e.BalanceAfter,
		&counterparty, &e.Reference, &e.CreatedAt); err != nil {
		return models.LedgerEntry{}, err
	}
	e.Type = models.EntryType(entryType)
	if counterparty.Valid {
		id := counterparty.Int64
		e.CounterpartyID = &id
	}
	return e, nil
}

func (l *ledgerLog) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if !entry.Type.Valid() {
		return models.LedgerEntry{}, fmt.Errorf("invalid ledger entry type %q", entry.Type)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var counterparty sql.NullInt64
	if entry.CounterpartyID != nil {
		counterparty = sql.NullInt64{Int64: *entry.CounterpartyID, Valid: true}
	}

	err := l.q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (account_id, type, amount, balance_after, counterparty_id, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.AccountID, string(entry.Type), entry.Amount, entry.BalanceAfter,
		counterparty, entry.Reference, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", mapError(err))
	}
	return entry, nil
}

func (l *ledgerLog) query(ctx context.Context, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := l.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *ledgerLog) ListByAccount(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	return l.query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY created_at, id`,
		accountID)
}

func (l *ledgerLog) List(ctx context.Context, accountID int64, filter models.LedgerFilter) (models.LedgerPage, error) {
	filter = store.NormalizeFilter(filter)

	conditions := []string{"account_id = $1"}
	args := []any{accountID}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := l.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE `+where, args...).Scan(&total); err != nil {
		return models.LedgerPage{}, fmt.Errorf("count ledger entries: %w", err)
	}

	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	entries, err := l.query(ctx, fmt.Sprintf(
		`SELECT %s FROM ledger_entries WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		ledgerColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return models.LedgerPage{}, fmt.Errorf("list ledger entries: %w", err)
	}

	return models.LedgerPage{
		Entries:    entries,
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: store.TotalPages(total, filter.PerPage),
	}, nil
}

func (l *ledgerLog) SumSince(ctx context.Context, accountID int64, entryType models.EntryType, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ABS(amount)), 0) FROM ledger_entries
		WHERE account_id = $1 AND type = $2 AND created_at >= $3`,
		accountID, string(entryType), since).Scan(&total)
	return total, err
}

func (l *ledgerLog) CountTransfersTo(ctx context.Context, senderID, recipientID int64, since time.Time) (int, error) {
	var count int
	err := l.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE account_id = $1 AND type = $2 AND counterparty_id = $3 AND created_at >= $4`,
		senderID, string(models.EntryTransferOut), recipientID, since).Scan(&count)
	return count, err
}
