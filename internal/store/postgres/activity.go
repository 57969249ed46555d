package postgres

import (
	"context"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

type activityLog struct {
	q querier
}

func (a *activityLog) Append(ctx context.Context, entry models.ActivityLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := a.q.ExecContext(ctx, `
		INSERT INTO activity_log (account_id, activity_type, description, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.AccountID, string(entry.ActivityType), entry.Description,
		entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

// ListByAccount returns up to limit entries, newest first. limit <= 0 means all.
func (a *activityLog) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.ActivityLogEntry, error) {
	if limit < 0 {
		limit = 0
	}
	rows, err := a.q.QueryContext(ctx, `
		SELECT id, account_id, activity_type, description, ip_address, user_agent, created_at
		FROM activity_log
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.ActivityLogEntry{}
	for rows.Next() {
		var (
			e   models.ActivityLogEntry
			typ string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &typ, &e.Description, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActivityType = models.ActivityType(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
