package hsm

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditEvent is one line of the operational audit log. It is separate from
// the per-account activity log and is the only place atomicity-failure causes
// are recorded.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference,omitempty"`
	AccountID int64     `json:"account_id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type AuditLogger struct {
	out *log.Logger
	now func() time.Time
}

func NewAuditLogger(out *log.Logger) *AuditLogger {
	if out == nil {
		out = log.Default()
	}
	return &AuditLogger{out: out, now: time.Now}
}

func (a *AuditLogger) LogTransfer(reference uuid.UUID, fromAccount, toAccount int64, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		EventType: "TRANSFER",
		Reference: reference.String(),
		AccountID: fromAccount,
		Amount:    amount.StringFixed(2),
		Status:    status,
		Details: map[string]int64{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

// LogError records the underlying cause of a failed operation.
func (a *AuditLogger) LogError(operation string, accountID int64, err error) {
	a.log(AuditEvent{
		EventType: "ERROR",
		AccountID: accountID,
		Status:    "FAILED",
		Details: map[string]string{
			"operation": operation,
			"error":     err.Error(),
		},
	})
}

func (a *AuditLogger) LogOperation(reference uuid.UUID, accountID int64, operation string, amount decimal.Decimal, details string) {
	a.log(AuditEvent{
		EventType: operation,
		Reference: reference.String(),
		AccountID: accountID,
		Amount:    amount.StringFixed(2),
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	event.Timestamp = a.now()
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
