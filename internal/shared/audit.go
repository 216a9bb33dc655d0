package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID     int64
	EntityType  string
	EntityID    string
	Action      string
	Description string
	At          time.Time
}

// AuditPort is the narrow audit collaborator consumed by services.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.EntityType == "" || log.EntityID == "" {
		return errors.New("audit log requires entity_type/entity_id/action")
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, entity_type, entity_id, action, description, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, nullActor(log.ActorID), log.EntityType, log.EntityID, log.Action, log.Description, at)
	return err
}

// RecordAudit sends the entry to port and converts a failure into a warning.
func RecordAudit(ctx context.Context, port AuditPort, log AuditLog, warnings *Warnings) {
	if port == nil {
		return
	}
	warnings.Add(WarnAuditFailed, port.Record(ctx, log))
}

func nullActor(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
