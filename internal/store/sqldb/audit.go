package sqldb

import (
	"context"

	"sportai.io/internal/audit"
	"sportai.io/internal/ids"
)

// AuditMirror copies audit entries into the audit_logs table. The monthly files stay
// authoritative; the mirror is for SQL reporting.
type AuditMirror struct {
	db *DB
}

var _ audit.Sink = (*AuditMirror)(nil)

func NewAuditMirror(db *DB) *AuditMirror { return &AuditMirror{db: db} }

func (m *AuditMirror) Append(ctx context.Context, e audit.Entry) error {
	_, err := m.db.ExecContext(ctx, m.db.Dialect.Rebind(`
		insert into audit_logs(id, timestamp, user_email, action, details, ip_address, session_id)
		values ($1, $2, $3, $4, $5, $6, $7)`),
		ids.New(), e.Timestamp.UTC(), e.User, e.Action, e.Details, e.IP, e.SessionID,
	)
	return err
}
