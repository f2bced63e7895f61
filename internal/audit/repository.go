package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const insertAuditLog = `
INSERT INTO audit_logs (
	id, owner_id, actor, role, action, resource_type, resource_id, property_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

// Repository appends audit rows to Postgres. Rows are never updated or
// deleted by this service.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes one audit entry, filling in id, created_at and the payload
// digest when the caller left them empty.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit: repository not configured")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}

	_, err := r.db.ExecContext(ctx, insertAuditLog,
		entry.ID, entry.OwnerID, entry.Actor, entry.Role, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.PropertyID,
		entry.Metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert %s on %s/%s: %w", entry.Action, entry.ResourceType, entry.ResourceID, err)
	}
	return nil
}
