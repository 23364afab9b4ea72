package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxTitleLen = 200

// Repository persists delivered notifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores the event once; redelivery of the same event id is a no-op.
func (r *Repository) Insert(ctx context.Context, event Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, tenant_id, title, message, notification_type, link_url, link_text,
			related_object_type, related_object_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID, event.TenantID, truncate(event.Title, maxTitleLen), event.Message, string(event.Type),
		event.LinkURL, event.LinkText, event.RelatedObjectType, event.RelatedObjectID, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// CountUnread returns the tenant's unread notification count.
func (r *Repository) CountUnread(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE tenant_id = $1 AND NOT is_read`, tenantID).Scan(&n)
	return n, err
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
