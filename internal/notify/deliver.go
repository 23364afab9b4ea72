package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Store persists notifications for the in-app inbox.
type Store interface {
	Insert(ctx context.Context, event Event) error
	CountUnread(ctx context.Context, tenantID int64) (int64, error)
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is what subscribers on a tenant channel receive.
type Message struct {
	Unread int64 `json:"unread"`
	Event  Event `json:"event"`
}

// Channel returns the pub/sub channel of a tenant.
func Channel(tenantID int64) string {
	return fmt.Sprintf("notifications:%d", tenantID)
}

// Deliverer stores events and publishes them with the tenant's unread count.
type Deliverer struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewDeliverer constructs Deliverer. A nil publisher skips fan-out.
func NewDeliverer(store Store, publisher Publisher, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{store: store, publisher: publisher, logger: logger}
}

// Deliver persists the event, then publishes it. Publish failures are logged
// and do not fail delivery.
func (d *Deliverer) Deliver(ctx context.Context, event Event) error {
	if err := d.store.Insert(ctx, event); err != nil {
		return err
	}
	if d.publisher == nil {
		return nil
	}
	unread, err := d.store.CountUnread(ctx, event.TenantID)
	if err != nil {
		d.logger.Warn("count unread notifications", slog.Int64("tenant_id", event.TenantID), slog.Any("error", err))
	}
	payload, err := json.Marshal(Message{Unread: unread, Event: event})
	if err != nil {
		return err
	}
	if err := d.publisher.Publish(ctx, Channel(event.TenantID), payload).Err(); err != nil {
		d.logger.Warn("publish notification", slog.Int64("tenant_id", event.TenantID), slog.Any("error", err))
	}
	return nil
}

// HandleTask processes TaskTypeDeliver tasks.
func (d *Deliverer) HandleTask(ctx context.Context, t *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	return d.Deliver(ctx, event)
}
