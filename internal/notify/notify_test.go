package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/notify"
)

type memoryStore struct {
	mu     sync.Mutex
	events map[string]notify.Event
	err    error
}

func (s *memoryStore) Insert(_ context.Context, event notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.events == nil {
		s.events = map[string]notify.Event{}
	}
	s.events[event.ID.String()] = event
	return nil
}

func (s *memoryStore) CountUnread(_ context.Context, tenantID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.events {
		if e.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func TestBuilders(t *testing.T) {
	inv := notify.InvoiceCreated(3, 10, 42, "")
	require.Equal(t, "Invoice #42 Created", inv.Title)
	require.Equal(t, "New invoice #42 created for N/A", inv.Message)
	require.Equal(t, "/invoice/10/", inv.LinkURL)
	require.Equal(t, notify.TypeInvoice, inv.Type)
	require.Equal(t, "Invoice", inv.RelatedObjectType)
	require.EqualValues(t, 10, *inv.RelatedObjectID)

	pay := notify.PaymentReceived(3, 5, decimal.RequireFromString("-12345.5"), "ACME")
	require.Equal(t, "Payment of ₹12,345.50 received from ACME", pay.Message)
	require.Equal(t, "/customers/edit/5", pay.LinkURL)

	low := notify.LowStock(3, 8, "WIDGET", "M1", 2)
	require.Equal(t, notify.TypeWarning, low.Type)
	require.Equal(t, "Product 'WIDGET' (M1) has low stock: 2 units remaining", low.Message)

	approved := notify.QuotationApproved(3, 6, 9)
	require.Equal(t, notify.TypeSuccess, approved.Type)
	require.True(t, strings.HasSuffix(approved.Message, "ready for conversion"))
	require.NotEqual(t, inv.ID, pay.ID)
}

func TestDelivererStoresAndPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	sub := client.Subscribe(ctx, notify.Channel(3))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	store := &memoryStore{}
	d := notify.NewDeliverer(store, client, nil)
	event := notify.QuotationCreated(3, 1, 1, "ACME")
	task, err := notify.NewDeliverTask(event)
	require.NoError(t, err)
	require.NoError(t, d.HandleTask(ctx, task))

	select {
	case msg := <-sub.Channel():
		var got notify.Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		require.EqualValues(t, 1, got.Unread)
		require.Equal(t, event.ID, got.Event.ID)
		require.Equal(t, "Quotation #1 Created", got.Event.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestDelivererFailsOnlyWhenStoreFails(t *testing.T) {
	store := &memoryStore{}
	d := notify.NewDeliverer(store, nil, nil)
	require.NoError(t, d.Deliver(context.Background(), notify.InvoiceCreated(1, 1, 1, "A")))

	store.err = errors.New("db down")
	require.Error(t, d.Deliver(context.Background(), notify.InvoiceCreated(1, 2, 2, "A")))

	err := d.HandleTask(context.Background(), asynq.NewTask(notify.TaskTypeDeliver, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestAsynqSinkEnqueuesAndSwallowsErrors(t *testing.T) {
	q := &fakeEnqueuer{}
	sink := notify.NewAsynqSink(q, "notifications", nil)
	first := notify.InvoiceCreated(1, 1, 1, "A")
	sink.Notify(context.Background(), first, notify.LowStock(1, 2, "P", "M", 0))
	require.Len(t, q.tasks, 2)
	require.Equal(t, notify.TaskTypeDeliver, q.tasks[0].Type())

	var decoded notify.Event
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &decoded))
	require.Equal(t, first.ID, decoded.ID)

	q.err = errors.New("redis unavailable")
	require.NotPanics(t, func() {
		sink.Notify(context.Background(), notify.InvoiceCreated(1, 3, 3, "A"))
	})
}
