package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliver is the asynq task that persists and publishes an event.
const TaskTypeDeliver = "notify:deliver"

// Sink accepts events after the producing transaction has committed.
// Implementations must not return errors to the caller; failures are logged.
type Sink interface {
	Notify(ctx context.Context, events ...Event)
}

// NewDeliverTask wraps an event in an asynq task.
func NewDeliverTask(event Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliver, data), nil
}

// Enqueuer is the subset of *asynq.Client used by AsynqSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqSink enqueues events for the worker. Enqueue failures are swallowed.
type AsynqSink struct {
	client Enqueuer
	queue  string
	logger *slog.Logger
}

// NewAsynqSink constructs AsynqSink.
func NewAsynqSink(client Enqueuer, queue string, logger *slog.Logger) *AsynqSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqSink{client: client, queue: queue, logger: logger}
}

// Notify enqueues every event, using the event id as the task id.
func (s *AsynqSink) Notify(ctx context.Context, events ...Event) {
	for _, event := range events {
		if err := s.enqueue(ctx, event); err != nil {
			s.logger.Warn("notification enqueue failed",
				slog.Int64("tenant_id", event.TenantID),
				slog.String("title", event.Title),
				slog.Any("error", err))
		}
	}
}

func (s *AsynqSink) enqueue(ctx context.Context, event Event) error {
	task, err := NewDeliverTask(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID(event.ID.String()), asynq.MaxRetry(3)}
	if s.queue != "" {
		opts = append(opts, asynq.Queue(s.queue))
	}
	_, err = s.client.EnqueueContext(ctx, task, opts...)
	return err
}

// Nop discards events.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(context.Context, ...Event) {}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Sink.
func (r *Recorder) Notify(_ context.Context, events ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
