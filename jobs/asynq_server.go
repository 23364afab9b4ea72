package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gstbilling/internal/identity"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	NotifyQueue string
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues(cfg.NotifyQueue),
		Logger:      asynqLogger{cfg.Logger},
		LogLevel:    asynq.InfoLevel,
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// queues weights notification delivery above maintenance jobs.
func queues(notifyQueue string) map[string]int {
	if notifyQueue == "" {
		notifyQueue = QueueNotifications
	}
	return map[string]int{notifyQueue: 3, QueueDefault: 1}
}

// asynqLogger routes asynq's own logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) log() *slog.Logger {
	if l.logger != nil {
		return l.logger.With(slog.String("component", "asynq"))
	}
	return slog.Default().With(slog.String("component", "asynq"))
}

func (l asynqLogger) Debug(args ...any) { l.log().Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log().Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log().Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log().Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log().Error(fmt.Sprint(args...)); os.Exit(1) }

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// Enqueuer returns the underlying client for sinks that enqueue directly.
func (c *Client) Enqueuer() *asynq.Client {
	return c.client
}

// EnqueueRecompute enqueues a recompute run; zero means every tenant.
func (c *Client) EnqueueRecompute(ctx context.Context, tenantID int64) (*asynq.TaskInfo, error) {
	task, err := NewRecomputeTask(tenantID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// EnqueueMerge enqueues a duplicate merge for one tenant. The task id keeps
// at most one pending merge per tenant and kind.
func (c *Client) EnqueueMerge(ctx context.Context, tenantID int64, kind identity.MergeKind) (*asynq.TaskInfo, error) {
	task, err := NewMergeTask(tenantID, kind)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("merge:%d:%s", tenantID, kind)
	return c.client.EnqueueContext(ctx, task, asynq.TaskID(id), asynq.MaxRetry(5))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + itoa(pending) + `}`))
}

func itoa(i int) string {
	return strconv.FormatInt(int64(i), 10)
}
