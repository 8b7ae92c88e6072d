package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

type QueueConfig struct {
	Queue       string
	MaxRetry    int
	Concurrency int
}

func (c QueueConfig) queue() string {
	if c.Queue == "" {
		return "notifications"
	}
	return c.Queue
}

// AsynqPublisher enqueues status changes on a Redis-backed asynq queue.
type AsynqPublisher struct {
	client *asynq.Client
	cfg    QueueConfig
}

func NewAsynqPublisher(redisOpt asynq.RedisConnOpt, cfg QueueConfig) *AsynqPublisher {
	return &AsynqPublisher{client: asynq.NewClient(redisOpt), cfg: cfg}
}

func NewStatusChangedTask(ev StatusChanged, cfg QueueConfig) (*asynq.Task, error) {
	payload, err := ev.Marshal()
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(cfg.queue())}
	if cfg.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(cfg.MaxRetry))
	}
	return asynq.NewTask(TypeStatusChanged, payload, opts...), nil
}

func (p *AsynqPublisher) Publish(ctx context.Context, ev StatusChanged) error {
	task, err := NewStatusChangedTask(ev, p.cfg)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task)
	return err
}

func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}

// Worker consumes status-change tasks and passes them to a Notifier.
type Worker struct {
	srv      *asynq.Server
	notifier Notifier
	log      *slog.Logger
}

func NewWorker(redisOpt asynq.RedisConnOpt, cfg QueueConfig, notifier Notifier, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{cfg.queue(): 1},
	})
	return &Worker{
		srv:      srv,
		notifier: notifier,
		log:      log.With(slog.String("component", "events.worker")),
	}
}

func (w *Worker) Handler() asynq.Handler {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeStatusChanged, w.handleStatusChanged)
	return mux
}

// Start runs the worker in the background.
func (w *Worker) Start() error {
	return w.srv.Start(w.Handler())
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

func (w *Worker) handleStatusChanged(ctx context.Context, task *asynq.Task) error {
	ev, err := UnmarshalStatusChanged(task.Payload())
	if err != nil {
		w.log.Warn("invalid status change payload", slog.Any("err", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.notifier.StatusChanged(ctx, ev); err != nil {
		w.log.Warn("notification failed", slog.Any("err", err), slog.String("booking_number", ev.BookingNumber))
		return err
	}
	return nil
}
