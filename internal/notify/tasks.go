package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

// TypeNotification is the asynq task type for verified notifications.
const TypeNotification = "smartpay:notification"

// QueueName is the asynq queue notification tasks are routed to.
const QueueName = "notifications"

// Enqueuer is the subset of *asynq.Client used by TaskEnqueuer.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewNotificationTask encodes n as a task.
func NewNotificationTask(n Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return asynq.NewTask(TypeNotification, payload), nil
}

// TaskEnqueuer is a Dispatcher that queues notifications for the worker.
type TaskEnqueuer struct {
	Client    Enqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Dispatch enqueues n using its ID as the task ID, so a redelivery already in
// the queue is not queued twice.
func (e TaskEnqueuer) Dispatch(ctx context.Context, n Notification) error {
	if e.Client == nil {
		return errors.New("notify: task client not configured")
	}
	task, err := NewNotificationTask(n)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(n.ID)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Sink consumes notifications on the worker side.
type Sink interface {
	HandleNotification(ctx context.Context, n Notification) error
}

// LogSink records notifications in the structured log.
type LogSink struct {
	Logger zerolog.Logger
}

// HandleNotification logs every field of n.
func (s LogSink) HandleNotification(ctx context.Context, n Notification) error {
	fields := zerolog.Dict()
	for _, f := range n.Fields {
		if f.Key == signing.KeySignature {
			continue
		}
		fields = fields.Str(f.Key, f.Value)
	}
	logger := obs.LoggerFrom(ctx, s.Logger)
	logger.Info().
		Str("notification_id", n.ID).
		Time("received_at", n.ReceivedAt).
		Dict("fields", fields).
		Msg("smartpay_notification")
	return nil
}

// TaskHandler decodes notification tasks, re-verifies them and passes them to Sink.
type TaskHandler struct {
	Sink     Sink
	Verifier *signing.Verifier
	Logger   zerolog.Logger
}

// Register mounts the handler on mux.
func (h TaskHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeNotification, h)
}

// ProcessTask implements asynq.Handler. Undecodable or unverifiable payloads
// are not retried.
func (h TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	result := "error"
	defer func() {
		if obs.NotificationTaskTotal != nil {
			obs.NotificationTaskTotal.WithLabelValues(result).Inc()
		}
	}()
	if h.Sink == nil {
		return errors.New("notify: sink not configured")
	}

	var n Notification
	if err := json.Unmarshal(task.Payload(), &n); err != nil {
		result = "invalid_payload"
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	if h.Verifier != nil {
		if err := h.Verifier.VerifyDetailed(n.SigningFields()); err != nil {
			result = "invalid_signature"
			return fmt.Errorf("notification %s: %v: %w", n.ID, err, asynq.SkipRetry)
		}
	}
	if err := h.Sink.HandleNotification(ctx, n); err != nil {
		h.Logger.Error().Err(err).Str("notification_id", n.ID).Msg("smartpay_notification_sink_failed")
		return err
	}
	result = "processed"
	return nil
}
