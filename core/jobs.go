package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	SweepJobID         = "payments.sweep"
	SweepJobScriptPath = "payments/sweep"
	// DedupPolicyDrop discards a message whose idempotency key was already
	// enqueued.
	DedupPolicyDrop = "drop"

	defaultJobPollInterval = time.Second
)

// NewSweepJobMessage builds the queue message for the sweep window that
// contains now. Messages for the same window share an idempotency key.
func NewSweepJobMessage(serviceName string, now time.Time, interval time.Duration) *JobExecutionMessage {
	if interval <= 0 {
		interval = time.Minute
	}
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "payments"
	}
	window := now.UTC().Truncate(interval)
	return &JobExecutionMessage{
		JobID:      SweepJobID,
		ScriptPath: SweepJobScriptPath,
		Parameters: map[string]any{
			"service_name": serviceName,
			"window":       window.Format(time.RFC3339),
		},
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", SweepJobID, serviceName, window.Unix()),
		DedupPolicy:    DedupPolicyDrop,
	}
}

func ScheduleSweep(ctx context.Context, enqueuer JobEnqueuer, serviceName string, now time.Time, interval time.Duration) error {
	if enqueuer == nil {
		return fmt.Errorf("core: job enqueuer is required")
	}
	return enqueuer.Enqueue(ctx, NewSweepJobMessage(serviceName, now, interval))
}

// Schedule enqueues a sweep for the current window.
func (s *Sweeper) Schedule(ctx context.Context, enqueuer JobEnqueuer) error {
	if s == nil || s.service == nil {
		return fmt.Errorf("core: sweeper is not configured")
	}
	return ScheduleSweep(ctx, enqueuer, s.service.Config().ServiceName, s.service.now(), s.interval)
}

// HandleJob runs a queued sweep. A sweep that is already running elsewhere
// counts as done for this delivery.
func (s *Sweeper) HandleJob(ctx context.Context, delivery JobDelivery) error {
	if delivery == nil {
		return fmt.Errorf("core: job delivery is required")
	}
	if msg := delivery.Message(); msg != nil && strings.TrimSpace(msg.JobID) != SweepJobID {
		err := fmt.Errorf("core: unsupported job %q", msg.JobID)
		if nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "unsupported job " + msg.JobID}); nackErr != nil {
			return errors.Join(err, nackErr)
		}
		return err
	}
	_, err := s.RunOnce(ctx)
	if err == nil || errors.Is(err, ErrSweepInProgress) {
		return delivery.Ack(ctx)
	}
	if nackErr := delivery.Nack(ctx, JobNackOptions{
		Delay:   s.interval,
		Requeue: true,
		Reason:  err.Error(),
	}); nackErr != nil {
		return errors.Join(err, nackErr)
	}
	return err
}

// ConsumeJobs dequeues sweep jobs until ctx is cancelled, reporting each
// attempt to hook when one is given.
func (s *Sweeper) ConsumeJobs(ctx context.Context, dequeuer JobDequeuer, hook JobWorkerHook) error {
	if s == nil {
		return fmt.Errorf("core: sweeper is not configured")
	}
	if dequeuer == nil {
		return fmt.Errorf("core: job dequeuer is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		delivery, err := dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.telemetry.log(ctx, "warn", "sweep job dequeue failed", map[string]any{"error": err.Error()})
			if waitErr := waitWithContext(ctx, s.poll); waitErr != nil {
				return nil
			}
			continue
		}
		if delivery == nil {
			// Empty queue; backends return no delivery without blocking.
			if waitErr := waitWithContext(ctx, s.poll); waitErr != nil {
				return nil
			}
			continue
		}

		event := JobWorkerEvent{Message: delivery.Message(), Attempt: 1, StartedAt: time.Now().UTC()}
		if counted, ok := delivery.(interface{ Attempt() int }); ok && counted.Attempt() > 0 {
			event.Attempt = counted.Attempt()
		}
		if hook != nil {
			hook.OnStart(ctx, event)
		}
		handleErr := s.HandleJob(ctx, delivery)
		event.Duration = time.Since(event.StartedAt)
		event.Err = handleErr
		if hook == nil {
			continue
		}
		if handleErr != nil {
			hook.OnFailure(ctx, event)
			continue
		}
		hook.OnSuccess(ctx, event)
	}
}

// LoggingJobHook reports worker events through the service logger.
type LoggingJobHook struct {
	telemetry telemetry
}

func NewLoggingJobHook(logger Logger, metrics MetricsRecorder) *LoggingJobHook {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &LoggingJobHook{telemetry: telemetry{logger: logger, metrics: metrics}}
}

func (h *LoggingJobHook) OnStart(ctx context.Context, event JobWorkerEvent) {
	h.telemetry.log(ctx, "debug", "job started", jobEventFields(event))
}

func (h *LoggingJobHook) OnSuccess(ctx context.Context, event JobWorkerEvent) {
	h.telemetry.observe(ctx, event.StartedAt, "job", nil, jobEventFields(event))
}

func (h *LoggingJobHook) OnFailure(ctx context.Context, event JobWorkerEvent) {
	h.telemetry.observe(ctx, event.StartedAt, "job", event.Err, jobEventFields(event))
}

func (h *LoggingJobHook) OnRetry(ctx context.Context, event JobWorkerEvent) {
	fields := jobEventFields(event)
	fields["delay_ms"] = event.Delay.Milliseconds()
	h.telemetry.log(ctx, "warn", "job retry scheduled", fields)
}

func jobEventFields(event JobWorkerEvent) map[string]any {
	fields := map[string]any{"attempt": event.Attempt}
	if event.Message != nil {
		fields["job_id"] = event.Message.JobID
		fields["idempotency_key"] = event.Message.IdempotencyKey
	}
	return fields
}
