package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// SweepReport summarises one sweep run.
type SweepReport struct {
	StartedAt time.Time
	Cutoff    time.Time
	Scanned   int
	Resolved  int
	Replayed  int
	Conflicts int
	Failed    int
	Skipped   int
}

// Sweeper resolves intents that stayed pending past the quiescence window,
// using the configured policy. It goes through Service.Resolve like every
// other resolution path, so a sweep racing a callback settles the intent
// exactly once.
type Sweeper struct {
	service    *Service
	policy     SweepPolicy
	locker     SweepLocker
	lockKey    string
	disabled   bool
	interval   time.Duration
	quiescence time.Duration
	batchSize  int
	lockTTL    time.Duration
	poll       time.Duration
	running    atomic.Bool
	telemetry  telemetry
}

type SweeperOption func(*Sweeper)

func WithSweepPolicy(policy SweepPolicy) SweeperOption {
	return func(s *Sweeper) {
		if policy != nil {
			s.policy = policy
		}
	}
}

func WithSweepLocker(locker SweepLocker) SweeperOption {
	return func(s *Sweeper) {
		if locker != nil {
			s.locker = locker
		}
	}
}

func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithSweepQuiescence(quiescence time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if quiescence > 0 {
			s.quiescence = quiescence
		}
	}
}

func WithSweepBatchSize(size int) SweeperOption {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithJobPollInterval sets how long ConsumeJobs waits after an empty or
// failed dequeue.
func WithJobPollInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.poll = interval
		}
	}
}

func NewSweeper(service *Service, opts ...SweeperOption) (*Sweeper, error) {
	if service == nil {
		return nil, fmt.Errorf("core: sweeper requires a service")
	}
	cfg := service.Config().Sweeper
	policy, err := PolicyFromName(cfg.Policy)
	if err != nil {
		return nil, err
	}
	sweeper := &Sweeper{
		service:    service,
		policy:     policy,
		locker:     NewMemorySweepLocker(),
		lockKey:    SweepLockKey(service.Config().ServiceName),
		disabled:   cfg.Disabled,
		interval:   cfg.Interval,
		quiescence: cfg.Quiescence,
		batchSize:  cfg.BatchSize,
		lockTTL:    cfg.LockTTL,
		poll:       cfg.PollInterval,
		telemetry:  service.telemetry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sweeper)
		}
	}
	if sweeper.poll <= 0 {
		sweeper.poll = defaultJobPollInterval
	}
	return sweeper, nil
}

func (s *Sweeper) Interval() time.Duration {
	if s == nil {
		return 0
	}
	return s.interval
}

// RunOnce performs a single sweep. Overlapping runs, in this process or
// across processes sharing the locker, return ErrSweepInProgress.
func (s *Sweeper) RunOnce(ctx context.Context) (report SweepReport, err error) {
	if s == nil || s.service == nil {
		return SweepReport{}, fmt.Errorf("core: sweeper is not configured")
	}
	if !s.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	handle, err := s.locker.Acquire(ctx, s.lockKey, s.lockTTL)
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.telemetry.log(ctx, "debug", "sweep skipped, lock held elsewhere", map[string]any{"lock_key": s.lockKey})
			return SweepReport{}, ErrSweepInProgress
		}
		return SweepReport{}, s.service.mapError(err)
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			s.telemetry.log(ctx, "warn", "sweep lock release failed", map[string]any{
				"lock_key": s.lockKey,
				"error":    unlockErr.Error(),
			})
		}
	}()

	startedAt := time.Now().UTC()
	report.StartedAt = s.service.now()
	report.Cutoff = report.StartedAt.Add(-s.quiescence)
	defer func() {
		s.telemetry.observe(ctx, startedAt, "sweep", err, map[string]any{
			"cutoff":    report.Cutoff,
			"scanned":   report.Scanned,
			"resolved":  report.Resolved,
			"replayed":  report.Replayed,
			"conflicts": report.Conflicts,
			"failed":    report.Failed,
			"skipped":   report.Skipped,
		})
	}()

	// Keyset paging over (created_at, id). A started page runs to completion;
	// each item is its own atomic commit.
	workCtx := context.WithoutCancel(ctx)
	var cursor StaleCursor
	for {
		intents, err := s.service.store.ListStalePending(ctx, report.Cutoff, cursor, s.batchSize)
		if err != nil {
			return report, s.service.mapError(NewStorageError(err, "stale intent scan failed"))
		}
		for _, intent := range intents {
			s.sweepIntent(ctx, workCtx, intent, &report)
		}
		if len(intents) == 0 || s.batchSize <= 0 || len(intents) < s.batchSize {
			break
		}
		cursor = StaleCursorAfter(intents[len(intents)-1])
		if ctx.Err() != nil {
			s.telemetry.log(ctx, "debug", "sweep stopped between pages", map[string]any{
				"scanned": report.Scanned,
				"cursor":  cursor.ID,
			})
			break
		}
	}
	return report, nil
}

func (s *Sweeper) sweepIntent(ctx, workCtx context.Context, intent PaymentIntent, report *SweepReport) {
	report.Scanned++
	outcome, ok := s.policy.Decide(workCtx, intent, report.StartedAt)
	if !ok {
		report.Skipped++
		return
	}
	result, err := s.service.Resolve(workCtx, ResolveRequest{
		IntentID: intent.ID,
		Outcome:  outcome,
		Source:   ResolutionSourceSweeper,
	})
	switch {
	case err == nil && result.Replayed:
		report.Replayed++
	case err == nil:
		report.Resolved++
	case IsErrorKind(err, ErrorConflict):
		report.Conflicts++
	default:
		report.Failed++
		s.telemetry.log(ctx, "error", "sweep item failed", map[string]any{
			"intent_id": intent.ID,
			"error":     err.Error(),
		})
	}
}

// Run sweeps on every interval tick until ctx is cancelled. Cancellation is
// observed between pages and between runs.
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: sweeper is not configured")
	}
	if s.disabled {
		s.telemetry.log(ctx, "info", "sweeper disabled", nil)
		return nil
	}
	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.telemetry.log(ctx, "error", "sweep run failed", map[string]any{"error": err.Error()})
		}
		if err := waitWithContext(ctx, s.interval); err != nil {
			return nil
		}
	}
}

type assumePaidPolicy struct{}

// AssumePaidPolicy settles stale intents as paid with synthetic transaction
// facts.
func AssumePaidPolicy() SweepPolicy {
	return assumePaidPolicy{}
}

func (assumePaidPolicy) Decide(_ context.Context, intent PaymentIntent, _ time.Time) (Outcome, bool) {
	reference := strings.TrimSpace(intent.ProviderOrderID)
	if reference == "" {
		reference = strconv.FormatInt(intent.ID, 10)
	}
	return PaidOutcome(
		"AUTO-"+reference,
		"AUTH-"+strconv.FormatInt(intent.ID, 10),
		"3",
	), true
}

type assumeFailedPolicy struct{}

func AssumeFailedPolicy() SweepPolicy {
	return assumeFailedPolicy{}
}

func (assumeFailedPolicy) Decide(context.Context, PaymentIntent, time.Time) (Outcome, bool) {
	return FailedOutcome("no confirmation received"), true
}

type leavePendingPolicy struct{}

// LeavePendingPolicy reports stale intents without resolving them.
func LeavePendingPolicy() SweepPolicy {
	return leavePendingPolicy{}
}

func (leavePendingPolicy) Decide(context.Context, PaymentIntent, time.Time) (Outcome, bool) {
	return Outcome{}, false
}

func PolicyFromName(name string) (SweepPolicy, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", SweepPolicyAssumePaid:
		return AssumePaidPolicy(), nil
	case SweepPolicyAssumeFailed:
		return AssumeFailedPolicy(), nil
	case SweepPolicyLeavePending:
		return LeavePendingPolicy(), nil
	default:
		return nil, fmt.Errorf("core: unknown sweep policy %q", name)
	}
}
