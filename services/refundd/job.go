package refundd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"refundkeeper/native/lovelace"
	"refundkeeper/services/refundd/ledger"
	"refundkeeper/services/refundd/store"
	"refundkeeper/services/refundd/wallet"
)

const (
	defaultLockName   = "refunds"
	defaultPageSize   = 50
	defaultStaleAfter = 24 * time.Hour
)

// Outcome names how a run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeLocked    Outcome = "locked"
	OutcomePaused    Outcome = "paused"
	OutcomeIdle      Outcome = "idle"
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
)

// AddressStore is the slice of the used address store the job depends on.
type AddressStore interface {
	StatusUpdater
	BatchUpdater
	RefundableAddresses(ctx context.Context, cutoff time.Time, limit int) ([]store.UsedAddress, error)
}

// RunRecorder persists the audit record of a run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run store.RunRecord) error
}

// Summary describes a finished run.
type Summary struct {
	RunID      string            `json:"run_id,omitempty"`
	Outcome    Outcome           `json:"outcome"`
	Message    string            `json:"message"`
	Candidates int               `json:"candidates"`
	Refunds    int               `json:"refunds"`
	Settled    int               `json:"settled"`
	BadState   int               `json:"bad_state"`
	Skipped    int               `json:"skipped"`
	Amount     lovelace.Lovelace `json:"amount"`
	TxID       string            `json:"tx_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// JobConfig captures the collaborators of a Job.
type JobConfig struct {
	Addresses  AddressStore
	Sessions   SessionLookup
	Ledger     ledger.Lookup
	Wallet     wallet.Gateway
	Lock       CronLock
	Passphrase string
}

// Job reconciles used addresses and pays out the refunds they are owed.
type Job struct {
	addresses AddressStore
	lock      CronLock
	wallet    wallet.Gateway
	verifier  *Verifier
	disburser *Disburser
	runs      RunRecorder
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	lockName   string
	pageSize   int
	staleAfter time.Duration
	threshold  lovelace.Lovelace

	mu      sync.Mutex
	paused  bool
	lastRun *Summary
}

// JobOption customises the job instance.
type JobOption func(*Job)

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) JobOption {
	return func(j *Job) { j.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) JobOption {
	return func(j *Job) { j.logger = logger }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) JobOption {
	return func(j *Job) { j.now = clock }
}

// WithRunRecorder persists an audit record for every run that takes the lock.
func WithRunRecorder(r RunRecorder) JobOption {
	return func(j *Job) { j.runs = r }
}

// WithLockName sets the cron lock name shared by competing runs.
func WithLockName(name string) JobOption {
	return func(j *Job) { j.lockName = strings.TrimSpace(name) }
}

// WithPageSize caps the number of candidates verified per run.
func WithPageSize(size int) JobOption {
	return func(j *Job) { j.pageSize = size }
}

// WithStaleAfter sets how old a pending address must be before it is verified.
func WithStaleAfter(d time.Duration) JobOption {
	return func(j *Job) { j.staleAfter = d }
}

// WithThreshold sets the amount a refund must exceed to be paid out.
func WithThreshold(threshold lovelace.Lovelace) JobOption {
	return func(j *Job) { j.threshold = threshold }
}

// NewJob constructs a refund job.
func NewJob(cfg JobConfig, opts ...JobOption) (*Job, error) {
	if cfg.Addresses == nil {
		return nil, errors.New("refundd: address store is required")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("refundd: wallet is required")
	}
	if cfg.Lock == nil {
		return nil, errors.New("refundd: cron lock is required")
	}
	job := &Job{
		addresses:  cfg.Addresses,
		lock:       cfg.Lock,
		wallet:     cfg.Wallet,
		metrics:    NewMetrics(),
		logger:     slog.Default(),
		now:        time.Now,
		lockName:   defaultLockName,
		pageSize:   defaultPageSize,
		staleAfter: defaultStaleAfter,
		threshold:  lovelace.PerADA,
	}
	for _, opt := range opts {
		opt(job)
	}
	if job.metrics == nil {
		job.metrics = NewMetrics()
	}
	if job.logger == nil {
		job.logger = slog.Default()
	}
	if job.lockName == "" {
		job.lockName = defaultLockName
	}
	if job.pageSize <= 0 {
		job.pageSize = defaultPageSize
	}
	if job.staleAfter < 0 {
		job.staleAfter = 0
	}
	job.logger = job.logger.With("component", "refund_job")
	job.tracer = otel.Tracer("refundkeeper/refundd")

	verifier, err := NewVerifier(VerifierConfig{
		Ledger:    cfg.Ledger,
		Sessions:  cfg.Sessions,
		Statuses:  cfg.Addresses,
		Threshold: job.threshold,
		Logger:    job.logger,
	})
	if err != nil {
		return nil, err
	}
	disburser, err := NewDisburser(cfg.Addresses, cfg.Wallet, cfg.Passphrase, job.logger)
	if err != nil {
		return nil, err
	}
	job.verifier = verifier
	job.disburser = disburser
	return job, nil
}

// Run executes one reconciliation pass. Lock contention and an empty
// candidate page are reported through the summary, not as errors. The cron
// lock is released on every path once acquired.
//
// A run is never cancelled by its caller: once a payment is accepted the
// processed write must land, so ctx only contributes its values.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	ctx = context.WithoutCancel(ctx)
	if j.Paused() {
		summary := Summary{Outcome: OutcomePaused, Message: "Refund job is paused"}
		j.metrics.ObserveRun(string(OutcomePaused), 0)
		return summary, nil
	}

	acquired, err := j.lock.TryAcquire(ctx, j.lockName)
	if err != nil {
		j.metrics.RecordError("lock")
		err = fmt.Errorf("refundd: acquire lock %s: %w", j.lockName, err)
		return Summary{Outcome: OutcomeFailed, Message: err.Error()}, err
	}
	if !acquired {
		j.logger.Info("refund job already running", "lock", j.lockName)
		j.metrics.ObserveRun(string(OutcomeLocked), 0)
		return Summary{Outcome: OutcomeLocked, Message: "Refund job is locked"}, nil
	}
	defer func() {
		if err := j.lock.Release(ctx, j.lockName); err != nil {
			j.metrics.RecordError("unlock")
			j.logger.Error("release cron lock", "lock", j.lockName, "error", err)
		}
	}()

	summary := Summary{RunID: uuid.NewString(), StartedAt: j.now().UTC()}
	ctx, span := j.tracer.Start(ctx, "refundd.run", trace.WithAttributes(attribute.String("refundd.run_id", summary.RunID)))
	defer span.End()
	logger := j.logger.With("run_id", summary.RunID)

	err = j.execute(ctx, logger, &summary)
	summary.FinishedAt = j.now().UTC()
	if err != nil {
		summary.Outcome = OutcomeFailed
		summary.Message = err.Error()
		j.metrics.RecordError(failureReason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("refund job failed", "error", err, "tx_id", summary.TxID)
	} else {
		logger.Info("refund job finished", "outcome", summary.Outcome, "refunds", summary.Refunds,
			"settled", summary.Settled, "bad_state", summary.BadState, "skipped", summary.Skipped)
	}
	span.SetAttributes(
		attribute.String("refundd.outcome", string(summary.Outcome)),
		attribute.Int("refundd.refunds", summary.Refunds),
	)
	j.metrics.ObserveRun(string(summary.Outcome), summary.FinishedAt.Sub(summary.StartedAt))
	j.record(ctx, logger, summary, err)

	j.mu.Lock()
	last := summary
	j.lastRun = &last
	j.mu.Unlock()
	return summary, err
}

func (j *Job) execute(ctx context.Context, logger *slog.Logger, summary *Summary) error {
	cutoff := summary.StartedAt.Add(-j.staleAfter)
	candidates, err := j.addresses.RefundableAddresses(ctx, cutoff, j.pageSize)
	if err != nil {
		return fmt.Errorf("refundd: load candidates: %w", err)
	}
	summary.Candidates = len(candidates)
	if len(candidates) == 0 {
		summary.Outcome = OutcomeIdle
		summary.Message = "No refundable addresses found"
		return nil
	}

	refunds := make([]Refund, 0, len(candidates))
	for _, candidate := range candidates {
		verdict, err := j.verifier.Verify(ctx, candidate.ID)
		if err != nil {
			if errors.Is(err, ErrLookupFailed) {
				summary.Skipped++
				j.metrics.RecordVerdict(VerdictSkip.String())
				continue
			}
			return err
		}
		j.metrics.RecordVerdict(verdict.Kind.String())
		switch verdict.Kind {
		case VerdictRefund:
			refunds = append(refunds, *verdict.Refund)
		case VerdictSettled:
			summary.Settled++
		case VerdictBadState:
			summary.BadState++
		default:
			summary.Skipped++
		}
	}
	if len(refunds) == 0 {
		summary.Outcome = OutcomeIdle
		summary.Message = "No refunds owed"
		return nil
	}

	amount, err := totalAmount(refunds)
	if err != nil {
		return fmt.Errorf("refundd: sum refunds: %w", err)
	}
	summary.Amount = amount
	if err := EnsureCovered(ctx, j.wallet, refunds); err != nil {
		return err
	}
	logger.Info("disbursing refunds", "count", len(refunds), "lovelace", amount.String())
	summary.Refunds = len(refunds)
	txID, err := j.disburser.Disburse(ctx, refunds)
	summary.TxID = txID
	if err != nil {
		return err
	}
	summary.Outcome = OutcomeProcessed
	summary.Message = fmt.Sprintf("Processed %d refunds", len(refunds))
	j.metrics.RecordDisbursement(len(refunds), amount.Int64())
	return nil
}

func (j *Job) record(ctx context.Context, logger *slog.Logger, summary Summary, runErr error) {
	if j.runs == nil {
		return
	}
	id, err := uuid.Parse(summary.RunID)
	if err != nil {
		id = uuid.New()
	}
	rec := store.RunRecord{
		ID:         id,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Outcome:    string(summary.Outcome),
		Candidates: summary.Candidates,
		Refunds:    summary.Refunds,
		Settled:    summary.Settled,
		BadState:   summary.BadState,
		Skipped:    summary.Skipped,
		Amount:     summary.Amount.Int64(),
		TxID:       summary.TxID,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := j.runs.RecordRun(ctx, rec); err != nil {
		j.metrics.RecordError("audit")
		logger.Error("record refund run", "error", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrSubmissionFailed):
		return "submission"
	default:
		return "run"
	}
}

// Pause stops future runs from taking the lock.
func (j *Job) Pause() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paused = true
	j.metrics.SetPause(true)
}

// Resume re-enables runs.
func (j *Job) Resume() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paused = false
	j.metrics.SetPause(false)
}

// Paused reports whether the job is paused.
func (j *Job) Paused() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.paused
}

// Status summarises job state for administrative endpoints.
type Status struct {
	Paused     bool     `json:"paused"`
	LockName   string   `json:"lock_name"`
	PageSize   int      `json:"page_size"`
	StaleAfter string   `json:"stale_after"`
	Threshold  string   `json:"refund_threshold"`
	LastRun    *Summary `json:"last_run,omitempty"`
}

// Status reports the current job status snapshot.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	status := Status{
		Paused:     j.paused,
		LockName:   j.lockName,
		PageSize:   j.pageSize,
		StaleAfter: j.staleAfter.String(),
		Threshold:  j.threshold.String(),
	}
	if j.lastRun != nil {
		last := *j.lastRun
		status.LastRun = &last
	}
	return status
}
