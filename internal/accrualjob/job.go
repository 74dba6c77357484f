package accrualjob

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slhventures/investorledger/pkg/ledger"
)

// Config controls the daily interest run.
type Config struct {
	APR           decimal.Decimal
	Currency      ledger.Currency
	Bucket        ledger.Bucket
	RunHourUTC    int
	CheckInterval time.Duration
}

func (cfg Config) checkInterval() time.Duration {
	if cfg.CheckInterval <= 0 {
		return time.Minute
	}
	return cfg.CheckInterval
}

// Accruer is the slice of the ledger service the job needs.
type Accruer interface {
	AccrueDaily(ctx context.Context, authorization ledger.Authorization, input ledger.AccrualInput) (ledger.AccrualResult, error)
}

// Job runs the interest accrual once per UTC day at the configured hour.
// The accrual itself is idempotent, so a restarted process re-firing for a
// day that already ran credits nothing.
type Job struct {
	cfg     Config
	service Accruer
	lock    RunLock
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wires a Job. A nil lock degrades to the no-op lock.
func New(cfg Config, service Accruer, lock RunLock, logger *zap.Logger) *Job {
	if lock == nil {
		lock = NoopRunLock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{cfg: cfg, service: service, lock: lock, logger: logger.Named("accrualjob")}
}

// Start launches the scheduler loop. It returns immediately; call Stop to
// shut the loop down.
func (job *Job) Start(ctx context.Context) {
	ctx, job.cancel = context.WithCancel(ctx)
	job.done = make(chan struct{})
	go job.loop(ctx)
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (job *Job) Stop() {
	if job.cancel == nil {
		return
	}
	job.cancel()
	<-job.done
}

func (job *Job) loop(ctx context.Context) {
	defer close(job.done)
	ticker := time.NewTicker(job.cfg.checkInterval())
	defer ticker.Stop()

	var lastRunDay string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Hour() < job.cfg.RunHourUTC {
				continue
			}
			day := ledger.NewDay(now)
			if day.String() == lastRunDay {
				continue
			}
			if err := job.RunOnce(ctx, day); err != nil {
				job.logger.Warn("accrual run failed", zap.String("day", day.String()), zap.Error(err))
				continue
			}
			lastRunDay = day.String()
		}
	}
}

// RunOnce executes a single accrual for the given day under the run lock.
// Losing the lock race is not an error; another scheduler owns the day.
func (job *Job) RunOnce(ctx context.Context, day ledger.Day) error {
	key := fmt.Sprintf("accrual:%s:%s:%s", job.cfg.Bucket, job.cfg.Currency, day)
	release, acquired, err := job.lock.TryAcquire(ctx, key)
	if err != nil {
		return err
	}
	if !acquired {
		job.logger.Info("accrual already running elsewhere", zap.String("day", day.String()))
		return nil
	}
	defer release()

	result, err := job.service.AccrueDaily(ctx, ledger.SystemAuthorization(), ledger.AccrualInput{
		APR:      job.cfg.APR,
		Currency: job.cfg.Currency,
		Bucket:   job.cfg.Bucket,
		Day:      day,
	})
	if err != nil {
		return err
	}
	job.logger.Info("accrual run complete",
		zap.String("day", result.Day.String()),
		zap.Int("processed", result.Processed),
		zap.Int("credited", result.Credited),
		zap.Int("skipped", result.Skipped),
		zap.String("total_interest", result.TotalInterest.String()),
	)
	return nil
}
