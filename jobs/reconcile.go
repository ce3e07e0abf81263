package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// ConsistencyFlagAction is the audit action written for an order whose
// stored quantities contradict each other.
const ConsistencyFlagAction = "PO_CONSISTENCY_FLAG"

// OrderChecker is the slice of the procurement service the jobs need.
type OrderChecker interface {
	ReconcileCandidates(ctx context.Context) ([]int64, error)
	CheckOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, []fulfillment.Issue, error)
}

// ScanLocker hands out the lease that keeps scans from overlapping.
type ScanLocker interface {
	Acquire(ctx context.Context, key string) (*shared.Lease, error)
}

// AuditPort records consistency flags.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReconcileReport summarises a scan.
type ReconcileReport struct {
	Candidates int
	Checked    int
	Flagged    int
	Skipped    bool
}

// ReconcileJob re-runs the consistency check over every order that can still
// take receipts and flags the ones that drifted.
type ReconcileJob struct {
	Orders      OrderChecker
	Locker      ScanLocker
	Audit       AuditPort
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	clock       func() time.Time
}

// NewReconcileJob initialises the reconcile scan handler.
func NewReconcileJob(orders OrderChecker, locker ScanLocker, audit AuditPort, logger *slog.Logger, metrics *jobmetrics.Metrics, concurrency int) *ReconcileJob {
	return &ReconcileJob{
		Orders:      orders,
		Locker:      locker,
		Audit:       audit,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: concurrency,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan for an Asynq task.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reconcile scan: handler not configured")
	}
	var payload ReconcileScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Limit)
	return err
}

// Run performs one scan. A scan already running elsewhere makes this one a
// no-op.
func (j *ReconcileJob) Run(ctx context.Context, limit int) (report ReconcileReport, resultErr error) {
	if j.Orders == nil {
		return report, errors.New("reconcile scan: orders not configured")
	}
	start := j.now()
	tracker := j.metrics().Track(TaskReconcileScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger()

	if j.Locker != nil {
		lease, err := j.Locker.Acquire(ctx, shared.ReconcileLockKey())
		if errors.Is(err, shared.ErrLockHeld) {
			logger.Info("reconcile scan already running, skipping")
			tracker.Skip()
			report.Skipped = true
			return report, nil
		}
		if err != nil {
			return report, err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release reconcile lock", slog.Any("error", err))
			}
		}()
	}

	ids, err := j.Orders.ReconcileCandidates(ctx)
	if err != nil {
		logger.Error("list reconcile candidates", slog.Any("error", err))
		return report, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	report.Candidates = len(ids)
	logger.Info("starting reconcile scan", slog.Int("candidates", len(ids)))

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for _, id := range ids {
		g.Go(func() error {
			flagged, err := j.checkOne(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, procurement.ErrNotFound):
				return nil
			case err != nil:
				logger.Warn("check order", slog.Int64("po_id", id), slog.Any("error", err))
				failures = append(failures, fmt.Errorf("po %d: %w", id, err))
				return nil
			}
			report.Checked++
			if flagged {
				report.Flagged++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	logger.Info("completed reconcile scan",
		slog.Int("checked", report.Checked),
		slog.Int("flagged", report.Flagged),
		slog.Int("failed", len(failures)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, errors.Join(failures...)
}

func (j *ReconcileJob) checkOne(ctx context.Context, id int64) (bool, error) {
	po, issues, err := j.Orders.CheckOrder(ctx, id)
	if err != nil {
		return false, err
	}
	if len(issues) == 0 {
		return false, nil
	}
	flagOrder(ctx, j.logger(), j.Audit, j.metrics(), "scan", po, issues, j.now())
	return true, nil
}

// flagOrder logs, audits and counts a drifted order.
func flagOrder(ctx context.Context, logger *slog.Logger, audit AuditPort, metrics *jobmetrics.Metrics, source string, po procurement.PurchaseOrder, issues []fulfillment.Issue, at time.Time) {
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		messages = append(messages, issue.Error())
	}
	logger.Warn("purchase order consistency flag",
		slog.Int64("po_id", po.ID),
		slog.String("po_number", po.Number),
		slog.String("status", string(po.Status)),
		slog.Any("issues", messages),
	)
	metrics.AddConsistencyFlags(source, len(issues))
	if audit == nil {
		return
	}
	err := audit.Record(ctx, shared.AuditLog{
		Action:   ConsistencyFlagAction,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", po.ID),
		Meta: map[string]any{
			"number": po.Number,
			"status": string(po.Status),
			"source": source,
			"issues": messages,
		},
		At: at,
	})
	if err != nil {
		logger.Warn("audit consistency flag", slog.Any("error", err), slog.Int64("po_id", po.ID))
	}
}

func (j *ReconcileJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return 4
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconcileScan))
	}
	return slog.Default().With(slog.String("job", TaskReconcileScan))
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconcileJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
