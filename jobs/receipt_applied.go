package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
)

// ReceiptAppliedJob re-checks an order right after a receipt landed on it.
type ReceiptAppliedJob struct {
	Orders  OrderChecker
	Audit   AuditPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReceiptAppliedJob initialises the handler.
func NewReceiptAppliedJob(orders OrderChecker, audit AuditPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReceiptAppliedJob {
	return &ReceiptAppliedJob{
		Orders:  orders,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskReceiptApplied tasks.
func (j *ReceiptAppliedJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Orders == nil {
		return errors.New("receipt applied: handler not configured")
	}
	var payload ReceiptAppliedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.PurchaseOrderID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReceiptApplied)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int64("grn_id", payload.GRNID),
		slog.String("grn_number", payload.GRNNumber),
		slog.Int64("po_id", payload.PurchaseOrderID),
	)

	po, issues, err := j.Orders.CheckOrder(ctx, payload.PurchaseOrderID)
	if errors.Is(err, procurement.ErrNotFound) {
		logger.Info("order gone before follow-up, dropping")
		return nil
	}
	if err != nil {
		logger.Error("check order", slog.Any("error", err))
		return err
	}
	if len(issues) > 0 {
		flagOrder(ctx, logger, j.Audit, j.metrics(), "receipt", po, issues, j.now())
	}
	logger.Info("receipt applied",
		slog.String("status", string(po.Status)),
		slog.String("event_status", payload.Status),
		slog.Duration("lag", j.now().Sub(payload.AppliedAt)),
	)
	return nil
}

func (j *ReceiptAppliedJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReceiptApplied))
	}
	return slog.Default().With(slog.String("job", TaskReceiptApplied))
}

func (j *ReceiptAppliedJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReceiptAppliedJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
