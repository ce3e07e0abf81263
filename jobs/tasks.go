package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReceiptApplied follows up a goods receipt applied to an order.
	TaskReceiptApplied = "procurement:receipt_applied"
	// TaskReconcileScan re-checks every open order for drift.
	TaskReconcileScan = "procurement:reconcile_scan"
)

// ReceiptAppliedPayload identifies the receipt and the order it touched.
type ReceiptAppliedPayload struct {
	GRNID           int64     `json:"grn_id"`
	GRNNumber       string    `json:"grn_number"`
	PurchaseOrderID int64     `json:"purchase_order_id"`
	Status          string    `json:"status"`
	AppliedAt       time.Time `json:"applied_at"`
}

// NewReceiptAppliedTask constructs an Asynq task.
func NewReceiptAppliedTask(payload ReceiptAppliedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceiptApplied, data), nil
}

// ReconcileScanPayload bounds a scan. Limit 0 checks every candidate.
type ReconcileScanPayload struct {
	Limit int `json:"limit"`
}

// NewReconcileScanTask constructs the scheduled scan task.
func NewReconcileScanTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(ReconcileScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileScan, data), nil
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)
