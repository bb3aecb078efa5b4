package shared

// Asynq task types
const (
	TypeReconcilePendingPayments = "payment:reconcile_pending"
)

// Asynq queues
const (
	QueuePayment = "payment"
	QueueDefault = "default"
)

// ReconcilePayload is the payload of TypeReconcilePendingPayments.
// An empty payload reconciles with the service's configured batch.
type ReconcilePayload struct {
	TriggeredBy string `json:"triggered_by,omitempty"`
}
