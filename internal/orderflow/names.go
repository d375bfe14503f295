package orderflow

import (
	"strconv"
	"time"
)

// Workflow/activity type names, registered explicitly on both sides so the
// task-queue wiring in internal/temporalx doesn't depend on Go symbol names.
const (
	OrderWorkflowName    = "OrderWorkflow"
	ShippingWorkflowName = "ShippingWorkflow"

	ActivityReceiveOrder    = "receive_order"
	ActivityValidateOrder   = "validate_order"
	ActivityChargePayment   = "charge_payment"
	ActivityPersistAddress  = "persist_address"
	ActivityMarkShipped     = "mark_shipped"
	ActivityPreparePackage  = "prepare_package"
	ActivityDispatchCarrier = "dispatch_carrier"
)

// Signal and query names (§4.4, §4.3).
const (
	SignalApprove       = "approve"
	SignalCancelOrder   = "cancel_order"
	SignalUpdateAddress = "update_address"
	SignalDispatchFailed = "dispatch_failed"

	QueryStatus = "status"
)

// Constants from §4.4, carried verbatim from the reference RetryPolicy.
const (
	ActivityStartToClose    = 2 * time.Second
	ActivityScheduleToClose = 8 * time.Second

	RetryInitialInterval = 500 * time.Millisecond
	RetryBackoffCoeff    = 1.5
	RetryMaxAttempts     = 2

	ManualReviewWindow = 3 * time.Second
	ManualReviewPoll   = 100 * time.Millisecond

	ChildRunTimeout    = 10 * time.Second
	WorkflowRunTimeout = 15 * time.Second

	MaxChildAttempts = 2
)

func OrderWorkflowID(orderID string) string { return "order-" + orderID }

func ShippingWorkflowID(orderID string, attempt int) string {
	return "ship-" + orderID + "-" + strconv.Itoa(attempt)
}
