package orderflow

import (
	"encoding/json"
	"fmt"

	"go.temporal.io/sdk/workflow"
)

// OrderStartInput is the admission payload passed to client.ExecuteWorkflow. OrderID
// duplicates the `order-<id>` workflow ID so activities have it without
// parsing the execution ID back apart.
type OrderStartInput struct {
	OrderID           string          `json:"order_id"`
	PaymentID         string          `json:"payment_id"`
	Address           json.RawMessage `json:"address,omitempty"`
	Items             []Item          `json:"items,omitempty"`
	ShippingTaskQueue string          `json:"shipping_task_queue,omitempty"`
}

// orderState is the in-memory state reconstructed by durable replay (§3).
// It is allocated with empty identifiers before any signal is processed, so
// a signal delivered prior to run() populating the order-specific fields is
// absorbed safely rather than dropped.
type orderState struct {
	OrderID               string
	PaymentID             string
	Address               json.RawMessage
	Items                 []Item
	Approved              bool
	Canceled              bool
	CancelReason          string
	CurrentStep           string
	ChildAttempts         int
	LastError             string
	DispatchFailedReason  *string
}

// StatusResult is the shape returned by the status() query.
type StatusResult struct {
	OrderID              string  `json:"order_id"`
	Step                 string  `json:"step"`
	Approved             bool    `json:"approved"`
	Canceled             bool    `json:"canceled"`
	CancelReason         string  `json:"cancel_reason,omitempty"`
	ChildAttempts        int     `json:"child_attempts"`
	LastError            string  `json:"last_error,omitempty"`
	DispatchFailedReason *string `json:"dispatch_failed_reason,omitempty"`
}

func snapshot(s *orderState) StatusResult {
	return StatusResult{
		OrderID:              s.OrderID,
		Step:                 s.CurrentStep,
		Approved:             s.Approved,
		Canceled:             s.Canceled,
		CancelReason:         s.CancelReason,
		ChildAttempts:        s.ChildAttempts,
		LastError:            s.LastError,
		DispatchFailedReason: s.DispatchFailedReason,
	}
}

// OrderWorkflow is the main state machine (C4): receive, validate, an
// optional address persist, a manual-review gate, payment, a shipping child
// with bounded retry, and a final mark-shipped step. It owns the approve /
// cancel_order / update_address / dispatch_failed signals and the status
// query.
func OrderWorkflow(ctx workflow.Context, in OrderStartInput) (string, error) {
	state := &orderState{CurrentStep: "init"}

	approveCh := workflow.GetSignalChannel(ctx, SignalApprove)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancelOrder)
	addressCh := workflow.GetSignalChannel(ctx, SignalUpdateAddress)
	dispatchFailedCh := workflow.GetSignalChannel(ctx, SignalDispatchFailed)

	// Signals are merged into state by a dedicated coroutine so they are
	// observable as soon as the scheduler yields control to it — including
	// ones buffered before run() reaches its first await — without the main
	// sequence having to poll each channel itself.
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			sel := workflow.NewSelector(gCtx)
			sel.AddReceive(approveCh, func(c workflow.ReceiveChannel, more bool) {
				var ignored interface{}
				c.Receive(gCtx, &ignored)
				state.Approved = true
			})
			sel.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
				var reason string
				c.Receive(gCtx, &reason)
				if reason == "" {
					reason = "user_request"
				}
				state.Canceled = true
				state.CancelReason = reason
			})
			sel.AddReceive(addressCh, func(c workflow.ReceiveChannel, more bool) {
				var addr json.RawMessage
				c.Receive(gCtx, &addr)
				state.Address = addr
			})
			sel.AddReceive(dispatchFailedCh, func(c workflow.ReceiveChannel, more bool) {
				var reason string
				c.Receive(gCtx, &reason)
				r := reason
				state.DispatchFailedReason = &r
			})
			sel.Select(gCtx)
		}
	})

	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (StatusResult, error) {
		return snapshot(state), nil
	}); err != nil {
		return "", fmt.Errorf("order_workflow: set query handler: %w", err)
	}

	state.OrderID = in.OrderID
	state.PaymentID = in.PaymentID
	state.Address = in.Address

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    ActivityStartToClose,
		ScheduleToCloseTimeout: ActivityScheduleToClose,
		RetryPolicy:            activityRetryPolicy(),
	})

	cancelCheckpoint := func() (string, bool) {
		if state.Canceled {
			return "canceled", true
		}
		return "", false
	}

	state.CurrentStep = "receive_order"
	var order OrderObject
	if err := workflow.ExecuteActivity(actx, ActivityReceiveOrder, ReceiveOrderInput{
		OrderID: in.OrderID,
		Address: in.Address,
		Items:   in.Items,
	}).Get(actx, &order); err != nil {
		return "", err
	}
	if res, done := cancelCheckpoint(); done {
		return res, nil
	}

	state.CurrentStep = "validate_order"
	var validated bool
	if err := workflow.ExecuteActivity(actx, ActivityValidateOrder, order).Get(actx, &validated); err != nil {
		return "", err
	}
	if res, done := cancelCheckpoint(); done {
		return res, nil
	}

	// Address-persist decision: covers both the address supplied at start and
	// any update_address signal merged in during receive/validate.
	if len(state.Address) > 0 {
		state.CurrentStep = "persist_address"
		var persisted string
		if err := workflow.ExecuteActivity(actx, ActivityPersistAddress, PersistAddressInput{
			OrderID: order.OrderID,
			Address: state.Address,
		}).Get(actx, &persisted); err != nil {
			return "", err
		}
		if res, done := cancelCheckpoint(); done {
			return res, nil
		}
	}

	state.CurrentStep = "awaiting_approval"
	deadline := workflow.Now(ctx).Add(ManualReviewWindow)
	for {
		if state.Canceled {
			return "canceled", nil
		}
		if state.Approved {
			break
		}
		if !workflow.Now(ctx).Before(deadline) {
			state.LastError = "manual_review_timeout"
			state.CurrentStep = "failed"
			return "failed", nil
		}
		if err := workflow.Sleep(ctx, ManualReviewPoll); err != nil {
			return "", err
		}
	}

	state.CurrentStep = "charge_payment"
	var charged ChargePaymentOutput
	if err := workflow.ExecuteActivity(actx, ActivityChargePayment, ChargePaymentInput{
		Order:     order,
		PaymentID: in.PaymentID,
	}).Get(actx, &charged); err != nil {
		return "", err
	}
	if res, done := cancelCheckpoint(); done {
		return res, nil
	}

	shippingTQ := in.ShippingTaskQueue
	if shippingTQ == "" {
		shippingTQ = "shipping-tq"
	}

	state.CurrentStep = "shipping_child"
	for attempt := 1; attempt <= MaxChildAttempts; attempt++ {
		state.ChildAttempts = attempt
		cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:         ShippingWorkflowID(order.OrderID, attempt),
			TaskQueue:          shippingTQ,
			WorkflowRunTimeout: ChildRunTimeout,
		})

		var childResult string
		err := workflow.ExecuteChildWorkflow(cctx, ShippingWorkflowName, ShippingInput{
			Order:            order,
			ParentWorkflowID: workflow.GetInfo(ctx).WorkflowExecution.ID,
		}).Get(cctx, &childResult)

		if err == nil {
			break
		}

		state.LastError = err.Error()
		if res, done := cancelCheckpoint(); done {
			return res, nil
		}
		if attempt == MaxChildAttempts {
			state.CurrentStep = "failed"
			state.LastError = fmt.Sprintf("shipping_failed: %s", err.Error())
			return "failed", nil
		}
	}
	if res, done := cancelCheckpoint(); done {
		return res, nil
	}

	state.CurrentStep = "mark_shipped"
	var shipped string
	if err := workflow.ExecuteActivity(actx, ActivityMarkShipped, MarkShippedInput{OrderID: order.OrderID}).Get(actx, &shipped); err != nil {
		return "", err
	}
	if res, done := cancelCheckpoint(); done {
		return res, nil
	}

	state.CurrentStep = "done"
	return "shipped", nil
}
