package orderflow

import (
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ShippingInput is the child workflow's start payload.
type ShippingInput struct {
	Order            OrderObject `json:"order"`
	ParentWorkflowID string      `json:"parent_workflow_id"`
}

func activityRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    RetryInitialInterval,
		BackoffCoefficient: RetryBackoffCoeff,
		MaximumAttempts:    RetryMaxAttempts,
	}
}

// ShippingWorkflow is the two-step child (C3): prepare package, then
// dispatch carrier. On a terminal dispatch failure it signals the parent
// with the failure reason before re-raising, so the parent's own invocation
// of this child also observes the failure and drives its retry loop.
// The child exposes no signals or queries of its own.
func ShippingWorkflow(ctx workflow.Context, in ShippingInput) (string, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    ActivityStartToClose,
		ScheduleToCloseTimeout: ActivityScheduleToClose,
		RetryPolicy:            activityRetryPolicy(),
	})

	var prepared string
	if err := workflow.ExecuteActivity(ctx, ActivityPreparePackage, in.Order).Get(ctx, &prepared); err != nil {
		return "", fmt.Errorf("prepare_package: %w", err)
	}

	var dispatched string
	if err := workflow.ExecuteActivity(ctx, ActivityDispatchCarrier, in.Order).Get(ctx, &dispatched); err != nil {
		reason := err.Error()
		if in.ParentWorkflowID != "" {
			_ = workflow.SignalExternalWorkflow(ctx, in.ParentWorkflowID, "", SignalDispatchFailed, reason).Get(ctx, nil)
		}
		return "", fmt.Errorf("dispatch_carrier: %w", err)
	}

	return "dispatched", nil
}
