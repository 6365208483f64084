package sweep

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	WorkflowName     = "AbandonStaleDraftsWorkflow"
	DefaultRetention = 90 * 24 * time.Hour
)

type WorkflowInput struct {
	Retention time.Duration
}

// AbandonStaleDraftsWorkflow computes the cutoff from workflow time so a
// replay sees the same value, then hands the sweep to one activity.
func AbandonStaleDraftsWorkflow(ctx workflow.Context, input WorkflowInput) (AbandonStaleDraftsResult, error) {
	retention := input.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := workflow.Now(ctx).Add(-retention).UTC()

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    5,
		},
	})

	var result AbandonStaleDraftsResult
	err := workflow.ExecuteActivity(ctx, AbandonStaleDraftsActivityName, AbandonStaleDraftsInput{Cutoff: cutoff}).Get(ctx, &result)
	if err != nil {
		return AbandonStaleDraftsResult{}, err
	}
	workflow.GetLogger(ctx).Info("draft sweep finished", "abandoned", result.Abandoned, "cutoff", cutoff)
	return result, nil
}
