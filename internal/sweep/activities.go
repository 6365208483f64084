package sweep

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
)

const AbandonStaleDraftsActivityName = "AbandonStaleDrafts"

// DraftSweeper abandons open drafts untouched since cutoff.
type DraftSweeper interface {
	AbandonInactive(ctx context.Context, cutoff time.Time) (int, error)
}

type Activities struct {
	Drafts DraftSweeper
}

type AbandonStaleDraftsInput struct {
	Cutoff time.Time
}

type AbandonStaleDraftsResult struct {
	Cutoff    time.Time
	Abandoned int
}

func New(drafts DraftSweeper) *Activities {
	return &Activities{Drafts: drafts}
}

func (a *Activities) AbandonStaleDrafts(ctx context.Context, input AbandonStaleDraftsInput) (AbandonStaleDraftsResult, error) {
	if a == nil || a.Drafts == nil {
		return AbandonStaleDraftsResult{}, fmt.Errorf("draft sweeper not configured")
	}
	if input.Cutoff.IsZero() {
		return AbandonStaleDraftsResult{}, fmt.Errorf("cutoff is required")
	}
	n, err := a.Drafts.AbandonInactive(ctx, input.Cutoff)
	if n > 0 {
		activity.GetLogger(ctx).Info("abandoned stale drafts", "count", n, "cutoff", input.Cutoff)
	}
	return AbandonStaleDraftsResult{Cutoff: input.Cutoff, Abandoned: n}, err
}
