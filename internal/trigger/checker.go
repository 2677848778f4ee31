package trigger

import (
	"context"
	"fmt"
	"time"
)

type ArticleState interface {
	LatestCreatedAt(ctx context.Context) (*time.Time, error)
}

type RunState interface {
	LatestStartedAt(ctx context.Context) (*time.Time, error)
}

type CreationState interface {
	CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error)
}

// Checker loads a Snapshot from storage and evaluates the policy.
type Checker struct {
	policy    *Policy
	articles  ArticleState
	runs      RunState
	creations CreationState
	now       func() time.Time
}

func NewChecker(policy *Policy, articles ArticleState, runs RunState, creations CreationState) *Checker {
	return &Checker{
		policy:    policy,
		articles:  articles,
		runs:      runs,
		creations: creations,
		now:       time.Now,
	}
}

func (c *Checker) Check(ctx context.Context) (Decision, error) {
	now := c.now()

	snap, err := c.snapshot(ctx, now)
	if err != nil {
		return Decision{}, err
	}
	return c.policy.Evaluate(now, snap), nil
}

func (c *Checker) snapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.LastArticleAt, err = c.articles.LatestCreatedAt(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("latest article: %w", err)
	}
	if snap.LastRunAt, err = c.runs.LatestStartedAt(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("latest run: %w", err)
	}
	if snap.CreatedAt, err = c.creations.CreatedSince(ctx, now.Add(-c.policy.Lookback())); err != nil {
		return Snapshot{}, fmt.Errorf("recent creations: %w", err)
	}
	return snap, nil
}
