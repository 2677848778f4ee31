package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"intel_fetcher/internal/domain"
	"intel_fetcher/internal/service"
	"intel_fetcher/internal/trigger"
)

type Checker interface {
	Check(ctx context.Context) (trigger.Decision, error)
}

type Runner interface {
	Run(ctx context.Context, req service.RunRequest) (*domain.RunStats, error)
}

// Poller asks the trigger policy on every tick and starts an ingestion run
// when one is due. Runs are bounded by the runner's own max run duration.
type Poller struct {
	checker  Checker
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(checker Checker, runner Runner, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		checker:  checker,
		runner:   runner,
		interval: interval,
		logger:   logger.With("component", "poller"),
	}
}

// Start polls until ctx is done. Due runs execute in the background so a long
// run never blocks the next poll; Start waits for them before returning.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.interval)

	var wg sync.WaitGroup
	defer wg.Wait()

	p.poll(ctx, &wg)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, &wg)
		}
	}
}

func (p *Poller) poll(ctx context.Context, wg *sync.WaitGroup) {
	decision, due, err := p.check(ctx)
	if err != nil {
		p.logger.Error("poll failed", "error", err)
		return
	}
	if !due {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.run(ctx, decision); err != nil {
			p.logger.Error("scheduled ingestion failed", "reason", decision.Reason, "error", err)
		}
	}()
}

// Tick evaluates the policy once and, if due, runs ingestion before
// returning. Stats are nil when no run was started.
func (p *Poller) Tick(ctx context.Context) (trigger.Decision, *domain.RunStats, error) {
	decision, due, err := p.check(ctx)
	if err != nil || !due {
		return decision, nil, err
	}

	stats, err := p.run(ctx, decision)
	return decision, stats, err
}

func (p *Poller) check(ctx context.Context) (trigger.Decision, bool, error) {
	decision, err := p.checker.Check(ctx)
	if err != nil {
		return trigger.Decision{}, false, err
	}
	if !decision.Due {
		p.logger.Debug("ingestion not due", "reason", decision.Reason)
		return decision, false, nil
	}

	p.logger.Info("ingestion due", "reason", decision.Reason, "slot", decision.Slot)
	return decision, true, nil
}

func (p *Poller) run(ctx context.Context, decision trigger.Decision) (*domain.RunStats, error) {
	return p.runner.Run(ctx, service.RunRequest{Trigger: triggerFor(decision)})
}

func triggerFor(d trigger.Decision) domain.Trigger {
	if d.Reason == trigger.ReasonSchedule {
		return domain.TriggerSchedule
	}
	return domain.TriggerPoll
}
