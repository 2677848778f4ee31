// Package trigger decides when an ingestion run is due.
//
// Two rules make a run due: a fixed daily slot that has no article created
// after it yet, and a short window a few minutes after a topic or source was
// created. Evaluation is a pure function of the clock and a Snapshot of
// stored state.
package trigger

import (
	"fmt"
	"sort"
	"time"

	"intel_fetcher/internal/config"
)

const (
	ReasonSchedule       = "schedule"
	ReasonPostCreation   = "post_creation"
	ReasonDrySlotBackoff = "dry_slot_backoff"
	ReasonIdle           = "idle"
)

// Snapshot is the stored state the policy looks at.
type Snapshot struct {
	LastArticleAt *time.Time
	LastRunAt     *time.Time
	// CreatedAt holds creation times of topics and sources created within
	// the post-creation window.
	CreatedAt []time.Time
}

type Decision struct {
	Due    bool      `json:"due"`
	Reason string    `json:"reason"`
	Slot   time.Time `json:"slot,omitzero"`
}

type slot struct {
	hour, minute int
}

type Policy struct {
	slots    []slot
	loc      *time.Location
	delayMin time.Duration
	delayMax time.Duration
	dryRetry time.Duration
}

func NewPolicy(cfg config.TriggerConfig) (*Policy, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	slots := make([]slot, 0, len(cfg.Slots))
	for _, raw := range cfg.Slots {
		t, err := time.Parse("15:04", raw)
		if err != nil {
			return nil, fmt.Errorf("parse slot %q: %w", raw, err)
		}
		slots = append(slots, slot{hour: t.Hour(), minute: t.Minute()})
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].hour != slots[j].hour {
			return slots[i].hour < slots[j].hour
		}
		return slots[i].minute < slots[j].minute
	})

	if cfg.DelayMax <= cfg.DelayMin {
		return nil, fmt.Errorf("delay window [%s, %s) is empty", cfg.DelayMin, cfg.DelayMax)
	}

	var dryRetry time.Duration
	if cfg.DryRetryInterval != nil {
		dryRetry = *cfg.DryRetryInterval
	}

	return &Policy{
		slots:    slots,
		loc:      loc,
		delayMin: cfg.DelayMin,
		delayMax: cfg.DelayMax,
		dryRetry: dryRetry,
	}, nil
}

// Lookback is how far back creation times matter to Evaluate.
func (p *Policy) Lookback() time.Duration {
	return p.delayMax
}

func (p *Policy) Evaluate(now time.Time, snap Snapshot) Decision {
	for _, created := range snap.CreatedAt {
		elapsed := now.Sub(created)
		if elapsed >= p.delayMin && elapsed < p.delayMax {
			return Decision{Due: true, Reason: ReasonPostCreation}
		}
	}

	slotTime, ok := p.currentSlot(now)
	if !ok {
		return Decision{Reason: ReasonIdle}
	}

	if snap.LastArticleAt != nil && !snap.LastArticleAt.Before(slotTime) {
		return Decision{Reason: ReasonIdle, Slot: slotTime}
	}

	if p.dryRetry > 0 && snap.LastRunAt != nil &&
		!snap.LastRunAt.Before(slotTime) && now.Sub(*snap.LastRunAt) < p.dryRetry {
		return Decision{Reason: ReasonDrySlotBackoff, Slot: slotTime}
	}

	return Decision{Due: true, Reason: ReasonSchedule, Slot: slotTime}
}

// currentSlot returns today's latest slot at or before now.
func (p *Policy) currentSlot(now time.Time) (time.Time, bool) {
	local := now.In(p.loc)
	y, m, d := local.Date()

	var latest time.Time
	found := false
	for _, s := range p.slots {
		t := time.Date(y, m, d, s.hour, s.minute, 0, 0, p.loc)
		if t.After(local) {
			break
		}
		latest = t
		found = true
	}
	return latest, found
}
