// Package schedule maps a wall-clock time or trigger id onto a configured
// (target, slot) pair and decides whether that slot was already captured.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/models"
)

// SlotTable maps "HH:MM" slot keys to target names.
type SlotTable map[string]string

// Strategy picks a slot from the table for a local wall-clock time.
type Strategy interface {
	Name() string
	Resolve(now time.Time, table SlotTable) (models.Slot, bool)
}

// LatestPastSlot picks the latest slot at or before now. Before the first
// slot of the day nothing resolves.
type LatestPastSlot struct{}

func (LatestPastSlot) Name() string { return "latest" }

func (LatestPastSlot) Resolve(now time.Time, table SlotTable) (models.Slot, bool) {
	var best models.Slot
	var bestAt time.Time
	found := false

	for _, e := range table.instants(now) {
		if e.at.After(now) {
			continue
		}
		if !found || e.at.After(bestAt) {
			best, bestAt, found = e.slot, e.at, true
		}
	}
	return best, found
}

// NearestSlot picks the slot closest to now, within Window either side.
// Ties go to the earlier slot.
type NearestSlot struct {
	Window time.Duration
}

func (NearestSlot) Name() string { return "nearest" }

func (n NearestSlot) Resolve(now time.Time, table SlotTable) (models.Slot, bool) {
	var best models.Slot
	bestDiff := time.Duration(-1)

	for _, e := range table.instants(now) {
		diff := e.at.Sub(now)
		if diff < 0 {
			diff = -diff
		}
		if diff > n.Window {
			continue
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = e.slot, diff
		}
	}
	return best, bestDiff >= 0
}

type slotInstant struct {
	slot models.Slot
	at   time.Time
}

// instants places every slot on now's calendar date, in now's location,
// sorted by time.
func (t SlotTable) instants(now time.Time) []slotInstant {
	out := make([]slotInstant, 0, len(t))
	for key, target := range t {
		hm, err := time.Parse(common.SlotTimeLayout, key)
		if err != nil {
			continue
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, now.Location())
		out = append(out, slotInstant{slot: models.Slot{Target: target, SlotTime: key}, at: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

// NewStrategy returns the strategy named in configuration.
func NewStrategy(name string, window time.Duration) (Strategy, error) {
	switch name {
	case "", "latest":
		return LatestPastSlot{}, nil
	case "nearest":
		return NearestSlot{Window: window}, nil
	default:
		return nil, fmt.Errorf("unknown slot resolver: %s", name)
	}
}

// Resolution sources.
const (
	SourceManual   = "manual"
	SourceOverride = "override"
	SourceClock    = "clock"
)

// Resolution is the outcome of Resolver.Resolve. A zero Slot with Skipped
// set means the run has nothing to do.
type Resolution struct {
	Slot    models.Slot
	Source  string
	Skipped bool
	Reason  string
}

// Resolver applies, in order: manual override, skip list, trigger overrides,
// then the wall-clock strategy.
type Resolver struct {
	strategy  Strategy
	table     SlotTable
	overrides map[string]models.Slot
	skip      map[string]bool
	loc       *time.Location
	logger    arbor.ILogger
}

// NewResolver builds a Resolver from a pipeline configuration.
func NewResolver(p common.PipelineConfig, loc *time.Location, logger arbor.ILogger) (*Resolver, error) {
	strategy, err := NewStrategy(p.Resolver, p.NearestWindow())
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	r := &Resolver{
		strategy:  strategy,
		table:     SlotTable(p.Slots),
		overrides: make(map[string]models.Slot, len(p.Overrides)),
		skip:      make(map[string]bool, len(p.SkipTriggers)),
		loc:       loc,
		logger:    logger,
	}
	for trigger, o := range p.Overrides {
		r.overrides[trigger] = models.Slot{Target: o.Target, SlotTime: o.Slot}
	}
	for _, trigger := range p.SkipTriggers {
		r.skip[trigger] = true
	}
	return r, nil
}

// Strategy returns the wall-clock strategy in use.
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Resolve determines the slot for a run at now. manual is used verbatim when
// both its fields are set.
func (r *Resolver) Resolve(now time.Time, triggerID string, manual models.Slot) Resolution {
	if manual.Target != "" && manual.SlotTime != "" {
		return Resolution{Slot: manual, Source: SourceManual}
	}
	if manual.Target != "" || manual.SlotTime != "" {
		r.logger.Warn().
			Str("target", manual.Target).
			Str("slot", manual.SlotTime).
			Msg("Manual override needs both target and slot, ignoring it")
	}

	if triggerID != "" {
		if r.skip[triggerID] {
			return Resolution{Skipped: true, Reason: "trigger excluded"}
		}
		if slot, ok := r.overrides[triggerID]; ok {
			return Resolution{Slot: slot, Source: SourceOverride}
		}
		r.logger.Info().
			Str("trigger", triggerID).
			Msg("Trigger has no override, resolving by wall clock")
	}

	local := now.In(r.loc)
	slot, ok := r.strategy.Resolve(local, r.table)
	if !ok {
		reason := "before first slot"
		if _, isNearest := r.strategy.(NearestSlot); isNearest {
			reason = "no slot within window"
		}
		return Resolution{Skipped: true, Reason: reason}
	}
	return Resolution{Slot: slot, Source: SourceClock}
}
