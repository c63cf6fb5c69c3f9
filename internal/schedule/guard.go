package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/interfaces"
)

// Recency policies.
const (
	// RecencyAlways applies the recency window whenever no exact slot match exists.
	RecencyAlways = "always"
	// RecencyMissingMetadata applies it only when the latest snapshot has no slot time.
	RecencyMissingMetadata = "missing_metadata"
)

// Decision is the guard's answer for one slot.
type Decision struct {
	Skip   bool
	Reason string
}

// Guard suppresses a run when the slot was already captured today or when a
// snapshot was stored very recently. It only reads history.
type Guard struct {
	store     interfaces.SnapshotStorage
	threshold time.Duration
	policy    string
	loc       *time.Location
	logger    arbor.ILogger
}

// NewGuard creates a Guard. A zero threshold disables the recency rule.
func NewGuard(store interfaces.SnapshotStorage, threshold time.Duration, policy string, loc *time.Location, logger arbor.ILogger) *Guard {
	if policy == "" {
		policy = RecencyAlways
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Guard{
		store:     store,
		threshold: threshold,
		policy:    policy,
		loc:       loc,
		logger:    logger,
	}
}

// Check decides whether (pipeline, target, slotTime) at now is a duplicate.
// History that cannot be read counts as no history.
func (g *Guard) Check(ctx context.Context, pipeline, target, slotTime string, now time.Time) Decision {
	local := now.In(g.loc)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc)

	today, err := g.store.ListSince(ctx, pipeline, target, startOfDay)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("pipeline", pipeline).
			Str("target", target).
			Msg("Failed to load snapshot history, treating as empty")
		return Decision{}
	}

	for _, s := range today {
		if s.SlotTime == slotTime {
			return Decision{Skip: true, Reason: fmt.Sprintf("slot %s already captured", slotTime)}
		}
	}

	if g.threshold <= 0 {
		return Decision{}
	}

	latest, err := g.store.Latest(ctx, pipeline, target)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("pipeline", pipeline).
			Str("target", target).
			Msg("Failed to load latest snapshot, treating as empty")
		return Decision{}
	}
	if latest == nil {
		return Decision{}
	}
	if g.policy == RecencyMissingMetadata && latest.SlotTime != "" {
		return Decision{}
	}

	storedAt := latest.StoredAt
	if storedAt.IsZero() {
		storedAt = latest.CapturedAt
	}
	if age := now.Sub(storedAt); age >= 0 && age < g.threshold {
		return Decision{Skip: true, Reason: fmt.Sprintf("snapshot stored %s ago", age.Round(time.Second))}
	}

	return Decision{}
}
