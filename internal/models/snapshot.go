package models

import "time"

// DateTimeLayout is the compact capture timestamp stored with every snapshot
// and used in snapshot file names.
const DateTimeLayout = "20060102_1504"

// Snapshot is one persisted scrape of one target. Snapshots are immutable once
// written and ordered by CapturedAt within (Pipeline, Target).
type Snapshot struct {
	ID         string          `json:"id,omitempty"`
	Pipeline   string          `json:"pipeline,omitempty" badgerhold:"index"`
	Target     string          `json:"target"`
	SlotTime   string          `json:"slot_time,omitempty"`
	DateTime   string          `json:"datetime"`
	URL        string          `json:"url"`
	CapturedAt time.Time       `json:"scraped_at"`
	Rankings   []RankingRecord `json:"rankings"`

	// StoredAt is when the store accepted the snapshot (file mtime for JSON files).
	StoredAt time.Time `json:"-"`
}

// Slot is a resolved (target, slot time) pair for one run.
type Slot struct {
	Target   string
	SlotTime string // "HH:MM"
}

// IsZero reports whether no slot was resolved.
func (s Slot) IsZero() bool {
	return s.Target == "" && s.SlotTime == ""
}
