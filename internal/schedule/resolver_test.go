package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/models"
)

var tokyo = mustLoad("Asia/Tokyo")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(hour, minute int) time.Time {
	return time.Date(2025, time.October, 20, hour, minute, 0, 0, tokyo)
}

func newResolver(t *testing.T, mutate func(p *common.PipelineConfig)) *Resolver {
	t.Helper()
	p := common.DefaultRankingPipeline()
	if mutate != nil {
		mutate(&p)
	}
	r, err := NewResolver(p, tokyo, arbor.NewLogger())
	require.NoError(t, err)
	return r
}

func TestLatestPastSlot(t *testing.T) {
	table := SlotTable(common.DefaultRankingPipeline().Slots)

	tests := []struct {
		name   string
		now    time.Time
		found  bool
		target string
		slot   string
	}{
		{"before first slot", at(9, 14), false, "", ""},
		{"exactly on first slot", at(9, 15), true, "morning", "09:15"},
		{"between slots", at(10, 0), true, "morning", "09:30"},
		{"midday", at(12, 30), true, "morning", "12:00"},
		{"afternoon", at(12, 46), true, "afternoon", "12:45"},
		{"after last slot", at(20, 0), true, "afternoon", "14:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, ok := LatestPastSlot{}.Resolve(tt.now, table)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.target, slot.Target)
			assert.Equal(t, tt.slot, slot.SlotTime)
		})
	}
}

func TestLatestPastSlot_EverySlotAtOrBeforeNow(t *testing.T) {
	table := SlotTable(common.DefaultRankingPipeline().Slots)

	for minute := 0; minute < 24*60; minute += 7 {
		now := at(minute/60, minute%60)
		slot, ok := LatestPastSlot{}.Resolve(now, table)
		if !ok {
			assert.True(t, now.Before(at(9, 15)), "nothing resolved at %s", now.Format("15:04"))
			continue
		}
		hm, err := time.Parse("15:04", slot.SlotTime)
		require.NoError(t, err)
		slotAt := at(hm.Hour(), hm.Minute())
		assert.False(t, slotAt.After(now))
		for key := range table {
			other, _ := time.Parse("15:04", key)
			otherAt := at(other.Hour(), other.Minute())
			if !otherAt.After(now) {
				assert.False(t, otherAt.After(slotAt), "slot %s is later than %s but not after %s", key, slot.SlotTime, now.Format("15:04"))
			}
		}
	}
}

func TestNearestSlot(t *testing.T) {
	table := SlotTable{"11:30": "midday", "15:00": "closing"}
	strategy := NearestSlot{Window: 15 * time.Minute}

	slot, ok := strategy.Resolve(at(11, 20), table)
	assert.True(t, ok)
	assert.Equal(t, models.Slot{Target: "midday", SlotTime: "11:30"}, slot)

	slot, ok = strategy.Resolve(at(15, 15), table)
	assert.True(t, ok)
	assert.Equal(t, "closing", slot.Target)

	_, ok = strategy.Resolve(at(13, 0), table)
	assert.False(t, ok)

	_, ok = strategy.Resolve(at(15, 16), table)
	assert.False(t, ok)
}

func TestNearestSlot_TieGoesToEarlier(t *testing.T) {
	table := SlotTable{"10:00": "a", "10:20": "b"}
	slot, ok := NearestSlot{Window: 15 * time.Minute}.Resolve(at(10, 10), table)
	assert.True(t, ok)
	assert.Equal(t, "a", slot.Target)
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "latest", s.Name())

	s, err = NewStrategy("nearest", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "nearest", s.Name())

	_, err = NewStrategy("random", time.Minute)
	assert.Error(t, err)
}

func TestResolver_Precedence(t *testing.T) {
	r := newResolver(t, nil)

	t.Run("manual wins over everything", func(t *testing.T) {
		res := r.Resolve(at(8, 0), "0 3 * * 1-5", models.Slot{Target: "afternoon", SlotTime: "14:30"})
		assert.False(t, res.Skipped)
		assert.Equal(t, SourceManual, res.Source)
		assert.Equal(t, models.Slot{Target: "afternoon", SlotTime: "14:30"}, res.Slot)
	})

	t.Run("skip list", func(t *testing.T) {
		res := r.Resolve(at(12, 0), "0 3 * * 1-5", models.Slot{})
		assert.True(t, res.Skipped)
		assert.Equal(t, "trigger excluded", res.Reason)
		assert.True(t, res.Slot.IsZero())
	})

	t.Run("override", func(t *testing.T) {
		res := r.Resolve(at(9, 21), "20 0 * * 1-5", models.Slot{})
		assert.False(t, res.Skipped)
		assert.Equal(t, SourceOverride, res.Source)
		assert.Equal(t, models.Slot{Target: "morning", SlotTime: "09:20"}, res.Slot)
	})

	t.Run("override applies even before first slot", func(t *testing.T) {
		res := r.Resolve(at(3, 0), "47 3 * * 1-5", models.Slot{})
		assert.Equal(t, models.Slot{Target: "afternoon", SlotTime: "12:47"}, res.Slot)
	})

	t.Run("unknown trigger falls back to clock", func(t *testing.T) {
		res := r.Resolve(at(12, 50), "*/5 * * * *", models.Slot{})
		assert.Equal(t, SourceClock, res.Source)
		assert.Equal(t, models.Slot{Target: "afternoon", SlotTime: "12:45"}, res.Slot)
	})

	t.Run("half manual override ignored", func(t *testing.T) {
		res := r.Resolve(at(9, 40), "", models.Slot{Target: "afternoon"})
		assert.Equal(t, SourceClock, res.Source)
		assert.Equal(t, "09:30", res.Slot.SlotTime)
	})

	t.Run("before first slot", func(t *testing.T) {
		res := r.Resolve(at(8, 59), "", models.Slot{})
		assert.True(t, res.Skipped)
		assert.Equal(t, "before first slot", res.Reason)
	})
}

func TestResolver_ConvertsToConfiguredZone(t *testing.T) {
	r := newResolver(t, nil)

	// 00:16 UTC is 09:16 in Tokyo
	res := r.Resolve(time.Date(2025, time.October, 20, 0, 16, 0, 0, time.UTC), "", models.Slot{})
	assert.False(t, res.Skipped)
	assert.Equal(t, "09:15", res.Slot.SlotTime)
}

func TestResolver_NearestReason(t *testing.T) {
	r := newResolver(t, func(p *common.PipelineConfig) {
		p.Resolver = "nearest"
	})

	res := r.Resolve(at(11, 0), "", models.Slot{})
	assert.True(t, res.Skipped)
	assert.Equal(t, "no slot within window", res.Reason)
}
