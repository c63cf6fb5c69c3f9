package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestJapaneseHoliday(t *testing.T) {
	tests := []struct {
		name    string
		date    time.Time
		holiday bool
	}{
		{"new year", date(2025, time.January, 1), true},
		{"coming of age day", date(2025, time.January, 13), true},
		{"emperor birthday", date(2025, time.February, 24), true}, // substitute, Feb 23 is Sunday
		{"vernal equinox", date(2025, time.March, 20), true},
		{"golden week substitute", date(2025, time.May, 6), true},
		{"marine day", date(2025, time.July, 21), true},
		{"autumnal equinox", date(2025, time.September, 23), true},
		{"sports day", date(2025, time.October, 13), true},
		{"ordinary monday", date(2025, time.October, 20), false},
		{"substitute for national foundation day", date(2024, time.February, 12), true},
		{"citizens holiday", date(2026, time.September, 22), true},
		{"enthronement day", date(2019, time.May, 1), true},
		{"moved sports day", date(2021, time.July, 23), true},
		{"no sports day in october 2021", date(2021, time.October, 11), false},
		{"ordinary day", date(2025, time.June, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := JapaneseHoliday(tt.date)
			assert.Equal(t, tt.holiday, ok)
		})
	}
}

func TestJapanHolidays_ExchangeClosure(t *testing.T) {
	ctx := context.Background()

	withClosure := NewJapanHolidays(true)
	withoutClosure := NewJapanHolidays(false)

	for _, d := range []time.Time{date(2025, time.December, 31), date(2026, time.January, 2), date(2026, time.January, 3)} {
		holiday, name, err := withClosure.IsHoliday(ctx, d)
		assert.NoError(t, err)
		assert.True(t, holiday, d.Format("2006-01-02"))
		assert.Equal(t, "Exchange year-end closure", name)

		holiday, _, _ = withoutClosure.IsHoliday(ctx, d)
		assert.False(t, holiday, d.Format("2006-01-02"))
	}
}
