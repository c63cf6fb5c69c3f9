package calendar

import (
	"context"
	"time"
)

// JapanHolidays computes Japanese national holidays from the statutory rules:
// fixed dates, Happy Monday days, equinoxes, substitute holidays (振替休日) and
// citizens' holidays (国民の休日). With ExchangeClosure the exchange year-end
// closure days (Dec 31, Jan 2, Jan 3) are included as well.
type JapanHolidays struct {
	ExchangeClosure bool
}

// NewJapanHolidays creates the rules-based provider.
func NewJapanHolidays(exchangeClosure bool) *JapanHolidays {
	return &JapanHolidays{ExchangeClosure: exchangeClosure}
}

// IsHoliday implements interfaces.HolidayProvider. It never errors.
func (j *JapanHolidays) IsHoliday(_ context.Context, date time.Time) (bool, string, error) {
	d := civil(date)
	if name, ok := JapaneseHoliday(d); ok {
		return true, name, nil
	}
	if j.ExchangeClosure {
		switch {
		case d.Month() == time.December && d.Day() == 31,
			d.Month() == time.January && (d.Day() == 2 || d.Day() == 3):
			return true, "Exchange year-end closure", nil
		}
	}
	return false, "", nil
}

// JapaneseHoliday returns the holiday name for the calendar date of d.
func JapaneseHoliday(d time.Time) (string, bool) {
	d = civil(d)
	if name := statutoryHoliday(d); name != "" {
		return name, true
	}

	// The first non-holiday after a holiday falling on Sunday
	prev := d.AddDate(0, 0, -1)
	for statutoryHoliday(prev) != "" {
		if prev.Weekday() == time.Sunday {
			return "Substitute Holiday", true
		}
		prev = prev.AddDate(0, 0, -1)
	}

	// A weekday sandwiched between two holidays
	if d.Year() >= 1986 && d.Weekday() != time.Sunday &&
		statutoryHoliday(d.AddDate(0, 0, -1)) != "" && statutoryHoliday(d.AddDate(0, 0, 1)) != "" {
		return "Citizens' Holiday", true
	}

	return "", false
}

func statutoryHoliday(d time.Time) string {
	y, m, day := d.Year(), d.Month(), d.Day()

	if name, ok := specialHolidays[d.Format("2006-01-02")]; ok {
		return name
	}

	switch m {
	case time.January:
		if day == 1 {
			return "New Year's Day"
		}
		if isNthMonday(d, 2) {
			return "Coming of Age Day"
		}
	case time.February:
		if day == 11 {
			return "National Foundation Day"
		}
		if day == 23 && y >= 2020 {
			return "Emperor's Birthday"
		}
	case time.March:
		if day == vernalEquinoxDay(y) {
			return "Vernal Equinox Day"
		}
	case time.April:
		if day == 29 {
			return "Showa Day"
		}
	case time.May:
		switch day {
		case 3:
			return "Constitution Memorial Day"
		case 4:
			return "Greenery Day"
		case 5:
			return "Children's Day"
		}
	case time.July:
		if y != 2020 && y != 2021 && isNthMonday(d, 3) {
			return "Marine Day"
		}
	case time.August:
		if day == 11 && y >= 2016 && y != 2020 && y != 2021 {
			return "Mountain Day"
		}
	case time.September:
		if isNthMonday(d, 3) {
			return "Respect for the Aged Day"
		}
		if day == autumnalEquinoxDay(y) {
			return "Autumnal Equinox Day"
		}
	case time.October:
		if y != 2020 && y != 2021 && isNthMonday(d, 2) {
			return "Sports Day"
		}
	case time.November:
		if day == 3 {
			return "Culture Day"
		}
		if day == 23 {
			return "Labor Thanksgiving Day"
		}
	case time.December:
		if day == 23 && y >= 1989 && y <= 2018 {
			return "Emperor's Birthday"
		}
	}
	return ""
}

// Dates moved or added by special legislation (imperial succession, 2020/2021 games).
var specialHolidays = map[string]string{
	"2019-04-30": "National Holiday",
	"2019-05-01": "Enthronement Day",
	"2019-05-02": "National Holiday",
	"2019-10-22": "Enthronement Ceremony Day",
	"2020-07-23": "Marine Day",
	"2020-07-24": "Sports Day",
	"2020-08-10": "Mountain Day",
	"2021-07-22": "Marine Day",
	"2021-07-23": "Sports Day",
	"2021-08-08": "Mountain Day",
}

func isNthMonday(d time.Time, n int) bool {
	return d.Weekday() == time.Monday && (d.Day()-1)/7 == n-1
}

// Equinox approximations valid for 1980-2099.
func vernalEquinoxDay(year int) int {
	y := year - 1980
	return int(20.8431+0.242194*float64(y)) - y/4
}

func autumnalEquinoxDay(year int) int {
	y := year - 1980
	return int(23.2488+0.242194*float64(y)) - y/4
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
