// Package calendar answers whether a date is a trading day.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/common"
	"github.com/ternarybob/rankwatch/internal/eodhd"
	"github.com/ternarybob/rankwatch/internal/interfaces"
)

// DefaultWorkingDays returns Monday through Friday.
func DefaultWorkingDays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

// Oracle combines working weekdays with a holiday source. Dates are judged in
// the oracle's location.
type Oracle struct {
	workingDays []time.Weekday
	providers   []interfaces.HolidayProvider
	loc         *time.Location
	logger      arbor.ILogger
}

// NewOracle creates an Oracle. Providers are consulted in order; the first
// that reports a holiday wins.
func NewOracle(workingDays []time.Weekday, loc *time.Location, logger arbor.ILogger, providers ...interfaces.HolidayProvider) *Oracle {
	if len(workingDays) == 0 {
		workingDays = DefaultWorkingDays()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Oracle{
		workingDays: workingDays,
		providers:   providers,
		loc:         loc,
		logger:      logger,
	}
}

// IsTradingDay reports whether date is a trading day. It never fails: a
// holiday source error degrades to the weekday-only answer.
func (o *Oracle) IsTradingDay(ctx context.Context, date time.Time) bool {
	ok, _ := o.Explain(ctx, date)
	return ok
}

// Explain is IsTradingDay with the reason a date is not a trading day.
func (o *Oracle) Explain(ctx context.Context, date time.Time) (bool, string) {
	local := date.In(o.loc)

	if !o.isWorkingWeekday(local.Weekday()) {
		return false, fmt.Sprintf("%s is not a working day", local.Weekday())
	}

	for _, p := range o.providers {
		holiday, name, err := p.IsHoliday(ctx, local)
		if err != nil {
			o.logger.Warn().
				Err(err).
				Str("date", local.Format("2006-01-02")).
				Msg("Holiday source failed, falling back to weekday check")
			continue
		}
		if holiday {
			if name == "" {
				name = "holiday"
			}
			return false, name
		}
	}

	return true, ""
}

func (o *Oracle) isWorkingWeekday(day time.Weekday) bool {
	for _, wd := range o.workingDays {
		if wd == day {
			return true
		}
	}
	return false
}

// maxTradingDaySearch bounds the walk over long closures (year end, Golden Week).
const maxTradingDaySearch = 14

// PreviousTradingDay returns the most recent trading day on or before date,
// at midnight in the oracle's location.
func (o *Oracle) PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, bool) {
	return o.walk(ctx, date, 0, -1)
}

// NextTradingDay returns the first trading day after date, at midnight in the
// oracle's location.
func (o *Oracle) NextTradingDay(ctx context.Context, date time.Time) (time.Time, bool) {
	return o.walk(ctx, date, 1, 1)
}

func (o *Oracle) walk(ctx context.Context, date time.Time, offset, step int) (time.Time, bool) {
	local := date.In(o.loc)
	current := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, o.loc).AddDate(0, 0, offset)
	for i := 0; i < maxTradingDaySearch; i++ {
		if ctx.Err() != nil {
			return time.Time{}, false
		}
		if o.IsTradingDay(ctx, current) {
			return current, true
		}
		current = current.AddDate(0, 0, step)
	}
	return time.Time{}, false
}

// New builds the Oracle described by the calendar configuration.
func New(config *common.Config, logger arbor.ILogger) (*Oracle, error) {
	cal := config.Calendar

	workingDays, err := common.ParseWeekdays(cal.WorkingDays)
	if err != nil {
		return nil, err
	}

	var providers []interfaces.HolidayProvider
	switch cal.Provider {
	case "", "japan":
		providers = append(providers, NewJapanHolidays(cal.ExchangeClosure))
	case "eodhd":
		if cal.EODHD.APIKey == "" {
			return nil, fmt.Errorf("calendar provider eodhd requires an API key")
		}
		client := eodhd.NewClient(cal.EODHD.APIKey,
			eodhd.WithBaseURL(cal.EODHD.BaseURL),
			eodhd.WithRateLimit(cal.EODHD.RateLimit),
			eodhd.WithLogger(logger))
		providers = append(providers, NewEODHDHolidays(client, cal.EODHD.Exchange, logger))
	case "static":
	default:
		return nil, fmt.Errorf("unknown calendar provider: %s", cal.Provider)
	}

	// Configured dates apply on top of every provider
	if len(cal.Holidays) > 0 || cal.Provider == "static" {
		static, err := NewStaticHolidays(cal.Holidays)
		if err != nil {
			return nil, err
		}
		providers = append(providers, static)
	}

	logger.Debug().
		Str("provider", cal.Provider).
		Int("working_days", len(workingDays)).
		Msg("Trading calendar configured")

	return NewOracle(workingDays, config.Location(), logger, providers...), nil
}
