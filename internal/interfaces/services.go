package interfaces

import (
	"context"
	"time"
)

// TradingCalendar answers whether a date is a trading day.
type TradingCalendar interface {
	IsTradingDay(ctx context.Context, date time.Time) bool
}

// HolidayProvider reports whether a date is a market holiday.
type HolidayProvider interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, string, error)
}

// PageFetcher retrieves the HTML of a ranking page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Notifier delivers a message and reports whether delivery was confirmed.
type Notifier interface {
	Notify(ctx context.Context, message string) bool
}
