package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rankwatch/internal/eodhd"
)

// StaticHolidays is an explicit list of YYYY-MM-DD holiday dates.
type StaticHolidays struct {
	dates map[string]string
}

// NewStaticHolidays parses the given dates. Invalid entries are an error.
func NewStaticHolidays(dates []string) (*StaticHolidays, error) {
	s := &StaticHolidays{dates: make(map[string]string, len(dates))}
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", d, err)
		}
		s.dates[t.Format("2006-01-02")] = "Configured holiday"
	}
	return s, nil
}

// IsHoliday implements interfaces.HolidayProvider.
func (s *StaticHolidays) IsHoliday(_ context.Context, date time.Time) (bool, string, error) {
	name, ok := s.dates[civil(date).Format("2006-01-02")]
	return ok, name, nil
}

// Len returns the number of configured dates.
func (s *StaticHolidays) Len() int {
	return len(s.dates)
}

// exchangeDetailsClient is the part of the EODHD client used here.
type exchangeDetailsClient interface {
	GetExchangeDetails(ctx context.Context, exchangeCode string, from, to time.Time) (*eodhd.ExchangeDetailsResponse, error)
}

// EODHDHolidays asks the EODHD exchange-details endpoint for holidays and
// caches the answer per calendar year.
type EODHDHolidays struct {
	client   exchangeDetailsClient
	exchange string
	logger   arbor.ILogger

	mu    sync.Mutex
	years map[int]map[string]string
}

// NewEODHDHolidays creates the provider for one exchange code (for example "TSE").
func NewEODHDHolidays(client exchangeDetailsClient, exchange string, logger arbor.ILogger) *EODHDHolidays {
	return &EODHDHolidays{
		client:   client,
		exchange: exchange,
		logger:   logger,
		years:    make(map[int]map[string]string),
	}
}

// IsHoliday implements interfaces.HolidayProvider. API failures are returned
// and not cached so that the next call tries again.
func (e *EODHDHolidays) IsHoliday(ctx context.Context, date time.Time) (bool, string, error) {
	d := civil(date)

	e.mu.Lock()
	defer e.mu.Unlock()

	holidays, ok := e.years[d.Year()]
	if !ok {
		from := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(d.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)

		details, err := e.client.GetExchangeDetails(ctx, e.exchange, from, to)
		if err != nil {
			return false, "", fmt.Errorf("failed to fetch %s holidays: %w", e.exchange, err)
		}
		holidays = details.HolidayDates()
		e.years[d.Year()] = holidays

		e.logger.Debug().
			Str("exchange", e.exchange).
			Int("year", d.Year()).
			Int("holidays", len(holidays)).
			Msg("Loaded exchange holidays")
	}

	name, ok := holidays[d.Format("2006-01-02")]
	return ok, name, nil
}
