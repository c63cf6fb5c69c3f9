package eodhd

import "time"

// ExchangeDetailsResponse represents the response from /api/exchange-details/{code}.
type ExchangeDetailsResponse struct {
	Code         string                     `json:"Code"`
	Name         string                     `json:"Name"`
	OperatingMIC string                     `json:"OperatingMIC"`
	Country      string                     `json:"Country"`
	Currency     string                     `json:"Currency"`
	Timezone     string                     `json:"Timezone"`
	Holidays     map[string]ExchangeHoliday `json:"ExchangeHolidays"`
	IsOpen       bool                       `json:"isOpen"`
}

// ExchangeHoliday is one entry of ExchangeHolidays.
type ExchangeHoliday struct {
	Holiday string `json:"Holiday"`
	Date    string `json:"Date"` // YYYY-MM-DD
	Type    string `json:"Type"` // "official", "bank"
}

// HolidayDates returns the parsed holiday dates keyed by YYYY-MM-DD. Entries
// with unparseable dates are skipped.
func (r *ExchangeDetailsResponse) HolidayDates() map[string]string {
	out := make(map[string]string, len(r.Holidays))
	for _, h := range r.Holidays {
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			continue
		}
		out[h.Date] = h.Holiday
	}
	return out
}
