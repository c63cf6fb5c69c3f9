package models

// RankingRecord is one row of a scraped ranking table. All values are kept as
// the page rendered them; optional columns are empty when a layout lacks them.
type RankingRecord struct {
	Rank          string `json:"rank"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Price         string `json:"price,omitempty"`
	Change        string `json:"change,omitempty"`
	Volume        string `json:"volume,omitempty"`
	Value         string `json:"value,omitempty"`
	ChangePercent string `json:"change_percent,omitempty"`
}

// Placeholder values rendered for missing fields.
const (
	PlaceholderCode = "----"
	PlaceholderName = "unknown"
)

// HasRealCode reports whether the record carries an identifying code.
func (r RankingRecord) HasRealCode() bool {
	return r.Code != "" && r.Code != PlaceholderCode
}
