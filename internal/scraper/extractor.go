// Package scraper fetches ranking pages and extracts ranking rows from their tables.
package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ternarybob/rankwatch/internal/models"
)

// ErrExtraction is returned when no table matches or the table yields no rows.
var ErrExtraction = errors.New("extraction failed")

// Table layouts.
const (
	// LayoutStock: rank | name+code+market | price | change | volume | value | change %.
	LayoutStock = "stock"
	// LayoutSector: tbody rows of code link | sector link | ... | change % span (7th cell).
	LayoutSector = "sector"
	// LayoutSectorTable: rank | sector | change % | value | change.
	LayoutSectorTable = "sector_table"
)

// DefaultSelectors are tried, in order, when a pipeline configures none.
var DefaultSelectors = map[string][]string{
	LayoutStock:       {"table.m-table", "table.ranking-table", "table#rankingTable", "table"},
	LayoutSector:      {"table.stock_kabuka_dwm", "table.stock_table", "table"},
	LayoutSectorTable: {"table.md-l-table-01", "table"},
}

// "ソフトバンクグループ9984 東P" -> name, code, market
var nameCodePattern = regexp.MustCompile(`^(.+?)([0-9]{3,4}[A-Z]?)\s+(.*)$`)

// Extractor turns ranking page HTML into records.
type Extractor struct {
	layout    string
	selectors []string
	limit     int
}

// NewExtractor creates an Extractor. Empty selectors fall back to the layout
// defaults; limit <= 0 means unlimited.
func NewExtractor(layout string, selectors []string, limit int) (*Extractor, error) {
	if layout == "" {
		layout = LayoutStock
	}
	defaults, ok := DefaultSelectors[layout]
	if !ok {
		return nil, fmt.Errorf("unknown table layout: %s", layout)
	}
	if len(selectors) == 0 {
		selectors = defaults
	}
	return &Extractor{layout: layout, selectors: selectors, limit: limit}, nil
}

// Layout returns the configured layout name.
func (e *Extractor) Layout() string {
	return e.layout
}

// Extract parses htmlText and returns at most limit records in page order.
func (e *Extractor) Extract(htmlText string) ([]models.RankingRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", ErrExtraction, err)
	}

	table, selector := findTable(doc, e.selectors)
	if table == nil {
		return nil, fmt.Errorf("%w: no ranking table matched %v", ErrExtraction, e.selectors)
	}

	var records []models.RankingRecord
	switch e.layout {
	case LayoutSector:
		records, err = e.extractSector(table)
	case LayoutSectorTable:
		records = e.extractSectorTable(table)
	default:
		records = e.extractStock(table)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: table %q has no ranking rows", ErrExtraction, selector)
	}
	return records, nil
}

// findTable returns the first element matched by the first selector that matches anything.
func findTable(doc *goquery.Document, selectors []string) (*goquery.Selection, string) {
	for _, selector := range selectors {
		if s := doc.Find(selector).First(); s.Length() > 0 {
			return s, selector
		}
	}
	return nil, ""
}

func (e *Extractor) full(records []models.RankingRecord) bool {
	return e.limit > 0 && len(records) >= e.limit
}

func (e *Extractor) extractStock(table *goquery.Selection) []models.RankingRecord {
	var records []models.RankingRecord

	table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true // header
		}
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			return true
		}

		nameCode := strippedText(cells.Eq(1))
		record := models.RankingRecord{
			Rank: strippedText(cells.Eq(0)),
			Name: nameCode,
		}
		if m := nameCodePattern.FindStringSubmatch(nameCode); m != nil {
			record.Name = strings.TrimSpace(m[1])
			record.Code = strings.TrimSpace(m[2])
		}

		optional := []*string{&record.Price, &record.Change, &record.Volume, &record.Value, &record.ChangePercent}
		for i, field := range optional {
			if cells.Length() > i+2 {
				*field = strippedText(cells.Eq(i + 2))
			}
		}

		records = append(records, record)
		return !e.full(records)
	})

	return records
}

func (e *Extractor) extractSector(table *goquery.Selection) ([]models.RankingRecord, error) {
	tbody := table.Find("tbody").First()
	if tbody.Length() == 0 {
		return nil, fmt.Errorf("%w: ranking table has no tbody", ErrExtraction)
	}

	var records []models.RankingRecord
	tbody.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 7 {
			return true
		}

		code := strings.TrimSpace(cells.Eq(0).Find("a").First().Text())
		name := strings.TrimSpace(cells.Eq(1).Find("a").First().Text())

		changePercent := "0.00"
		if span := cells.Eq(6).Find("span").First(); span.Length() > 0 {
			changePercent = strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(span.Text()), "%", ""))
		}

		if code == "" || name == "" || changePercent == "" {
			return true
		}

		records = append(records, models.RankingRecord{
			Rank:          strconv.Itoa(len(records) + 1),
			Code:          code,
			Name:          name,
			ChangePercent: changePercent,
		})
		return !e.full(records)
	})

	return records, nil
}

func (e *Extractor) extractSectorTable(table *goquery.Selection) []models.RankingRecord {
	var records []models.RankingRecord

	table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true // header
		}
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 3 {
			return true
		}

		record := models.RankingRecord{
			Rank:          strippedText(cells.Eq(0)),
			Name:          strippedText(cells.Eq(1)),
			ChangePercent: strippedText(cells.Eq(2)),
		}
		if cells.Length() > 3 {
			record.Value = strippedText(cells.Eq(3))
		}
		if cells.Length() > 4 {
			record.Change = strippedText(cells.Eq(4))
		}

		records = append(records, record)
		return !e.full(records)
	})

	return records
}

// strippedText joins the trimmed text nodes under s without separators, so
// "<a>Name</a><br>9984 東P" reads "Name9984 東P".
func strippedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}
