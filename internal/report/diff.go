package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/rankwatch/internal/models"
)

// MarkerKind classifies a rank change between two snapshots.
type MarkerKind int

const (
	MarkerNone MarkerKind = iota
	MarkerUp
	MarkerDown
	MarkerSame
	MarkerNew
)

// Marker is the delta indicator rendered next to a ranking line.
type Marker struct {
	Kind MarkerKind
	By   int
}

func (m Marker) String() string {
	switch m.Kind {
	case MarkerUp:
		return fmt.Sprintf("▲%d", m.By)
	case MarkerDown:
		return fmt.Sprintf("▼%d", m.By)
	case MarkerSame:
		return "→"
	case MarkerNew:
		return "NEW"
	default:
		return ""
	}
}

// Diff returns one marker per current record. With no previous rankings
// every marker is MarkerNone.
func Diff(current, previous []models.RankingRecord, hasPrevious bool) []Marker {
	markers := make([]Marker, len(current))
	if !hasPrevious {
		return markers
	}

	previousRank := make(map[string]int, len(previous))
	for _, r := range previous {
		if !r.HasRealCode() {
			continue
		}
		rank, err := parseRank(r.Rank)
		if err != nil {
			continue
		}
		if _, seen := previousRank[r.Code]; !seen {
			previousRank[r.Code] = rank
		}
	}

	for i, r := range current {
		if !r.HasRealCode() {
			continue
		}
		before, ok := previousRank[r.Code]
		if !ok {
			markers[i] = Marker{Kind: MarkerNew}
			continue
		}
		now, err := parseRank(r.Rank)
		if err != nil {
			continue
		}
		switch {
		case now < before:
			markers[i] = Marker{Kind: MarkerUp, By: before - now}
		case now > before:
			markers[i] = Marker{Kind: MarkerDown, By: now - before}
		default:
			markers[i] = Marker{Kind: MarkerSame}
		}
	}

	return markers
}

// parseRank accepts "3", " 3 " and "3位".
func parseRank(s string) (int, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "位")
	return strconv.Atoi(s)
}
