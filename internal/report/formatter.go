// Package report renders ranking snapshots into plain-text notification messages.
package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/rankwatch/internal/models"
)

// DisplayLayout is the timestamp shown in message headers.
const DisplayLayout = "2006-01-02 15:04"

// Report modes.
const (
	ModeRanking = "ranking"
	ModeSector  = "sector"
)

// Failure describes a failed run for the error report.
type Failure struct {
	At       time.Time
	Target   string
	SlotTime string
	Err      error
}

// Formatter renders success and failure reports.
type Formatter interface {
	Success(current, previous *models.Snapshot) string
	Failure(f Failure) string
}

// Options are shared by all formatters.
type Options struct {
	TopN     int
	BottomN  int
	Location *time.Location
	Label    func(target string) string
}

func (o Options) label(target string) string {
	if o.Label != nil {
		return o.Label(target)
	}
	return target
}

func (o Options) display(t time.Time) string {
	if o.Location != nil {
		t = t.In(o.Location)
	}
	return t.Format(DisplayLayout)
}

// New returns the formatter for a report mode.
func New(mode string, opts Options) (Formatter, error) {
	switch mode {
	case "", ModeRanking:
		if opts.TopN <= 0 {
			opts.TopN = 10
		}
		return &RankingFormatter{opts: opts}, nil
	case ModeSector:
		if opts.TopN <= 0 {
			opts.TopN = 5
		}
		if opts.BottomN <= 0 {
			opts.BottomN = opts.TopN
		}
		return &SectorFormatter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown report mode: %s", mode)
	}
}

// RankingFormatter renders the top-N list with rank-change markers.
type RankingFormatter struct {
	opts Options
}

func (f *RankingFormatter) Success(current, previous *models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ [SUCCESS] %s\n", f.opts.display(current.CapturedAt))
	fmt.Fprintf(&b, "%s ranking%s\n", f.opts.label(current.Target), slotNote(current.SlotTime))

	rankings := current.Rankings
	if len(rankings) > f.opts.TopN {
		rankings = rankings[:f.opts.TopN]
	}
	if len(rankings) == 0 {
		b.WriteString("\nno ranking data")
		return b.String()
	}

	var prev []models.RankingRecord
	if previous != nil {
		prev = previous.Rankings
	}
	markers := Diff(rankings, prev, previous != nil)

	b.WriteString("\n")
	for i, r := range rankings {
		line := rankingLine(r)
		if m := markers[i].String(); m != "" {
			line += " " + m
		}
		b.WriteString(line)
		if i < len(rankings)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (f *RankingFormatter) Failure(fl Failure) string {
	return failureMessage(f.opts, "ranking", fl)
}

func rankingLine(r models.RankingRecord) string {
	rank := strings.TrimSpace(r.Rank)
	if rank == "" {
		rank = "-"
	}
	code := strings.TrimSpace(r.Code)
	if code == "" {
		code = models.PlaceholderCode
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = models.PlaceholderName
	}

	line := fmt.Sprintf("%s: [%s] %s", rank, code, name)
	if cp := strings.TrimSpace(r.ChangePercent); cp != "" {
		line += " " + cp
	}
	return line
}

// SectorFormatter renders the strongest and weakest sectors by change percent.
type SectorFormatter struct {
	opts Options
}

type sectorValue struct {
	name  string
	value float64
}

func (f *SectorFormatter) Success(current, _ *models.Snapshot) string {
	var parsed []sectorValue
	for _, r := range current.Rankings {
		v, ok := ParsePercent(r.ChangePercent)
		if !ok {
			continue
		}
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = models.PlaceholderName
		}
		parsed = append(parsed, sectorValue{name: name, value: v})
	}

	top := make([]sectorValue, len(parsed))
	copy(top, parsed)
	sort.SliceStable(top, func(i, j int) bool { return top[i].value > top[j].value })
	if len(top) > f.opts.TopN {
		top = top[:f.opts.TopN]
	}

	bottom := make([]sectorValue, len(parsed))
	copy(bottom, parsed)
	sort.SliceStable(bottom, func(i, j int) bool { return bottom[i].value < bottom[j].value })
	if len(bottom) > f.opts.BottomN {
		bottom = bottom[:f.opts.BottomN]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n", f.opts.display(current.CapturedAt))
	fmt.Fprintf(&b, "%s sector ranking%s\n", f.opts.label(current.Target), slotNote(current.SlotTime))

	fmt.Fprintf(&b, "\n[Top %d] 🟢\n", f.opts.TopN)
	for i, s := range top {
		fmt.Fprintf(&b, "%d: %s %s%%\n", i+1, s.name, SignedPercent(s.value))
	}

	fmt.Fprintf(&b, "\n[Bottom %d] 🔴\n", f.opts.BottomN)
	for i, s := range bottom {
		fmt.Fprintf(&b, "%d: %s %s%%\n", i+1, s.name, SignedPercent(s.value))
	}

	if len(top) > 0 {
		fmt.Fprintf(&b, "\n💡 inflow: %s", joinNames(top, 2))
	}
	if len(bottom) > 0 {
		fmt.Fprintf(&b, "\n💡 outflow: %s", joinNames(bottom, 2))
	}

	return strings.TrimRight(b.String(), "\n")
}

func (f *SectorFormatter) Failure(fl Failure) string {
	return failureMessage(f.opts, "sector ranking", fl)
}

// ParsePercent reads "+3.06%", "-1,234.5", "0.00" and similar.
func ParsePercent(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SignedPercent formats v with two decimals and a sign taken from its value:
// "+" above zero, "-" below, none at zero.
func SignedPercent(v float64) string {
	abs := fmt.Sprintf("%.2f", math.Abs(v))
	switch {
	case abs == "0.00":
		return abs
	case v > 0:
		return "+" + abs
	default:
		return "-" + abs
	}
}

func joinNames(values []sectorValue, n int) string {
	if len(values) > n {
		values = values[:n]
	}
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = v.name
	}
	return strings.Join(names, ", ")
}

func slotNote(slot string) string {
	if slot == "" {
		return ""
	}
	return fmt.Sprintf(" (slot %s)", slot)
}

func failureMessage(opts Options, what string, fl Failure) string {
	errText := "unknown error"
	if fl.Err != nil {
		errText = fl.Err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "❌ [ERROR] %s\n", opts.display(fl.At))
	fmt.Fprintf(&b, "%s %s failed%s\n", opts.label(fl.Target), what, slotNote(fl.SlotTime))
	fmt.Fprintf(&b, "\nerror:\n%s", errText)
	return b.String()
}
