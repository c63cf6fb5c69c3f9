package webhook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Keys consumed by the structured part of an alert.
var knownKeys = map[string]bool{
	"ticker": true, "symbol": true,
	"action": true, "order_action": true,
	"strategy": true,
	"close": true, "price": true,
	"time": true, "timenow": true,
	"message": true,
}

// FormatAlert renders a TradingView alert payload as a notification text.
// A non-empty "message" field replaces the structured lines; keys not known
// to the formatter are appended in sorted order.
func FormatAlert(data map[string]interface{}, now time.Time) string {
	ticker := first(data, "ticker", "symbol")
	if ticker == "" {
		ticker = "unknown"
	}
	action := first(data, "action", "order_action")
	strategy := first(data, "strategy")
	price := first(data, "close", "price")
	at := first(data, "time", "timenow")
	if at == "" {
		at = now.Format("2006-01-02 15:04:05")
	}

	lines := []string{actionIcon(action) + " TradingView Alert"}

	if custom := first(data, "message"); custom != "" {
		lines = append(lines, "", custom)
	} else {
		lines = append(lines, "ticker: "+ticker)
		if strategy != "" {
			lines = append(lines, "strategy: "+strategy)
		}
		if action != "" {
			lines = append(lines, "action: "+action)
		}
		if price != "" {
			lines = append(lines, "price: "+price)
		}
		lines = append(lines, "time: "+at)
	}

	extra := make([]string, 0, len(data))
	for key := range data {
		if !knownKeys[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		lines = append(lines, fmt.Sprintf("%s: %s", key, render(data[key])))
	}

	return strings.Join(lines, "\n")
}

func actionIcon(action string) string {
	a := strings.ToLower(action)
	switch {
	case a == "":
		return "📈"
	case strings.Contains(a, "buy"), strings.Contains(a, "long"):
		return "🟢"
	case strings.Contains(a, "sell"), strings.Contains(a, "short"):
		return "🔴"
	case strings.Contains(a, "close"):
		return "⚪"
	default:
		return "📈"
	}
}

// first returns the rendered value of the first present, non-empty key.
func first(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			if s := render(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func render(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
