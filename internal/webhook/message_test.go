package webhook

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	data, err := decodeAlert(strings.NewReader(body))
	require.NoError(t, err)
	return data
}

func TestFormatAlert_Icons(t *testing.T) {
	now := time.Date(2025, time.October, 20, 9, 0, 0, 0, time.UTC)
	tests := map[string]string{
		"buy":        "🟢",
		"Long entry": "🟢",
		"SELL":       "🔴",
		"short":      "🔴",
		"close":      "⚪",
		"rebalance":  "📈",
		"":           "📈",
	}
	for action, icon := range tests {
		msg := FormatAlert(map[string]interface{}{"action": action}, now)
		assert.True(t, strings.HasPrefix(msg, icon+" TradingView Alert"), action)
	}
}

func TestFormatAlert_CustomMessageAndExtras(t *testing.T) {
	data := decode(t, `{"message":"Breakout on 7203","zeta":true,"alpha":{"k":1},"ticker":"7203","interval":15}`)

	msg := FormatAlert(data, time.Now())
	assert.Equal(t, "📈 TradingView Alert\n\nBreakout on 7203\nalpha: {\"k\":1}\ninterval: 15\nzeta: true", msg)
}

func TestFormatAlert_Fallbacks(t *testing.T) {
	data := decode(t, `{"symbol":"NIKKEI","order_action":"sell","price":"38000","timenow":"2025-10-20T00:00:00Z"}`)

	msg := FormatAlert(data, time.Now())
	assert.Equal(t, "🔴 TradingView Alert\nticker: NIKKEI\naction: sell\nprice: 38000\ntime: 2025-10-20T00:00:00Z", msg)
}

func TestDecodeAlert_KeepsNumbersExact(t *testing.T) {
	data := decode(t, `{"close":12345678901234567890}`)
	assert.Equal(t, json.Number("12345678901234567890"), data["close"])
}
