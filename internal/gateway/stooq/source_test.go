package stooq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSymbol(t *testing.T) {
	cases := map[string]string{
		"7203.T":  "7203.jp",
		"6758.t":  "6758.jp",
		"AAPL":    "aapl.us",
		"msft":    "msft.us",
		"^NKX":    "^nkx",
		"^SPX":    "^spx",
		"7203.jp": "7203.jp",
		"aapl.us": "aapl.us",
		"":        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, MapSymbol(in), "input %q", in)
	}
}

func TestParseCSV(t *testing.T) {
	t.Run("Daily Rows Success", func(t *testing.T) {
		raw := strings.Join([]string{
			"Date,Open,High,Low,Close,Volume",
			"2026-08-20,2980,3010,2975,3005,1200000",
			"2026-08-21,3006,3050,3000,3042,1510000",
		}, "\n")

		candles, err := parseCSV(strings.NewReader(raw))
		assert.NoError(t, err)
		assert.Len(t, candles, 2)
		assert.Equal(t, "2026-08-20", candles[0].DateKey())
		assert.Equal(t, "2026-08-21", candles[1].DateKey())
		assert.Equal(t, 3042.0, candles[1].Close)
		assert.Equal(t, 1510000.0, candles[1].Volume)
		assert.Less(t, candles[0].OpenTime, candles[1].OpenTime)
	})

	t.Run("Index Without Volume", func(t *testing.T) {
		raw := strings.Join([]string{
			"Date,Open,High,Low,Close",
			"2026-08-21,42000,42400,41900,42210",
		}, "\n")

		candles, err := parseCSV(strings.NewReader(raw))
		assert.NoError(t, err)
		assert.Len(t, candles, 1)
		assert.Equal(t, 0.0, candles[0].Volume)
	})

	t.Run("Missing Column Fails", func(t *testing.T) {
		_, err := parseCSV(strings.NewReader("Date,Open,High,Low\n2026-08-21,1,2,0.5\n"))
		assert.Error(t, err)
	})

	t.Run("Bad Dates Skipped", func(t *testing.T) {
		raw := strings.Join([]string{
			"Date,Open,High,Low,Close,Volume",
			"not-a-date,1,2,0.5,1.5,10",
			"2026-08-21,3006,3050,3000,3042,1510000",
		}, "\n")

		candles, err := parseCSV(strings.NewReader(raw))
		assert.NoError(t, err)
		assert.Len(t, candles, 1)
	})
}
