package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		in    string
		base  string
		quote string
		ok    bool
	}{
		{"BTCUSDT", "BTC", "USDT", true},
		{"btcusdt", "BTC", "USDT", true},
		{"BTC/USDT", "BTC", "USDT", true},
		{"BTC_USDT", "BTC", "USDT", true},
		{"BTC/USDT:USDT", "BTC", "USDT", true},
		{"ETHBTC", "ETH", "BTC", true},
		{"SOLFDUSD", "SOL", "FDUSD", true},
		{"", "", "", false},
		{"USDT", "", "", false},
		{"7203.T", "", "", false},
	}
	for _, tc := range cases {
		p, ok := Split(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.base, p.Base, "input %q", tc.in)
		assert.Equal(t, tc.quote, p.Quote, "input %q", tc.in)
	}
}

func TestToBinance(t *testing.T) {
	assert.Equal(t, "BTCUSDT", ToBinance("BTC/USDT"))
	assert.Equal(t, "BTCUSDT", ToBinance("btc_usdt"))
	assert.Equal(t, "BTCUSDT", ToBinance("BTCUSDT"))
	assert.Equal(t, "ABCXYZ", ToBinance("ABC/XYZ"))
	// 识别不出计价币时大写去分隔符兜底，由交易所端报错
	assert.Equal(t, "FOO", ToBinance("foo"))
}

func TestToGate(t *testing.T) {
	assert.Equal(t, "BTC_USDT", ToGate("BTCUSDT"))
	assert.Equal(t, "ETH_USDT", ToGate("eth/usdt"))
	assert.Equal(t, "BTC_USDT", ToGate("BTC_USDT"))
	assert.Equal(t, "", ToGate("7203.T"))
	assert.Equal(t, "", ToGate(""))
}
