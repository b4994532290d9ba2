// Package symbol 统一加密交易对的书写口径。
// 清单与引擎内部使用 BTCUSDT 这种拼接形式，各数据源按自家口径转换：
// binance 用拼接形式，gate 合约用 BTC_USDT。
package symbol

import "strings"

// Pair 是拆分后的交易对。
type Pair struct {
	Base  string
	Quote string
}

// knownQuotes 按先长后短的顺序匹配计价币后缀。
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "TUSD", "BUSD", "BTC", "ETH", "BNB"}

// Split 解析 BTCUSDT / BTC/USDT / BTC_USDT 任一种写法。
// 无法识别计价币时返回 false。
func Split(s string) (Pair, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Pair{}, false
	}
	// 合约写法可能带结算后缀（BTC/USDT:USDT），截掉
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range []string{"/", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			base, quote := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if base == "" || quote == "" {
				return Pair{}, false
			}
			return Pair{Base: base, Quote: quote}, true
		}
	}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: s[:len(s)-len(quote)], Quote: quote}, true
		}
	}
	return Pair{}, false
}

// Canonical 返回引擎内部口径（BTCUSDT）。
func (p Pair) Canonical() string {
	if p.Base == "" || p.Quote == "" {
		return ""
	}
	return p.Base + p.Quote
}

// GateContract 返回 gate 永续合约口径（BTC_USDT）。
func (p Pair) GateContract() string {
	if p.Base == "" || p.Quote == "" {
		return ""
	}
	return p.Base + "_" + p.Quote
}

// ToBinance 把任意写法规范为 binance 现货口径。
// 识别不出交易对时按大写去分隔符兜底，由交易所端报错。
func ToBinance(s string) string {
	if p, ok := Split(s); ok {
		return p.Canonical()
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("/", "", "_", "").Replace(s)
	return s
}

// ToGate 把任意写法规范为 gate 合约口径，识别失败返回空串。
func ToGate(s string) string {
	if p, ok := Split(s); ok {
		return p.GateContract()
	}
	return ""
}
