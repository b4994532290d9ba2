// Package universe 维护各市场的候选标的清单。
// 未配置清单文件时使用内建缺省集合，文件顺序即遍历顺序。
package universe

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Entry struct {
	Symbol            string  `yaml:"symbol" json:"symbol"`
	Name              string  `yaml:"name" json:"name"`
	Sector            string  `yaml:"sector" json:"sector"`
	LotSize           int     `yaml:"lot_size" json:"lot_size"`
	SharesOutstanding float64 `yaml:"shares_outstanding" json:"shares_outstanding"`
}

type fileDoc struct {
	Market  string  `yaml:"market"`
	Symbols []Entry `yaml:"symbols"`
}

// Load 返回某市场的标的清单。path 为空时回退内建缺省集合。
func Load(market, path string) ([]Entry, error) {
	market = strings.ToUpper(strings.TrimSpace(market))
	if strings.TrimSpace(path) == "" {
		def := Default(market)
		if len(def) == 0 {
			return nil, fmt.Errorf("universe: no builtin defaults for market %s", market)
		}
		return def, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("universe: read %s: %w", path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("universe: parse %s: %w", path, err)
	}
	if doc.Market != "" && !strings.EqualFold(strings.TrimSpace(doc.Market), market) {
		return nil, fmt.Errorf("universe: file %s declares market %s, want %s", path, doc.Market, market)
	}
	if len(doc.Symbols) == 0 {
		return nil, fmt.Errorf("universe: file %s has no symbols", path)
	}
	seen := make(map[string]bool, len(doc.Symbols))
	out := make([]Entry, 0, len(doc.Symbols))
	for i, e := range doc.Symbols {
		e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
		if e.Symbol == "" {
			return nil, fmt.Errorf("universe: file %s entry %d missing symbol", path, i)
		}
		if seen[e.Symbol] {
			return nil, fmt.Errorf("universe: file %s duplicate symbol %s", path, e.Symbol)
		}
		seen[e.Symbol] = true
		if e.LotSize <= 0 {
			e.LotSize = defaultLotSize(market)
		}
		out = append(out, e)
	}
	return out, nil
}

func defaultLotSize(market string) int {
	if market == "JP" {
		return 100
	}
	return 1
}

// Default 返回内建缺省清单（股数为近似值，仅用于市值分桶）。
func Default(market string) []Entry {
	switch market {
	case "JP":
		return []Entry{
			{Symbol: "7203.T", Name: "Toyota Motor", Sector: "Autos", LotSize: 100, SharesOutstanding: 1.36e10},
			{Symbol: "6758.T", Name: "Sony Group", Sector: "Electronics", LotSize: 100, SharesOutstanding: 1.24e9},
			{Symbol: "9432.T", Name: "NTT", Sector: "Telecom", LotSize: 100, SharesOutstanding: 9.06e10},
			{Symbol: "8306.T", Name: "MUFG", Sector: "Banks", LotSize: 100, SharesOutstanding: 1.23e10},
			{Symbol: "9984.T", Name: "SoftBank Group", Sector: "Holdings", LotSize: 100, SharesOutstanding: 1.47e9},
			{Symbol: "6861.T", Name: "Keyence", Sector: "Electronics", LotSize: 100, SharesOutstanding: 2.43e8},
			{Symbol: "7974.T", Name: "Nintendo", Sector: "Games", LotSize: 100, SharesOutstanding: 1.3e9},
			{Symbol: "8035.T", Name: "Tokyo Electron", Sector: "Semis", LotSize: 100, SharesOutstanding: 4.71e8},
		}
	case "US":
		return []Entry{
			{Symbol: "AAPL", Name: "Apple", Sector: "Tech", LotSize: 1, SharesOutstanding: 1.52e10},
			{Symbol: "MSFT", Name: "Microsoft", Sector: "Tech", LotSize: 1, SharesOutstanding: 7.43e9},
			{Symbol: "NVDA", Name: "NVIDIA", Sector: "Semis", LotSize: 1, SharesOutstanding: 2.46e10},
			{Symbol: "AMZN", Name: "Amazon", Sector: "Consumer", LotSize: 1, SharesOutstanding: 1.05e10},
			{Symbol: "GOOGL", Name: "Alphabet", Sector: "Tech", LotSize: 1, SharesOutstanding: 1.23e10},
			{Symbol: "META", Name: "Meta Platforms", Sector: "Tech", LotSize: 1, SharesOutstanding: 2.52e9},
			{Symbol: "TSLA", Name: "Tesla", Sector: "Autos", LotSize: 1, SharesOutstanding: 3.19e9},
			{Symbol: "JPM", Name: "JPMorgan", Sector: "Banks", LotSize: 1, SharesOutstanding: 2.87e9},
		}
	case "CRYPTO":
		return []Entry{
			{Symbol: "BTCUSDT", Name: "Bitcoin", Sector: "L1", LotSize: 1, SharesOutstanding: 1.97e7},
			{Symbol: "ETHUSDT", Name: "Ethereum", Sector: "L1", LotSize: 1, SharesOutstanding: 1.2e8},
			{Symbol: "BNBUSDT", Name: "BNB", Sector: "Exchange", LotSize: 1, SharesOutstanding: 1.44e8},
			{Symbol: "SOLUSDT", Name: "Solana", Sector: "L1", LotSize: 1, SharesOutstanding: 4.65e8},
			{Symbol: "XRPUSDT", Name: "XRP", Sector: "Payments", LotSize: 1, SharesOutstanding: 5.56e10},
			{Symbol: "ADAUSDT", Name: "Cardano", Sector: "L1", LotSize: 1, SharesOutstanding: 3.59e10},
		}
	default:
		return nil
	}
}
