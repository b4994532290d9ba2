package feature

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 基本面数据来自可选的市场级 YAML 文件：
//
//	market: JP
//	symbols:
//	  7203.T: {revenue_growth_yoy: 0.05, operating_margin: 0.11, roe: 0.12, leverage: 1.1}
//
// 文件缺失不是错误，相关标的的基本面特征视为缺席。

type fundamentalRow struct {
	RevenueGrowthYoY *float64 `yaml:"revenue_growth_yoy"`
	OperatingMargin  *float64 `yaml:"operating_margin"`
	ROE              *float64 `yaml:"roe"`
	Leverage         *float64 `yaml:"leverage"`
}

type fundamentalDoc struct {
	Market  string                    `yaml:"market"`
	Symbols map[string]fundamentalRow `yaml:"symbols"`
}

// LoadFundamentals 读取市场级基本面文件并为每个标的构造特征包。
// path 为空或文件不存在时返回空表。
func LoadFundamentals(market, path, asOf string) (map[string]*Bundle, error) {
	out := make(map[string]*Bundle)
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("fundamentals: read %s: %w", path, err)
	}
	var doc fundamentalDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("fundamentals: parse %s: %w", path, err)
	}
	if doc.Market != "" && !strings.EqualFold(strings.TrimSpace(doc.Market), market) {
		return nil, fmt.Errorf("fundamentals: file %s declares market %s, want %s", path, doc.Market, market)
	}
	for sym, row := range doc.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		nums := make(map[string]float64, 4)
		if row.RevenueGrowthYoY != nil {
			nums[KeyRevenueGrowthYoY] = *row.RevenueGrowthYoY
		}
		if row.OperatingMargin != nil {
			nums[KeyOperatingMargin] = *row.OperatingMargin
		}
		if row.ROE != nil {
			nums[KeyROE] = *row.ROE
		}
		if row.Leverage != nil {
			nums[KeyLeverage] = *row.Leverage
		}
		if len(nums) == 0 {
			continue
		}
		out[sym] = NewBundle(ProvenanceFundamental, sym, asOf, nums, nil)
	}
	return out, nil
}
