// Package feature 定义带来源标签的特征包与访问视图。
// 下游阶段只能通过与来源匹配的视图读取特征，
// 价格相关阶段因此在类型层面就接触不到 static/fundamental 数据。
package feature

import (
	"fmt"
	"sort"
)

type Provenance string

const (
	ProvenanceDaily       Provenance = "daily"
	ProvenanceStatic      Provenance = "static"
	ProvenanceFundamental Provenance = "fundamental"
)

// MismatchError 表示用错误来源的包构造视图，属于契约违例。
type MismatchError struct {
	Want Provenance
	Got  Provenance
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("feature provenance mismatch: want %s, got %s", e.Want, e.Got)
}

// Bundle 是一组带来源标签的特征，构造后不可变。
type Bundle struct {
	provenance Provenance
	symbol     string
	asOf       string
	nums       map[string]float64
	strs       map[string]string
}

func NewBundle(p Provenance, symbol, asOf string, nums map[string]float64, strs map[string]string) *Bundle {
	b := &Bundle{
		provenance: p,
		symbol:     symbol,
		asOf:       asOf,
		nums:       make(map[string]float64, len(nums)),
		strs:       make(map[string]string, len(strs)),
	}
	for k, v := range nums {
		b.nums[k] = v
	}
	for k, v := range strs {
		b.strs[k] = v
	}
	return b
}

func (b *Bundle) Provenance() Provenance { return b.provenance }
func (b *Bundle) Symbol() string         { return b.symbol }
func (b *Bundle) AsOf() string           { return b.asOf }

func (b *Bundle) num(key string) (float64, bool) {
	v, ok := b.nums[key]
	return v, ok
}

func (b *Bundle) str(key string) (string, bool) {
	v, ok := b.strs[key]
	return v, ok
}

// Num 按键读取数值特征，与 NumKeys 配套供序列化使用。
func (b *Bundle) Num(key string) (float64, bool) { return b.num(key) }

// NumKeys 返回排序后的数值特征名，供序列化与测试使用。
func (b *Bundle) NumKeys() []string {
	keys := make([]string, 0, len(b.nums))
	for k := range b.nums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set 汇总单个标的的全部特征包。Static/Fundamental 允许缺席。
type Set struct {
	Daily       *Bundle
	Static      *Bundle
	Fundamental *Bundle
}

// Daily 视图是价格相关阶段唯一合法的特征读取途径。
type Daily struct {
	b *Bundle
}

func DailyView(b *Bundle) (Daily, error) {
	if b == nil {
		return Daily{}, fmt.Errorf("daily bundle missing")
	}
	if b.provenance != ProvenanceDaily {
		return Daily{}, &MismatchError{Want: ProvenanceDaily, Got: b.provenance}
	}
	return Daily{b: b}, nil
}

func (d Daily) Symbol() string { return d.b.Symbol() }
func (d Daily) AsOf() string   { return d.b.AsOf() }

// Get 读取任意日线派生特征。
func (d Daily) Get(key string) (float64, bool) { return d.b.num(key) }

func (d Daily) Close() (float64, bool)       { return d.b.num(KeyClose) }
func (d Daily) ATR14() (float64, bool)       { return d.b.num(KeyATR14) }
func (d Daily) SMA20() (float64, bool)       { return d.b.num(KeySMA20) }
func (d Daily) SMA50() (float64, bool)       { return d.b.num(KeySMA50) }
func (d Daily) RSI14() (float64, bool)       { return d.b.num(KeyRSI14) }
func (d Daily) HH20() (float64, bool)        { return d.b.num(KeyHH20) }
func (d Daily) LL20() (float64, bool)        { return d.b.num(KeyLL20) }
func (d Daily) VRatio20() (float64, bool)    { return d.b.num(KeyVRatio20) }
func (d Daily) CloseToHH20() (float64, bool) { return d.b.num(KeyCloseToHH20) }

// Complete 校验强制字段齐全，缺失即判定为数据缺陷。
func (d Daily) Complete() error {
	for _, key := range mandatoryDailyKeys {
		if _, ok := d.b.num(key); !ok {
			return fmt.Errorf("daily feature %s missing for %s", key, d.b.Symbol())
		}
	}
	return nil
}

// Static 视图暴露市值、流动性等静态属性，只影响仓位与资格。
type Static struct {
	b *Bundle
}

func StaticView(b *Bundle) (Static, error) {
	if b == nil {
		return Static{}, fmt.Errorf("static bundle missing")
	}
	if b.provenance != ProvenanceStatic {
		return Static{}, &MismatchError{Want: ProvenanceStatic, Got: b.provenance}
	}
	return Static{b: b}, nil
}

func (s Static) MarketCap() (float64, bool)     { return s.b.num(KeyMarketCap) }
func (s Static) AvgTurnover20() (float64, bool) { return s.b.num(KeyAvgTurnover20) }
func (s Static) LotSize() (float64, bool)       { return s.b.num(KeyLotSize) }
func (s Static) Sector() (string, bool)         { return s.b.str(KeySector) }

// Fundamental 视图暴露可选的基本面特征。
type Fundamental struct {
	b *Bundle
}

func FundamentalView(b *Bundle) (Fundamental, error) {
	if b == nil {
		return Fundamental{}, fmt.Errorf("fundamental bundle missing")
	}
	if b.provenance != ProvenanceFundamental {
		return Fundamental{}, &MismatchError{Want: ProvenanceFundamental, Got: b.provenance}
	}
	return Fundamental{b: b}, nil
}

func (f Fundamental) RevenueGrowthYoY() (float64, bool) { return f.b.num(KeyRevenueGrowthYoY) }
func (f Fundamental) OperatingMargin() (float64, bool)  { return f.b.num(KeyOperatingMargin) }
func (f Fundamental) ROE() (float64, bool)              { return f.b.num(KeyROE) }
func (f Fundamental) Leverage() (float64, bool)         { return f.b.num(KeyLeverage) }
