// Package policy 管理用户策略快照：账户、风险、执行成本、
// 市场约束与信号阈值。快照是不可变值，一次运行绑定唯一 ID。
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

type Account struct {
	Equity   float64 `json:"equity" yaml:"equity"`
	Currency string  `json:"currency" yaml:"currency"`
}

type Risk struct {
	RiskPerTradePct        float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	MaxPositionPct         float64 `json:"max_position_pct" yaml:"max_position_pct"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions" yaml:"max_concurrent_positions"`
}

type Execution struct {
	SlippagePct        float64 `json:"slippage_pct" yaml:"slippage_pct"`
	CommissionPerOrder float64 `json:"commission_per_order" yaml:"commission_per_order"`
	TaxPct             float64 `json:"tax_pct" yaml:"tax_pct"`
}

// TickBand 的 MaxPrice 为 0 表示无上界。
type TickBand struct {
	MaxPrice float64 `json:"max_price" yaml:"max_price"`
	Tick     float64 `json:"tick" yaml:"tick"`
}

type Constraints struct {
	Market         string     `json:"market" yaml:"market"`
	LotSize        int        `json:"lot_size" yaml:"lot_size"`
	MinPrice       float64    `json:"min_price" yaml:"min_price"`
	MinAvgTurnover float64    `json:"min_avg_turnover" yaml:"min_avg_turnover"`
	ImpactCapPct   float64    `json:"impact_cap_pct" yaml:"impact_cap_pct"`
	TickTable      []TickBand `json:"tick_table" yaml:"tick_table"`
}

// TickFor 返回价格所在档位的最小跳动单位。
func (c Constraints) TickFor(price float64) float64 {
	for _, band := range c.TickTable {
		if band.MaxPrice <= 0 || price <= band.MaxPrice {
			if band.Tick > 0 {
				return band.Tick
			}
		}
	}
	return 0.01
}

type TradePlan struct {
	EntryBufferPct  float64        `json:"entry_buffer_pct" yaml:"entry_buffer_pct"`
	ATRN            int            `json:"atr_n" yaml:"atr_n"`
	ATRStopK        float64        `json:"atr_stop_k" yaml:"atr_stop_k"`
	SwingLookback   int            `json:"swing_lookback" yaml:"swing_lookback"`
	TimeStopDays    int            `json:"time_stop_days" yaml:"time_stop_days"`
	TimeStopBySetup map[string]int `json:"time_stop_by_setup,omitempty" yaml:"time_stop_by_setup"`
}

// TimeStopFor 返回某 setup 的持仓时限，未单独配置时用全局值。
func (t TradePlan) TimeStopFor(setup string) int {
	if days, ok := t.TimeStopBySetup[strings.ToLower(strings.TrimSpace(setup))]; ok && days > 0 {
		return days
	}
	return t.TimeStopDays
}

type Signal struct {
	MinPlanScore    float64 `json:"min_plan_score" yaml:"min_plan_score"`
	PNoBelow        float64 `json:"p_no_below" yaml:"p_no_below"`
	PFullAbove      float64 `json:"p_full_above" yaml:"p_full_above"`
	EVWeight        float64 `json:"ev_weight" yaml:"ev_weight"`
	ReducedSizeMult float64 `json:"reduced_size_mult" yaml:"reduced_size_mult"`
}

// Sizing 描述风险调整阶段的缩减分桶，乘数只缩不放。
type Sizing struct {
	SmallCapBelow     float64 `json:"small_cap_below" yaml:"small_cap_below"`
	SmallCapMult      float64 `json:"small_cap_mult" yaml:"small_cap_mult"`
	ThinTurnoverBelow float64 `json:"thin_turnover_below" yaml:"thin_turnover_below"`
	ThinTurnoverMult  float64 `json:"thin_turnover_mult" yaml:"thin_turnover_mult"`
	RegimeReducedMult float64 `json:"regime_reduced_mult" yaml:"regime_reduced_mult"`
}

// Snapshot 是某市场某时刻生效的完整策略。
type Snapshot struct {
	ID          string      `json:"policy_snapshot_id,omitempty"`
	Account     Account     `json:"account"`
	Risk        Risk        `json:"risk"`
	Execution   Execution   `json:"execution"`
	Constraints Constraints `json:"constraints"`
	TradePlan   TradePlan   `json:"trade_plan"`
	Signal      Signal      `json:"signal"`
	Sizing      Sizing      `json:"sizing"`
}

// computeID 对快照正文做哈希，字段顺序由结构体声明固定。
func (s Snapshot) computeID() (string, error) {
	clone := s
	clone.ID = ""
	raw, err := json.Marshal(clone)
	if err != nil {
		return "", fmt.Errorf("policy snapshot hash: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:12], nil
}

// validate 做 schema 覆盖不到的关系型检查。
func (s *Snapshot) validate() error {
	if s.Signal.PNoBelow >= s.Signal.PFullAbove {
		return fmt.Errorf("policy %s: signal.p_no_below must be < p_full_above", s.Constraints.Market)
	}
	if s.Risk.RiskPerTradePct*s.Account.Equity <= 0 {
		return fmt.Errorf("policy %s: risk budget is zero", s.Constraints.Market)
	}
	for i, band := range s.Constraints.TickTable {
		if band.Tick <= 0 {
			return fmt.Errorf("policy %s: tick_table[%d].tick must be > 0", s.Constraints.Market, i)
		}
	}
	if s.TradePlan.TimeStopDays <= 0 {
		return fmt.Errorf("policy %s: trade_plan.time_stop_days must be > 0", s.Constraints.Market)
	}
	for setup, days := range s.TradePlan.TimeStopBySetup {
		if days <= 0 {
			return fmt.Errorf("policy %s: trade_plan.time_stop_by_setup.%s must be > 0", s.Constraints.Market, setup)
		}
	}
	return nil
}
