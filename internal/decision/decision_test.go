package decision

import (
	"context"
	"time"

	"github.com/satter0827/market-decision-engine/internal/feature"
	"github.com/satter0827/market-decision-engine/internal/policy"
	"github.com/satter0827/market-decision-engine/internal/regime"
)

// 共享测试夹具：一套能触发 breakout20 候选的日线特征、
// 一份 JP 口径的策略快照、一个可编程的置信度估计器。

const (
	testAsOf   = "2026-08-21"
	testTicker = "7203.T"
)

func testParams() Params {
	p := DefaultParams()
	p.Workers = 4
	return p
}

func testPolicy() policy.Snapshot {
	return policy.Snapshot{
		ID:      "a1b2c3d4e5f6",
		Account: policy.Account{Equity: 10_000_000, Currency: "JPY"},
		Risk:    policy.Risk{RiskPerTradePct: 0.005, MaxPositionPct: 0.10, MaxConcurrentPositions: 10},
		Constraints: policy.Constraints{
			Market:  "JP",
			LotSize: 100,
			TickTable: []policy.TickBand{
				{MaxPrice: 3000, Tick: 1},
				{MaxPrice: 0, Tick: 5},
			},
		},
		TradePlan: policy.TradePlan{
			EntryBufferPct: 0.001,
			ATRN:           14,
			ATRStopK:       2.0,
			SwingLookback:  20,
			TimeStopDays:   20,
		},
		Signal: policy.Signal{
			MinPlanScore:    0.35,
			PNoBelow:        0.45,
			PFullAbove:      0.62,
			EVWeight:        0.15,
			ReducedSizeMult: 0.5,
		},
		Sizing: policy.Sizing{
			SmallCapBelow:     3e11,
			SmallCapMult:      0.7,
			ThinTurnoverBelow: 5e8,
			ThinTurnoverMult:  0.6,
			RegimeReducedMult: 0.5,
		},
	}
}

func bullRegime() regime.State {
	return regime.State{
		Trend:      regime.TrendUp,
		Volatility: regime.VolNormal,
		RiskGate:   regime.GateOn,
		Benchmark:  "^NKX",
		AsOf:       testAsOf,
	}
}

// breakoutNums 收盘贴着 20 日高点且放量，只触发 breakout20。
func breakoutNums() map[string]float64 {
	return map[string]float64{
		feature.KeyOpen:        980,
		feature.KeyHigh:        1004,
		feature.KeyLow:         975,
		feature.KeyClose:       1004,
		feature.KeyVolume:      1.5e6,
		feature.KeyATR14:       20,
		feature.KeySMA20:       970,
		feature.KeySMA50:       930,
		feature.KeyRSI14:       62,
		feature.KeyHH20:        1005,
		feature.KeyLL20:        940,
		feature.KeyVRatio20:    1.8,
		feature.KeyCloseToHH20: (1004.0 - 1005.0) / 1005.0,
	}
}

func testDailyBundle(symbol string, overrides map[string]float64) *feature.Bundle {
	nums := breakoutNums()
	for k, v := range overrides {
		nums[k] = v
	}
	return feature.NewBundle(feature.ProvenanceDaily, symbol, testAsOf, nums, nil)
}

func testDailyView(symbol string, overrides map[string]float64) feature.Daily {
	view, err := feature.DailyView(testDailyBundle(symbol, overrides))
	if err != nil {
		panic(err)
	}
	return view
}

func testStaticBundle(symbol string, nums map[string]float64) *feature.Bundle {
	return feature.NewBundle(feature.ProvenanceStatic, symbol, testAsOf, nums, map[string]string{
		feature.KeySector: "Auto",
	})
}

// stubProvider 可编程置信度估计器。
type stubProvider struct {
	name string
	fn   func(ctx context.Context, req EstimateRequest) (Estimate, error)
}

func (s *stubProvider) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubProvider) Estimate(ctx context.Context, req EstimateRequest) (Estimate, error) {
	return s.fn(ctx, req)
}

func fixedProvider(p, ev, unc float64) *stubProvider {
	return &stubProvider{fn: func(context.Context, EstimateRequest) (Estimate, error) {
		return Estimate{PSuccess: p, EVR: ev, Uncertainty: unc, ModelVersion: "stub-1"}, nil
	}}
}

func slowProvider(delay time.Duration) *stubProvider {
	return &stubProvider{fn: func(ctx context.Context, _ EstimateRequest) (Estimate, error) {
		select {
		case <-ctx.Done():
			return Estimate{}, ctx.Err()
		case <-time.After(delay):
			return Estimate{PSuccess: 0.7, EVR: 1.0, Uncertainty: 0.2}, nil
		}
	}}
}

// mustPlan 跑通提取与生成，返回胜出前的执行计划。
func mustPlan(symbol string, overrides map[string]float64) ExecutionPlan {
	view := testDailyView(symbol, overrides)
	candidates, err := ExtractCandidates(view, testParams())
	if err != nil {
		panic(err)
	}
	if len(candidates) == 0 {
		panic("no candidates from fixture")
	}
	plan, err := GeneratePlan(symbol, testAsOf, candidates[0], view, testParams(), testPolicy())
	if err != nil {
		panic(err)
	}
	return plan
}
