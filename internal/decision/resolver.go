package decision

import (
	"github.com/shopspring/decimal"

	"github.com/satter0827/market-decision-engine/internal/policy"
	"github.com/satter0827/market-decision-engine/internal/regime"
)

// 中文说明：
// 决策定稿：CANDIDATE → SIZED → SCORED → DECIDED 只进不退，
// 出口处复验价格 checksum，然后按固定顺序的信号规则定 YES / YES_HALF / NO。
// 规则只会把信号往 NO 方向压，不存在升级路径。

// Stage 流水线阶段。
type Stage string

const (
	StageCandidate Stage = "CANDIDATE"
	StageSized     Stage = "SIZED"
	StageScored    Stage = "SCORED"
	StageDecided   Stage = "DECIDED"
)

var nextStage = map[Stage]Stage{
	StageCandidate: StageSized,
	StageSized:     StageScored,
	StageScored:    StageDecided,
}

// tickerState 单标的的阶段推进器，回退或跳段视为契约破坏。
type tickerState struct {
	ticker string
	stage  Stage
}

func newTickerState(ticker string) *tickerState {
	return &tickerState{ticker: ticker, stage: StageCandidate}
}

func (s *tickerState) advance(to Stage) error {
	want, ok := nextStage[s.stage]
	if !ok || want != to {
		return Contractf("pipeline", "%s 非法阶段迁移 %s -> %s", s.ticker, s.stage, to)
	}
	s.stage = to
	return nil
}

const (
	reasonIneligible     = "ineligible"
	reasonSizeZero       = "size_zero"
	reasonLowPlanScore   = "below_min_plan_score"
	reasonLowPSuccess    = "low_p_success"
	reasonMidConfidence  = "mid_confidence"
	reasonNoConfidence   = "confidence_absent"
	reasonSizeReduced    = "size_reduced"
	reasonRegimeNotFull  = "regime_not_full"
	reasonHalfLotZero    = "half_size_rounds_to_zero"
	reasonConcurrencyCap = "concurrency_cap"
)

// Resolve 把胜出计划定稿为 DecisionCore。
// 返回错误只可能是契约违例，所有业务性失败都折叠进信号与原因。
func Resolve(sp ScoredPlan, pol policy.Snapshot, reg regime.State) (DecisionCore, error) {
	plan := sp.Adjusted.Plan
	if err := plan.VerifyPrices(); err != nil {
		return DecisionCore{}, err
	}

	warnings := append([]string(nil), plan.Warnings...)
	signal, reasons := resolveSignal(sp, pol.Signal, reg)
	warnings = append(warnings, reasons...)

	size := sp.Adjusted.AdjustedSize
	switch signal {
	case SignalNo:
		size = 0
	case SignalYesHalf:
		half := floorToLot(int(float64(size)*pol.Signal.ReducedSizeMult), pol.Constraints.LotSize)
		if half <= 0 {
			signal = SignalNo
			size = 0
			warnings = append(warnings, reasonHalfLotZero)
		} else {
			size = half
		}
	}

	maxLoss := decToFloat(decFromFloat(plan.RiskPerShare).Mul(decimal.NewFromInt(int64(size))))

	core := DecisionCore{
		Ticker:           plan.Ticker,
		AsOf:             plan.AsOf,
		Setup:            plan.Args.Setup,
		BuySignal:        signal,
		Entry:            plan.Entry,
		Stop:             plan.Stop,
		Target2R:         plan.Target2R,
		Target3R:         plan.Target3R,
		PositionSize:     size,
		MaxLoss:          maxLoss,
		TimeStopDays:     plan.TimeStopDays,
		PlanScore:        plan.PlanScore,
		SizeMultiplier:   sp.Adjusted.SizeMultiplier,
		Adjustments:      sp.Adjusted.Adjustments,
		PlanArgs:         plan.Args,
		PolicySnapshotID: pol.ID,
		Warnings:         warnings,
	}
	if sp.Confidence.Present {
		p, ev, u := sp.Confidence.PSuccess, sp.Confidence.EVR, sp.Confidence.Uncertainty
		core.PSuccess = &p
		core.EVR = &ev
		core.Uncertainty = &u
		core.ModelVersion = sp.Confidence.ModelVersion
	}
	return core, nil
}

// resolveSignal 按固定顺序过一遍规则，先触发者定局。
func resolveSignal(sp ScoredPlan, sig policy.Signal, reg regime.State) (BuySignal, []string) {
	adj := sp.Adjusted
	switch {
	case !adj.Eligible:
		return SignalNo, []string{reasonIneligible}
	case adj.AdjustedSize <= 0:
		return SignalNo, []string{reasonSizeZero}
	case adj.Plan.PlanScore < sig.MinPlanScore:
		return SignalNo, []string{reasonLowPlanScore}
	case sp.Confidence.Present && sp.Confidence.PSuccess < sig.PNoBelow:
		return SignalNo, []string{reasonLowPSuccess}
	}

	// 满仓 YES 需要三个条件同时成立：高置信、市况全开、没有任何缩减。
	if sp.Confidence.Present && sp.Confidence.PSuccess >= sig.PFullAbove &&
		reg.RiskGate == regime.GateOn && adj.SizeMultiplier >= 1 {
		return SignalYes, nil
	}

	var reasons []string
	if !sp.Confidence.Present {
		reasons = append(reasons, reasonNoConfidence)
	} else if sp.Confidence.PSuccess < sig.PFullAbove {
		reasons = append(reasons, reasonMidConfidence)
	}
	if adj.SizeMultiplier < 1 {
		reasons = append(reasons, reasonSizeReduced)
	}
	if reg.RiskGate != regime.GateOn {
		reasons = append(reasons, reasonRegimeNotFull)
	}
	return SignalYesHalf, reasons
}
