package decision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satter0827/market-decision-engine/internal/regime"
)

func eligibleAdjusted(t *testing.T) AdjustedPlan {
	t.Helper()
	adj, err := AdjustPlan(mustPlan(testTicker, nil), nil, bullRegime(), testPolicy())
	assert.NoError(t, err)
	return adj
}

func TestResolve_FullYes(t *testing.T) {
	adj := eligibleAdjusted(t)
	sp := ScoredPlan{
		Adjusted:   adj,
		Confidence: Estimate{Present: true, PSuccess: 0.70, EVR: 1.2, Uncertainty: 0.2, ModelVersion: "m1"},
	}

	core, err := Resolve(sp, testPolicy(), bullRegime())
	assert.NoError(t, err)
	assert.Equal(t, SignalYes, core.BuySignal)
	assert.Equal(t, adj.AdjustedSize, core.PositionSize)
	assert.Equal(t, "a1b2c3d4e5f6", core.PolicySnapshotID)
	assert.NotNil(t, core.PSuccess)
	assert.Equal(t, 0.70, *core.PSuccess)
	assert.Equal(t, "m1", core.ModelVersion)
}

func TestResolve_HalfWhenConfidenceAbsent(t *testing.T) {
	adj := eligibleAdjusted(t)
	sp := ScoredPlan{Adjusted: adj, Confidence: Estimate{AbsentReason: "timeout"}}

	core, err := Resolve(sp, testPolicy(), bullRegime())
	assert.NoError(t, err)
	assert.Equal(t, SignalYesHalf, core.BuySignal)
	// 900 股取半 450，手数压到 400。
	assert.Equal(t, 400, core.PositionSize)
	assert.Contains(t, core.Warnings, "confidence_absent")
	assert.Nil(t, core.PSuccess)
	assert.Nil(t, core.EVR)
}

func TestResolve_HalfWhenRegimeReduced(t *testing.T) {
	reg := bullRegime()
	reg.RiskGate = regime.GateReduced
	adj, err := AdjustPlan(mustPlan(testTicker, nil), nil, reg, testPolicy())
	assert.NoError(t, err)
	sp := ScoredPlan{
		Adjusted:   adj,
		Confidence: Estimate{Present: true, PSuccess: 0.80, EVR: 1.5, Uncertainty: 0.1},
	}

	core, err := Resolve(sp, testPolicy(), reg)
	assert.NoError(t, err)
	// 高置信也升不回满仓，缩减过的计划最多半仓。
	assert.Equal(t, SignalYesHalf, core.BuySignal)
	assert.Contains(t, core.Warnings, "size_reduced")
}

func TestResolve_NoPaths(t *testing.T) {
	pol := testPolicy()

	t.Run("Ineligible", func(t *testing.T) {
		adj := eligibleAdjusted(t)
		adj.Eligible = false
		core, err := Resolve(ScoredPlan{Adjusted: adj}, pol, bullRegime())
		assert.NoError(t, err)
		assert.Equal(t, SignalNo, core.BuySignal)
		assert.Equal(t, 0, core.PositionSize)
		assert.Equal(t, 0.0, core.MaxLoss)
		assert.Contains(t, core.Warnings, "ineligible")
	})

	t.Run("Size Zero", func(t *testing.T) {
		adj := eligibleAdjusted(t)
		adj.AdjustedSize = 0
		core, err := Resolve(ScoredPlan{Adjusted: adj}, pol, bullRegime())
		assert.NoError(t, err)
		assert.Equal(t, SignalNo, core.BuySignal)
		assert.Contains(t, core.Warnings, "size_zero")
	})

	t.Run("Below Min Plan Score", func(t *testing.T) {
		strict := testPolicy()
		strict.Signal.MinPlanScore = 0.99
		adj := eligibleAdjusted(t)
		core, err := Resolve(ScoredPlan{Adjusted: adj}, strict, bullRegime())
		assert.NoError(t, err)
		assert.Equal(t, SignalNo, core.BuySignal)
		assert.Contains(t, core.Warnings, "below_min_plan_score")
	})

	t.Run("Low P Success", func(t *testing.T) {
		adj := eligibleAdjusted(t)
		sp := ScoredPlan{
			Adjusted:   adj,
			Confidence: Estimate{Present: true, PSuccess: 0.30, EVR: 0.1, Uncertainty: 0.3},
		}
		core, err := Resolve(sp, pol, bullRegime())
		assert.NoError(t, err)
		assert.Equal(t, SignalNo, core.BuySignal)
		assert.Contains(t, core.Warnings, "low_p_success")
	})
}

func TestResolve_HalfRoundsToZeroBecomesNo(t *testing.T) {
	adj := eligibleAdjusted(t)
	adj.AdjustedSize = 100 // 取半 50 不足一手

	core, err := Resolve(ScoredPlan{Adjusted: adj}, testPolicy(), bullRegime())
	assert.NoError(t, err)
	assert.Equal(t, SignalNo, core.BuySignal)
	assert.Equal(t, 0, core.PositionSize)
	assert.Contains(t, core.Warnings, "half_size_rounds_to_zero")
}

func TestResolve_TamperedPrices(t *testing.T) {
	adj := eligibleAdjusted(t)
	adj.Plan.Entry += 1 // 越过生成器改价

	_, err := Resolve(ScoredPlan{Adjusted: adj}, testPolicy(), bullRegime())
	assert.Error(t, err)

	var cerr *ContractError
	assert.True(t, errors.As(err, &cerr))
}

func TestStageMachine(t *testing.T) {
	t.Run("Legal Chain", func(t *testing.T) {
		st := newTickerState(testTicker)
		assert.NoError(t, st.advance(StageSized))
		assert.NoError(t, st.advance(StageScored))
		assert.NoError(t, st.advance(StageDecided))
	})

	t.Run("Skip Stage Fails", func(t *testing.T) {
		st := newTickerState(testTicker)
		err := st.advance(StageScored)
		assert.Error(t, err)
		var cerr *ContractError
		assert.True(t, errors.As(err, &cerr))
	})

	t.Run("No Progress Past Decided", func(t *testing.T) {
		st := newTickerState(testTicker)
		assert.NoError(t, st.advance(StageSized))
		assert.NoError(t, st.advance(StageScored))
		assert.NoError(t, st.advance(StageDecided))
		assert.Error(t, st.advance(StageSized))
	})
}
