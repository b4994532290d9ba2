package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func scoredFixture(planScore, entry float64, priority int, est Estimate) ScoredPlan {
	plan := ExecutionPlan{
		Ticker:    testTicker,
		AsOf:      testAsOf,
		Args:      PlanArgs{Setup: SetupBreakout20, Priority: priority},
		Entry:     entry,
		Stop:      entry - 40,
		PlanScore: planScore,
	}
	plan.seal()
	return ScoredPlan{
		Adjusted:   AdjustedPlan{Plan: plan, SizeMultiplier: 1, AdjustedSize: 100, Eligible: true},
		Confidence: est,
	}
}

func TestSelectPlan_CompositeOrdering(t *testing.T) {
	sig := testPolicy().Signal

	t.Run("Higher EV Wins", func(t *testing.T) {
		low := scoredFixture(0.6, 1000, 1, Estimate{Present: true, PSuccess: 0.6, EVR: 0.2})
		high := scoredFixture(0.6, 1100, 2, Estimate{Present: true, PSuccess: 0.6, EVR: 2.0})

		winner, dropped, ok := SelectPlan([]ScoredPlan{low, high}, sig)
		assert.True(t, ok)
		assert.Equal(t, 2.0, winner.Confidence.EVR)
		assert.Len(t, dropped, 1)
		assert.InDelta(t, 0.6+sig.EVWeight*2.0, winner.Composite, 1e-9)
	})

	t.Run("Absent Confidence Falls Back To Plan Score", func(t *testing.T) {
		absent := scoredFixture(0.7, 1000, 1, Estimate{})
		present := scoredFixture(0.6, 1100, 2, Estimate{Present: true, PSuccess: 0.6, EVR: 0.2})

		winner, _, ok := SelectPlan([]ScoredPlan{absent, present}, sig)
		assert.True(t, ok)
		// 0.7 对 0.6+0.15*0.2=0.63。
		assert.Equal(t, 0.7, winner.Composite)
		assert.False(t, winner.Confidence.Present)
	})
}

func TestSelectPlan_TieBreaks(t *testing.T) {
	sig := testPolicy().Signal

	t.Run("Plan Score Breaks Composite Tie", func(t *testing.T) {
		// composite 相同：0.6+0.15*1.0 = 0.75 对 0.75 纯 plan_score。
		withEV := scoredFixture(0.6, 1000, 1, Estimate{Present: true, PSuccess: 0.6, EVR: 1.0})
		pure := scoredFixture(0.75, 1100, 2, Estimate{})

		winner, _, ok := SelectPlan([]ScoredPlan{withEV, pure}, sig)
		assert.True(t, ok)
		assert.Equal(t, 0.75, winner.Adjusted.Plan.PlanScore)
	})

	t.Run("Priority Breaks Plan Score Tie", func(t *testing.T) {
		breakout := scoredFixture(0.6, 1100, 1, Estimate{})
		pullback := scoredFixture(0.6, 1000, 2, Estimate{})

		winner, _, ok := SelectPlan([]ScoredPlan{pullback, breakout}, sig)
		assert.True(t, ok)
		assert.Equal(t, 1, winner.Adjusted.Plan.Args.Priority)
	})

	t.Run("Lower Entry Breaks Priority Tie", func(t *testing.T) {
		a := scoredFixture(0.6, 1100, 1, Estimate{})
		b := scoredFixture(0.6, 1000, 1, Estimate{})

		winner, _, ok := SelectPlan([]ScoredPlan{a, b}, sig)
		assert.True(t, ok)
		assert.Equal(t, 1000.0, winner.Adjusted.Plan.Entry)
	})
}

func TestSelectPlan_Empty(t *testing.T) {
	_, _, ok := SelectPlan(nil, testPolicy().Signal)
	assert.False(t, ok)
}

func TestSelectPlan_InputUntouched(t *testing.T) {
	sig := testPolicy().Signal
	plans := []ScoredPlan{
		scoredFixture(0.5, 1000, 2, Estimate{}),
		scoredFixture(0.9, 1100, 1, Estimate{}),
	}

	_, _, ok := SelectPlan(plans, sig)
	assert.True(t, ok)
	// 选择器排序副本，入参顺序保持原样。
	assert.Equal(t, 0.5, plans[0].Adjusted.Plan.PlanScore)
	assert.Equal(t, 0.9, plans[1].Adjusted.Plan.PlanScore)
}
