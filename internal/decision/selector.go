package decision

import (
	"sort"

	"github.com/satter0827/market-decision-engine/internal/policy"
)

// 中文说明：
// 计划选择：一个标的最多留一份计划。
// 综合分 = plan_score + ev_weight * clamp(ev_r)，置信度缺席时退化为 plan_score。
// 平分按固定链路打破：plan_score 高者 > 检测器优先级小者 > 入场价低者，
// 保证同输入永远同选择。

// composite 计算综合分。ev_r 已在边界处收窄，这里直接使用。
func composite(sp ScoredPlan, sig policy.Signal) float64 {
	if !sp.Confidence.Present {
		return sp.Adjusted.Plan.PlanScore
	}
	return sp.Adjusted.Plan.PlanScore + sig.EVWeight*clampEVR(sp.Confidence.EVR)
}

// SelectPlan 从打分计划里选出唯一胜者，其余作为落选返回。
// 入参为空时 ok=false。
func SelectPlan(scored []ScoredPlan, sig policy.Signal) (winner ScoredPlan, dropped []ScoredPlan, ok bool) {
	if len(scored) == 0 {
		return ScoredPlan{}, nil, false
	}
	ranked := make([]ScoredPlan, len(scored))
	copy(ranked, scored)
	for i := range ranked {
		ranked[i].Composite = composite(ranked[i], sig)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if a.Adjusted.Plan.PlanScore != b.Adjusted.Plan.PlanScore {
			return a.Adjusted.Plan.PlanScore > b.Adjusted.Plan.PlanScore
		}
		if a.Adjusted.Plan.Args.Priority != b.Adjusted.Plan.Args.Priority {
			return a.Adjusted.Plan.Args.Priority < b.Adjusted.Plan.Args.Priority
		}
		return a.Adjusted.Plan.Entry < b.Adjusted.Plan.Entry
	})
	return ranked[0], ranked[1:], true
}
