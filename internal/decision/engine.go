package decision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satter0827/market-decision-engine/internal/feature"
	"github.com/satter0827/market-decision-engine/internal/logger"
	"github.com/satter0827/market-decision-engine/internal/policy"
	"github.com/satter0827/market-decision-engine/internal/regime"
)

// 中文说明：
// 批跑引擎：对整个标的池并发执行七段流水线，屏障同步后全局排名。
// - 单标的失败折叠为跳过或告警，批次继续
// - 契约违例让整批作废，零输出
// - 输出顺序与并发调度无关，同输入同策略逐字节一致

// RunRequest 一次批跑的全部输入。引擎不做任何 I/O，
// 特征、策略、市况都由调用方备好。
type RunRequest struct {
	RunID         string
	Market        string
	AsOf          string
	Universe      []string
	Features      map[string]feature.Set
	Policy        policy.Snapshot
	Regime        regime.State
	Confidence    Provider
	PriorDegraded []string
	PriorWarnings []Warning
}

// Engine 决策引擎。无内部状态，可安全复用。
type Engine struct {
	params Params
	now    func() time.Time
}

func NewEngine(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("engine params: %w", err)
	}
	return &Engine{params: params, now: time.Now}, nil
}

// tickerOutcome 单标的处理结果，按标的池下标回填，避免共享集合加锁。
type tickerOutcome struct {
	decision     *DecisionCore
	composite    float64
	skipped      *SkippedTicker
	noCandidates bool
	warnings     []Warning
	absent       bool
	contract     error
}

// Run 执行一次批跑。返回错误时输出为零值，不存在部分结果。
func (e *Engine) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if err := e.checkRequest(req); err != nil {
		return RunResult{}, err
	}
	startedAt := e.now().UTC()

	outcomes := make([]tickerOutcome, len(req.Universe))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.params.Workers)
	for i, ticker := range req.Universe {
		i, ticker := i, ticker
		group.Go(func() error {
			out := e.processTicker(gctx, ticker, req)
			outcomes[i] = out
			if out.contract != nil {
				return out.contract
			}
			return gctx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		var cerr *ContractError
		if errors.As(err, &cerr) {
			logger.Errorf("批跑 %s 契约违例，整批作废: %v", req.RunID, err)
		}
		return RunResult{}, err
	}

	// 屏障之后按标的池顺序收集，保证输出与调度顺序无关。
	var (
		decisions  []DecisionCore
		composites []float64
		skipped    []SkippedTicker
		warnings   = append([]Warning(nil), req.PriorWarnings...)
		processed  int
		noCand     int
		absentSeen bool
	)
	for _, out := range outcomes {
		warnings = append(warnings, out.warnings...)
		switch {
		case out.skipped != nil:
			skipped = append(skipped, *out.skipped)
		case out.noCandidates:
			processed++
			noCand++
		case out.decision != nil:
			processed++
			decisions = append(decisions, *out.decision)
			composites = append(composites, out.composite)
		}
		if out.absent {
			absentSeen = true
		}
	}

	rankDecisions(decisions, composites)
	capped := applyConcurrencyCap(decisions, req.Policy.Risk.MaxConcurrentPositions)

	degraded := append([]string(nil), req.PriorDegraded...)
	if absentSeen && req.Confidence != nil {
		degraded = append(degraded, "confidence_absent")
	}

	finishedAt := e.now().UTC()
	meta := RunMeta{
		RunID:            req.RunID,
		Market:           req.Market,
		AsOf:             req.AsOf,
		UniverseSize:     len(req.Universe),
		Processed:        processed,
		Skipped:          len(skipped),
		NoCandidates:     noCand,
		Degraded:         len(degraded) > 0,
		DegradedReasons:  degraded,
		Warnings:         warnings,
		PolicySnapshotID: req.Policy.ID,
		Regime:           req.Regime,
		StartedAt:        startedAt.Format(time.RFC3339),
		FinishedAt:       finishedAt.Format(time.RFC3339),
		DurationMS:       finishedAt.Sub(startedAt).Milliseconds(),
	}
	for _, d := range decisions {
		switch d.BuySignal {
		case SignalYes:
			meta.Yes++
		case SignalYesHalf:
			meta.YesHalf++
		case SignalNo:
			meta.No++
		}
	}
	if capped > 0 {
		logger.Infof("批跑 %s 并发持仓上限触发，压平 %d 条信号", req.RunID, capped)
	}
	logger.Infof("批跑 %s 完成: market=%s as_of=%s universe=%d processed=%d skipped=%d yes=%d yes_half=%d no=%d",
		req.RunID, req.Market, req.AsOf, meta.UniverseSize, processed, meta.Skipped, meta.Yes, meta.YesHalf, meta.No)

	return RunResult{Meta: meta, Decisions: decisions, Skipped: skipped}, nil
}

func (e *Engine) checkRequest(req RunRequest) error {
	if req.RunID == "" {
		return fmt.Errorf("run_id 为空")
	}
	if req.AsOf == "" {
		return fmt.Errorf("as_of 为空")
	}
	if req.Policy.ID == "" {
		return fmt.Errorf("策略快照缺少 ID")
	}
	if len(req.Universe) == 0 {
		return fmt.Errorf("标的池为空")
	}
	return nil
}

// processTicker 对单标的执行全流水线。核心代码里的 panic 属于缺陷，
// 按契约违例处理而不是吞掉。
func (e *Engine) processTicker(ctx context.Context, ticker string, req RunRequest) (out tickerOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = tickerOutcome{contract: Contractf("pipeline", "%s 处理 panic: %v", ticker, r)}
		}
	}()

	skip := func(stage, code string, err error) tickerOutcome {
		logger.Debugf("跳过 %s: stage=%s code=%s err=%v", ticker, stage, code, err)
		return tickerOutcome{
			skipped:  &SkippedTicker{Ticker: ticker, Code: code, Reason: err.Error()},
			warnings: []Warning{{Ticker: ticker, Stage: stage, Code: code, Message: err.Error()}},
		}
	}

	state := newTickerState(ticker)

	set, ok := req.Features[ticker]
	if !ok {
		return skip("gate", "missing_features", fmt.Errorf("标的池中无特征"))
	}
	view, err := feature.DailyView(set.Daily)
	if err != nil {
		var mismatch *feature.MismatchError
		if errors.As(err, &mismatch) {
			return tickerOutcome{contract: Contractf("gate", "%s: %v", ticker, err)}
		}
		return skip("gate", "daily_missing", err)
	}
	if view.AsOf() != req.AsOf {
		return skip("gate", "stale_data", fmt.Errorf("日线截止 %s 落后于批次 %s", view.AsOf(), req.AsOf))
	}

	candidates, err := ExtractCandidates(view, e.params)
	if err != nil {
		var serr *SkipError
		if errors.As(err, &serr) {
			return skip("extract", serr.Code, serr.Err)
		}
		return tickerOutcome{contract: Contractf("extract", "%s: %v", ticker, err)}
	}
	if len(candidates) == 0 {
		return tickerOutcome{noCandidates: true}
	}

	if err := state.advance(StageSized); err != nil {
		return tickerOutcome{contract: err}
	}
	var (
		scored     []ScoredPlan
		planWarns  []Warning
		absentSeen bool
	)
	for _, args := range candidates {
		plan, err := GeneratePlan(ticker, req.AsOf, args, view, e.params, req.Policy)
		if err != nil {
			planWarns = append(planWarns, Warning{
				Ticker: ticker, Stage: "generate", Code: "plan_rejected",
				Message: fmt.Sprintf("%s: %v", args.Setup, err),
			})
			continue
		}
		adjusted, err := AdjustPlan(plan, set.Static, req.Regime, req.Policy)
		if err != nil {
			return tickerOutcome{contract: err}
		}
		est := estimateSafe(ctx, req.Confidence, EstimateRequest{
			Ticker:      ticker,
			AsOf:        req.AsOf,
			Adjusted:    adjusted,
			Static:      set.Static,
			Fundamental: set.Fundamental,
		}, e.params.ConfidenceTimeout)
		if !est.Present {
			absentSeen = true
			if req.Confidence != nil && est.AbsentReason != absentDisabled {
				planWarns = append(planWarns, Warning{
					Ticker: ticker, Stage: "confidence", Code: "estimate_absent", Message: est.AbsentReason,
				})
			}
		}
		scored = append(scored, ScoredPlan{Adjusted: adjusted, Confidence: est})
	}
	if len(scored) == 0 {
		return tickerOutcome{
			skipped:  &SkippedTicker{Ticker: ticker, Code: "all_plans_rejected", Reason: "全部候选被拒绝"},
			warnings: append(planWarns, Warning{Ticker: ticker, Stage: "generate", Code: "all_plans_rejected", Message: "全部候选被拒绝"}),
		}
	}

	if err := state.advance(StageScored); err != nil {
		return tickerOutcome{contract: err}
	}
	winner, dropped, ok := SelectPlan(scored, req.Policy.Signal)
	if !ok {
		return tickerOutcome{contract: Contractf("select", "%s 无计划可选", ticker)}
	}
	if e.params.LogDroppedPlans {
		for _, d := range dropped {
			planWarns = append(planWarns, Warning{
				Ticker: ticker, Stage: "select", Code: "plan_dropped",
				Message: fmt.Sprintf("%s composite=%.4f", d.Adjusted.Plan.Args.Setup, d.Composite),
			})
		}
	}

	if err := state.advance(StageDecided); err != nil {
		return tickerOutcome{contract: err}
	}
	core, err := Resolve(winner, req.Policy, req.Regime)
	if err != nil {
		return tickerOutcome{contract: err}
	}
	return tickerOutcome{
		decision:  &core,
		composite: winner.Composite,
		warnings:  planWarns,
		absent:    absentSeen,
	}
}

// rankDecisions 全局排名：综合分降序，平分按代码升序，名次从 1 起。
func rankDecisions(decisions []DecisionCore, composites []float64) {
	idx := make([]int, len(decisions))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if composites[idx[a]] != composites[idx[b]] {
			return composites[idx[a]] > composites[idx[b]]
		}
		return decisions[idx[a]].Ticker < decisions[idx[b]].Ticker
	})
	ranked := make([]DecisionCore, len(decisions))
	for pos, i := range idx {
		ranked[pos] = decisions[i]
		ranked[pos].Rank = pos + 1
	}
	copy(decisions, ranked)
}

// applyConcurrencyCap 把排名靠后的买入信号压成 NO，
// 保证一批最多产生 maxPositions 个建仓指令。返回压平条数。
func applyConcurrencyCap(decisions []DecisionCore, maxPositions int) int {
	if maxPositions <= 0 {
		return 0
	}
	buys, flipped := 0, 0
	for i := range decisions {
		d := &decisions[i]
		if d.BuySignal != SignalYes && d.BuySignal != SignalYesHalf {
			continue
		}
		buys++
		if buys <= maxPositions {
			continue
		}
		d.BuySignal = SignalNo
		d.PositionSize = 0
		d.MaxLoss = 0
		d.Warnings = append(d.Warnings, reasonConcurrencyCap)
		flipped++
	}
	return flipped
}
