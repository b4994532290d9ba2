package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satter0827/market-decision-engine/internal/decision"
	"github.com/satter0827/market-decision-engine/internal/feature"
	"github.com/satter0827/market-decision-engine/internal/logger"
	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/regime"
	"github.com/satter0827/market-decision-engine/internal/report"
)

// 中文说明：
// 单市场批跑编排：基准 → 标的行情 → 特征 → 策略快照 → 引擎 → 落库 → 报告 → 通知。
// 协作方故障折叠为降级或标的级告警，批次照常收尾；
// 只有配置缺陷与引擎契约违例才让整个批次失败。

// errNonTradingDay 标记指定交易日没有收盘数据，重放循环据此跳过。
var errNonTradingDay = errors.New("非交易日")

// runSession 执行一次 EOD 批跑。wantAsOf 为空时以基准最新收盘日为批次交易日；
// offline 模式行情只读本地缓存。
func (a *App) runSession(ctx context.Context, unit *marketUnit, wantAsOf string, offline bool) error {
	runID := uuid.NewString()
	started := time.Now()

	var (
		degraded []string
		warnings []decision.Warning
	)

	benchBars, benchErr := a.fetchBars(ctx, unit, unit.cfg.Benchmark, wantAsOf, offline)
	benchAsOf := ""
	if benchErr == nil {
		if last, ok := market.Candles(benchBars).Last(); ok {
			benchAsOf = last.DateKey()
		}
	}

	asOf := strings.TrimSpace(wantAsOf)
	if asOf == "" {
		if benchAsOf == "" {
			return fmt.Errorf("市场 %s 无法确定 as_of：基准 %s 无可用日线: %v", unit.id, unit.cfg.Benchmark, benchErr)
		}
		asOf = benchAsOf
	}
	if offline && benchAsOf != asOf {
		return errNonTradingDay
	}
	logger.Infof("市场 %s 批跑开始: run_id=%s as_of=%s universe=%d offline=%v",
		unit.id, runID, asOf, len(unit.symbols), offline)

	state := regime.Fallback(unit.cfg.Benchmark, asOf)
	switch {
	case benchErr != nil:
		degraded = append(degraded, "regime_fallback")
		logger.Warnf("市场 %s 基准 %s 拉取失败，市况回退保守档: %v", unit.id, unit.cfg.Benchmark, benchErr)
	case benchAsOf != asOf:
		degraded = append(degraded, "regime_fallback")
		logger.Warnf("市场 %s 基准 %s 最新收盘 %s 落后于批次 %s，市况回退保守档",
			unit.id, unit.cfg.Benchmark, benchAsOf, asOf)
	default:
		detected, err := regime.Detect(unit.cfg.Benchmark, benchBars, a.regimeTh)
		if err != nil {
			degraded = append(degraded, "regime_fallback")
			logger.Warnf("市场 %s 市况检测失败，回退保守档: %v", unit.id, err)
		} else {
			state = detected
		}
	}

	fundamentals, err := feature.LoadFundamentals(unit.id, unit.cfg.FundamentalsFile, asOf)
	if err != nil {
		degraded = append(degraded, "fundamentals_unavailable")
		logger.Warnf("市场 %s 基本面加载失败，相关特征按缺席处理: %v", unit.id, err)
		fundamentals = map[string]*feature.Bundle{}
	}

	// 标的行情按清单顺序串行拉取，免费数据源不经起并发轰炸；
	// 并发都留给后面的引擎阶段。
	features := make(map[string]feature.Set, len(unit.entries))
	bars := make(map[string][]market.Candle, len(unit.entries))
	for _, entry := range unit.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		series, err := a.fetchBars(ctx, unit, entry.Symbol, asOf, offline)
		if err != nil {
			warnings = append(warnings, decision.Warning{
				Ticker: entry.Symbol, Stage: "data", Code: "fetch_failed", Message: err.Error(),
			})
			continue
		}
		daily, err := feature.BuildDaily(entry.Symbol, series)
		if err != nil {
			warnings = append(warnings, decision.Warning{
				Ticker: entry.Symbol, Stage: "feature", Code: "daily_defect", Message: err.Error(),
			})
			continue
		}
		set := feature.Set{Daily: daily, Static: feature.BuildStatic(entry, series)}
		if fb, ok := fundamentals[entry.Symbol]; ok {
			set.Fundamental = fb
		}
		features[entry.Symbol] = set
		bars[entry.Symbol] = series
	}

	snap, ok := a.registry.Snapshot(unit.id)
	if !ok {
		return fmt.Errorf("市场 %s 没有可用策略快照", unit.id)
	}

	res, err := a.engine.Run(ctx, decision.RunRequest{
		RunID:         runID,
		Market:        unit.id,
		AsOf:          asOf,
		Universe:      unit.symbols,
		Features:      features,
		Policy:        snap,
		Regime:        state,
		Confidence:    a.provider,
		PriorDegraded: degraded,
		PriorWarnings: warnings,
	})
	if err != nil {
		return fmt.Errorf("市场 %s 批跑失败: %w", unit.id, err)
	}

	if a.runs != nil {
		if err := a.runs.SaveRun(ctx, res); err != nil {
			res.Meta.Degraded = true
			res.Meta.DegradedReasons = append(res.Meta.DegradedReasons, "store_unavailable")
			logger.Errorf("市场 %s 落库失败，报告照常产出: %v", unit.id, err)
		}
	}

	a.publish(ctx, unit, res, bars)
	logger.Infof("市场 %s 批次 %s 收尾，总耗时 %s", unit.id, asOf, time.Since(started).Round(time.Millisecond))
	return nil
}

// publish 产出报告文件、图表与通知。任何一路失败只记错误，不影响批次结果。
func (a *App) publish(ctx context.Context, unit *marketUnit, res decision.RunResult, bars map[string][]market.Candle) {
	rc := a.cfg.Report
	now := time.Now().UTC()
	rep := report.Build(res, report.Options{IncludeSkipped: rc.IncludeSkipped, TopN: rc.TopN}, now)

	if path, err := report.WriteJSON(rep, rc.OutDir); err != nil {
		logger.Errorf("市场 %s 报告写出失败: %v", unit.id, err)
	} else {
		logger.Infof("✓ 报告已写出: %s", path)
	}

	if rc.Charts {
		artifacts, warns := report.WriteCharts(ctx, res, bars, rc.ChartDir, rc.PNGSnapshots)
		for _, w := range warns {
			logger.Warnf("市场 %s 图表: %s", unit.id, w)
		}
		if len(artifacts) > 0 {
			logger.Infof("✓ 已生成 %d 张决策图表", len(artifacts))
		}
	}

	msg := report.BuildMessage(rep, rc.TopN, now)
	if err := a.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Errorf("市场 %s 通知发送失败: %v", unit.id, err)
	}
}

// fetchBars 统一行情入口。在线模式走数据源（含缓存写穿与故障回退），
// 离线模式只读缓存并以 through 为日期上界。
func (a *App) fetchBars(ctx context.Context, unit *marketUnit, symbol, through string, offline bool) ([]market.Candle, error) {
	if offline {
		series, err := a.cache.GetThrough(ctx, symbol, through, unit.cfg.LookbackDays)
		if err != nil {
			return nil, err
		}
		if len(series) == 0 {
			return nil, fmt.Errorf("缓存中没有 %s 的日线", symbol)
		}
		return series, nil
	}
	return unit.source.FetchDaily(ctx, symbol, unit.cfg.LookbackDays)
}
