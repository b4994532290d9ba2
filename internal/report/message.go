package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/satter0827/market-decision-engine/internal/decision"
	"github.com/satter0827/market-decision-engine/internal/gateway/notifier"
)

const defaultTopN = 10

// BuildMessage 把报告折叠成 Telegram 结构化消息，买入行最多 topN 条。
func BuildMessage(rep Report, topN int, now time.Time) notifier.StructuredMessage {
	meta := rep.DecisionPack.Meta
	if topN <= 0 {
		topN = defaultTopN
	}
	sections := []notifier.MessageSection{{
		Title: "汇总",
		Lines: []string{
			fmt.Sprintf("处理 %d/%d | 跳过 %d | 无候选 %d", meta.Processed, meta.UniverseSize, meta.Skipped, meta.NoCandidates),
			fmt.Sprintf("YES %d | YES_HALF %d | NO %d", meta.Yes, meta.YesHalf, meta.No),
			fmt.Sprintf("闸门 %s | 趋势 %s | 波动 %s", meta.Regime.RiskGate, meta.Regime.Trend, meta.Regime.Volatility),
		},
	}}

	buys := make([]string, 0, topN)
	for _, d := range rep.DecisionPack.Decisions {
		if d.BuySignal == decision.SignalNo {
			continue
		}
		if len(buys) >= topN {
			break
		}
		buys = append(buys, fmt.Sprintf("#%d %s %s entry=%s stop=%s size=%d",
			d.Rank, d.Ticker, d.BuySignal, formatPrice(d.Entry), formatPrice(d.Stop), d.PositionSize))
	}
	if len(buys) > 0 {
		sections = append(sections, notifier.MessageSection{Title: "买入", Lines: buys})
	}
	if meta.Degraded {
		sections = append(sections, notifier.MessageSection{Title: "降级", Lines: degradeWarnings(meta)})
	}

	icon := "📈"
	if meta.Yes+meta.YesHalf == 0 {
		icon = "📋"
	}
	return notifier.StructuredMessage{
		Icon:      icon,
		Title:     fmt.Sprintf("%s %s EOD 决策", meta.Market, meta.AsOf),
		Sections:  sections,
		Footer:    fmt.Sprintf("run_id=%s | policy=%s", meta.RunID, meta.PolicySnapshotID),
		Timestamp: now,
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
