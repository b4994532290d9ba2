package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/satter0827/market-decision-engine/internal/decision"
)

// 中文说明：
// 报告层只做表现：把批跑结果原样包进 Report 并落盘为 JSON。
// 短总评由模板生成，复述已有数字，不产生新数字、不改写决策。

type SummarySource string

const (
	SummaryTemplate SummarySource = "TEMPLATE"
	SummaryLLM      SummarySource = "LLM"
	SummaryHuman    SummarySource = "HUMAN"
)

// ShortSummary 一次批跑的简短总评。
type ShortSummary struct {
	Source   SummarySource `json:"source"`
	Text     string        `json:"text"`
	Warnings []string      `json:"warnings,omitempty"`
}

type Format string

const (
	FormatJSON     Format = "JSON"
	FormatMarkdown Format = "MARKDOWN"
)

// Report 对外输出的报告契约，决策数值原样内嵌。
type Report struct {
	Market       string             `json:"market"`
	AsOf         string             `json:"as_of"`
	RunID        string             `json:"run_id"`
	DecisionPack decision.RunResult `json:"decision_pack"`
	ShortSummary *ShortSummary      `json:"short_summary,omitempty"`
	Format       Format             `json:"format"`
	GeneratedAt  string             `json:"generated_at"`
}

// Options 控制报告内容裁剪。
type Options struct {
	IncludeSkipped bool
	TopN           int
}

// Build 由批跑结果构造报告。generatedAt 是报告里唯一的挂钟时间。
func Build(res decision.RunResult, opts Options, generatedAt time.Time) Report {
	if !opts.IncludeSkipped {
		res.Skipped = nil
	}
	sum := &ShortSummary{
		Source: SummaryTemplate,
		Text:   summaryText(res.Meta),
	}
	if res.Meta.Degraded {
		sum.Warnings = degradeWarnings(res.Meta)
	}
	return Report{
		Market:       res.Meta.Market,
		AsOf:         res.Meta.AsOf,
		RunID:        res.Meta.RunID,
		DecisionPack: res,
		ShortSummary: sum,
		Format:       FormatJSON,
		GeneratedAt:  generatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteJSON 把报告写为 <out_dir>/<market>_<asof>_<runid>.json，返回落盘路径。
func WriteJSON(rep Report, outDir string) (string, error) {
	outDir = strings.TrimSpace(outDir)
	if outDir == "" {
		return "", fmt.Errorf("report out_dir 不能为空")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, FileName(rep.Market, rep.AsOf, rep.RunID))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FileName 报告文件名，市场段转小写。
func FileName(market, asOf, runID string) string {
	return fmt.Sprintf("%s_%s_%s.json", strings.ToLower(market), asOf, runID)
}

func summaryText(meta decision.RunMeta) string {
	text := fmt.Sprintf("%s %s 批跑完成：处理 %d/%d，YES %d，YES_HALF %d，NO %d，跳过 %d，无候选 %d。",
		meta.Market, meta.AsOf, meta.Processed, meta.UniverseSize,
		meta.Yes, meta.YesHalf, meta.No, meta.Skipped, meta.NoCandidates)
	if meta.Degraded {
		text += "本次运行处于降级模式，部分环节被跳过或缩减。"
	}
	return text
}

func degradeWarnings(meta decision.RunMeta) []string {
	out := make([]string, 0, len(meta.DegradedReasons))
	for _, r := range meta.DegradedReasons {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		out = append(out, "运行处于降级模式")
	}
	return out
}
