package app

import (
	"fmt"
	"strings"
)

type StartupSummary struct {
	Env           string
	Markets       []MarketSummary
	PolicyPath    string
	PolicyVersion int64
	StorePath     string
	ReportDir     string
	HTTPAddr      string
	Notifier      string
	Confidence    string
}

type MarketSummary struct {
	ID        string
	Symbols   []string
	Source    string
	Benchmark string
	Schedule  string
	Timezone  string
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf("[运行环境 (ENVIRONMENT)] env=%s\n", s.Env)
	fmt.Println()

	fmt.Println("[市场 (MARKETS)]")
	if len(s.Markets) == 0 {
		fmt.Println("  (无)")
	}
	for _, m := range s.Markets {
		fmt.Printf("  > %s (source=%s benchmark=%s schedule=%s %s)\n",
			m.ID, m.Source, m.Benchmark, m.Schedule, m.Timezone)
		fmt.Printf("    标的池 (%d): %s\n", len(m.Symbols), formatList(m.Symbols))
	}
	fmt.Println()

	fmt.Println("[策略与存储 (POLICY & STORAGE)]")
	fmt.Printf("  策略文件: %s (version=%d)\n", orDash(s.PolicyPath), s.PolicyVersion)
	fmt.Printf("  运行存储: %s\n", orDash(s.StorePath))
	fmt.Printf("  报告目录: %s\n", orDash(s.ReportDir))
	fmt.Println()

	fmt.Println("[协作方 (COLLABORATORS)]")
	fmt.Printf("  置信度: %s\n", orDash(s.Confidence))
	fmt.Printf("  通知: %s\n", orDash(s.Notifier))
	if s.HTTPAddr != "" {
		fmt.Printf("  HTTP 查询: %s\n", s.HTTPAddr)
	}
	fmt.Println(strings.Repeat("=", 80))
}

func buildStartupSummary(a *App) *StartupSummary {
	s := &StartupSummary{
		Env:           a.cfg.App.Env,
		PolicyPath:    a.cfg.Policy.Path,
		PolicyVersion: a.registry.Version(),
		StorePath:     a.cfg.Store.Path,
		ReportDir:     a.cfg.Report.OutDir,
		Notifier:      "noop",
		Confidence:    "none",
	}
	if a.cfg.HTTP.Enabled {
		s.HTTPAddr = a.cfg.HTTP.Addr
	}
	if a.cfg.Notify.Telegram.Enabled {
		s.Notifier = "telegram"
	}
	if a.provider != nil {
		s.Confidence = a.provider.Name()
	}
	for _, unit := range a.units {
		s.Markets = append(s.Markets, MarketSummary{
			ID:        unit.id,
			Symbols:   append([]string(nil), unit.symbols...),
			Source:    unit.source.Name(),
			Benchmark: unit.cfg.Benchmark,
			Schedule:  unit.cfg.Schedule,
			Timezone:  unit.cfg.Timezone,
		})
	}
	return s
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
