package config

import (
	"fmt"
	"strings"
	"time"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.validateMarkets(); err != nil {
		return err
	}
	if err := c.Policy.validate(); err != nil {
		return err
	}
	if err := c.Confidence.validate(); err != nil {
		return err
	}
	if err := c.Report.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.HTTP.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.Workers < 1 || e.Workers > 64 {
		return fmt.Errorf("engine.workers must be in [1,64]")
	}
	if e.MaxCandidates < 1 || e.MaxCandidates > 3 {
		return fmt.Errorf("engine.max_candidates must be in [1,3]")
	}
	if e.Score.Strength <= 0 || e.Score.Volume <= 0 || e.Score.Trend <= 0 {
		return fmt.Errorf("engine.score weights must all be > 0")
	}
	if e.Breakout.MinVolumeRatio <= 0 {
		return fmt.Errorf("engine.breakout.min_volume_ratio must be > 0")
	}
	if e.Breakout.ArmWithin <= 0 || e.Breakout.ArmWithin > 0.05 {
		return fmt.Errorf("engine.breakout.arm_within must be in (0,0.05]")
	}
	if e.Pullback.RSIMin <= 0 || e.Pullback.RSIMax <= e.Pullback.RSIMin || e.Pullback.RSIMax >= 100 {
		return fmt.Errorf("engine.pullback rsi bounds invalid: min=%v max=%v", e.Pullback.RSIMin, e.Pullback.RSIMax)
	}
	if e.Pullback.ATRBand <= 0 {
		return fmt.Errorf("engine.pullback.atr_band must be > 0")
	}
	if e.Regime.VolLowBelow <= 0 || e.Regime.VolHighAbove <= e.Regime.VolLowBelow {
		return fmt.Errorf("engine.regime vol bounds invalid: low=%v high=%v", e.Regime.VolLowBelow, e.Regime.VolHighAbove)
	}
	return nil
}

func (d *DataConfig) validate() error {
	if len(d.Sources) == 0 {
		return fmt.Errorf("data.sources requires at least one source")
	}
	enabled := 0
	for _, src := range d.Sources {
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if name != "binance" && name != "stooq" && name != "gate" {
			return fmt.Errorf("data source %q not supported (binance|stooq|gate)", src.Name)
		}
		if !src.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(src.RESTBaseURL) == "" {
			return fmt.Errorf("data source %s missing rest_base_url", src.Name)
		}
		if src.Proxy.Enabled && src.Proxy.RESTURL == "" {
			return fmt.Errorf("data source %s has proxy enabled but no rest_url", src.Name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("data.sources requires at least one enabled source")
	}
	return nil
}

func (c *Config) validateMarkets() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("markets requires at least one market")
	}
	seen := make(map[string]bool, len(c.Markets))
	enabled := 0
	for _, m := range c.Markets {
		id := NormalizeMarketID(m.ID)
		if id == "" {
			return fmt.Errorf("markets contains unknown id %q (JP|US|CRYPTO)", m.ID)
		}
		if seen[id] {
			return fmt.Errorf("markets contains duplicate id %s", id)
		}
		seen[id] = true
		if !m.Enabled {
			continue
		}
		enabled++
		if _, ok := c.Data.ResolveSource(m.Source); !ok {
			return fmt.Errorf("markets.%s references unknown or disabled source %q", id, m.Source)
		}
		if strings.TrimSpace(m.Benchmark) == "" {
			return fmt.Errorf("markets.%s missing benchmark", id)
		}
		if m.LookbackDays < 80 {
			return fmt.Errorf("markets.%s lookback_days must be >= 80 (indicator warmup)", id)
		}
		if _, err := ParseWallClock(m.Schedule); err != nil {
			return fmt.Errorf("markets.%s schedule: %w", id, err)
		}
		if _, err := time.LoadLocation(m.Timezone); err != nil {
			return fmt.Errorf("markets.%s timezone %q: %w", id, m.Timezone, err)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("markets requires at least one enabled market")
	}
	return nil
}

func (p *PolicyConfig) validate() error {
	if strings.TrimSpace(p.Path) == "" {
		return fmt.Errorf("policy.path cannot be empty")
	}
	return nil
}

func (c *ConfidenceConfig) validate() error {
	switch c.Provider {
	case "none":
	case "http":
		if strings.TrimSpace(c.APIURL) == "" {
			return fmt.Errorf("confidence.api_url required when provider=http")
		}
		if c.TimeoutSeconds < 1 || c.TimeoutSeconds > 120 {
			return fmt.Errorf("confidence.timeout_seconds must be in [1,120]")
		}
	default:
		return fmt.Errorf("confidence.provider %q not supported (none|http)", c.Provider)
	}
	return nil
}

func (r *ReportConfig) validate() error {
	if strings.TrimSpace(r.OutDir) == "" {
		return fmt.Errorf("report.out_dir cannot be empty")
	}
	if r.TopN < 1 || r.TopN > 50 {
		return fmt.Errorf("report.top_n must be in [1,50]")
	}
	if r.PNGSnapshots && !r.Charts {
		return fmt.Errorf("report.png_snapshots requires report.charts")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (h *HTTPConfig) validate() error {
	if h.Enabled && strings.TrimSpace(h.Addr) == "" {
		return fmt.Errorf("http.addr cannot be empty when http.enabled")
	}
	return nil
}

// ParseWallClock 解析 "HH:MM" 形式的本地触发时刻。
func ParseWallClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("schedule %q must be HH:MM", s)
	}
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("schedule %q must be HH:MM", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("schedule %q out of range", s)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
