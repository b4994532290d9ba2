package config

import "strings"

// Config 是决策引擎的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Engine     EngineConfig     `toml:"engine"`
	Data       DataConfig       `toml:"data"`
	Markets    []MarketConfig   `toml:"markets"`
	Policy     PolicyConfig     `toml:"policy"`
	Confidence ConfidenceConfig `toml:"confidence"`
	Store      StoreConfig      `toml:"store"`
	Report     ReportConfig     `toml:"report"`
	Notify     NotifyConfig     `toml:"notify"`
	HTTP       HTTPConfig       `toml:"http"`
}

type AppConfig struct {
	Env            string `toml:"env"`
	LogLevel       string `toml:"log_level"`
	LogPath        string `toml:"log_path"`
	ModelTracePath string `toml:"model_trace_path"`
}

// EngineConfig 控制候选提取与打分的可调参数。
type EngineConfig struct {
	Workers         int            `toml:"workers"`
	MaxCandidates   int            `toml:"max_candidates"`
	LogDroppedPlans bool           `toml:"log_dropped_plans"`
	Score           ScoreWeights   `toml:"score"`
	Breakout        BreakoutConfig `toml:"breakout"`
	Pullback        PullbackConfig `toml:"pullback"`
	Regime          RegimeConfig   `toml:"regime"`
}

// RegimeConfig 是基准指数波动分档的年化边界。
type RegimeConfig struct {
	VolLowBelow  float64 `toml:"vol_low_below"`
	VolHighAbove float64 `toml:"vol_high_above"`
}

// ScoreWeights 是 plan_score 合成权重，载入后会归一化。
type ScoreWeights struct {
	Strength float64 `toml:"strength"`
	Volume   float64 `toml:"volume"`
	Trend    float64 `toml:"trend"`
}

type BreakoutConfig struct {
	MinVolumeRatio float64 `toml:"min_volume_ratio"`
	// ArmWithin 控制收盘价距 20 日高点多近时视为待突破。
	ArmWithin float64 `toml:"arm_within"`
}

type PullbackConfig struct {
	RSIMin  float64 `toml:"rsi_min"`
	RSIMax  float64 `toml:"rsi_max"`
	ATRBand float64 `toml:"atr_band"`
}

type DataConfig struct {
	Sources []DataSource `toml:"sources"`
	// CachePath 为空时禁用本地行情缓存。
	CachePath string `toml:"cache_path"`
}

type DataSource struct {
	Name           string      `toml:"name"`
	Enabled        bool        `toml:"enabled"`
	RESTBaseURL    string      `toml:"rest_base_url"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Proxy          ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

// MarketConfig 描述一个可运行的市场（JP/US/CRYPTO）。
type MarketConfig struct {
	ID               string `toml:"id"`
	Enabled          bool   `toml:"enabled"`
	Source           string `toml:"source"`
	Benchmark        string `toml:"benchmark"`
	UniverseFile     string `toml:"universe_file"`
	FundamentalsFile string `toml:"fundamentals_file"`
	LookbackDays     int    `toml:"lookback_days"`
	Schedule         string `toml:"schedule"`
	Timezone         string `toml:"timezone"`
	// SkipWeekends 使用指针以区分"显式 false"与"沿用市场缺省值"。
	SkipWeekends *bool `toml:"skip_weekends"`
}

// ShouldSkipWeekends 返回调度是否跳过周末，未配置时按市场类型取默认。
func (m MarketConfig) ShouldSkipWeekends() bool {
	if m.SkipWeekends != nil {
		return *m.SkipWeekends
	}
	return NormalizeMarketID(m.ID) != "CRYPTO"
}

type PolicyConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// ConfidenceConfig 描述置信度模型边车的访问方式。
type ConfidenceConfig struct {
	Provider       string            `toml:"provider"` // "none" | "http"
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Headers        map[string]string `toml:"headers"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Trace          bool              `toml:"trace"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type ReportConfig struct {
	OutDir         string `toml:"out_dir"`
	IncludeSkipped bool   `toml:"include_skipped"`
	TopN           int    `toml:"top_n"`
	Charts         bool   `toml:"charts"`
	ChartDir       string `toml:"chart_dir"`
	PNGSnapshots   bool   `toml:"png_snapshots"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Market 按规范化后的 ID 查找市场配置。
func (c *Config) Market(id string) (MarketConfig, bool) {
	want := NormalizeMarketID(id)
	if want == "" {
		return MarketConfig{}, false
	}
	for _, m := range c.Markets {
		if NormalizeMarketID(m.ID) == want {
			return m, true
		}
	}
	return MarketConfig{}, false
}

// EnabledMarkets 返回启用的市场，保持配置文件顺序。
func (c *Config) EnabledMarkets() []MarketConfig {
	out := make([]MarketConfig, 0, len(c.Markets))
	for _, m := range c.Markets {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// ResolveSource 按名称查找已启用的数据源。
func (d DataConfig) ResolveSource(name string) (DataSource, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, src := range d.Sources {
		if !src.Enabled {
			continue
		}
		if strings.ToLower(strings.TrimSpace(src.Name)) == want {
			return src, true
		}
	}
	return DataSource{}, false
}

// NormalizeMarketID normalizes market aliases to canonical values.
// Allowed: JP, US, CRYPTO.
func NormalizeMarketID(id string) string {
	switch strings.ToUpper(strings.TrimSpace(id)) {
	case "JP", "JPX", "TSE", "TOKYO":
		return "JP"
	case "US", "NYSE", "NASDAQ":
		return "US"
	case "CRYPTO", "CX", "COIN":
		return "CRYPTO"
	default:
		return ""
	}
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
