package config

import "strings"

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogPath        = "/data/logs/mdengine.log"
	defaultModelTracePath    = "/data/logs/mdengine-model.log"
	defaultEngineWorkers     = 8
	defaultEngineCandidates  = 2
	defaultScoreStrength     = 0.5
	defaultScoreVolume       = 0.2
	defaultScoreTrend        = 0.3
	defaultBreakoutVolRatio  = 1.2
	defaultBreakoutArm       = 0.005
	defaultPullbackRSIMin    = 35
	defaultPullbackRSIMax    = 55
	defaultPullbackATRBand   = 1.0
	defaultRegimeVolLow      = 0.15
	defaultRegimeVolHigh     = 0.30
	defaultBinanceREST       = "https://api.binance.com"
	defaultStooqREST         = "https://stooq.com"
	defaultGateREST          = "https://api.gateio.ws/api/v4"
	defaultSourceTimeout     = 15
	defaultPolicyPath        = "configs/policy.yaml"
	defaultConfidenceTimeout = 5
	defaultStorePath         = "/data/db/decisions.db"
	defaultReportOutDir      = "/data/reports"
	defaultReportTopN        = 10
	defaultHTTPAddr          = ":9985"
)

// marketDefaults 是各市场的内建缺省参数，可被配置覆盖。
var marketDefaults = map[string]MarketConfig{
	"JP": {
		Source:       "stooq",
		Benchmark:    "^NKX",
		LookbackDays: 120,
		Schedule:     "15:30",
		Timezone:     "Asia/Tokyo",
	},
	"US": {
		Source:       "stooq",
		Benchmark:    "^SPX",
		LookbackDays: 200,
		Schedule:     "16:15",
		Timezone:     "America/New_York",
	},
	"CRYPTO": {
		Source:       "binance",
		Benchmark:    "BTCUSDT",
		LookbackDays: 200,
		Schedule:     "00:05",
		Timezone:     "UTC",
	},
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.applyMarketDefaults(keys)
	c.Policy.applyDefaults(keys)
	c.Confidence.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Report.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.model_trace_path", &a.ModelTracePath, defaultModelTracePath),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.workers",
			need:  func() bool { return e.Workers <= 0 },
			apply: func() { e.Workers = defaultEngineWorkers },
		},
		fieldDefault{
			key:   "engine.max_candidates",
			need:  func() bool { return e.MaxCandidates <= 0 },
			apply: func() { e.MaxCandidates = defaultEngineCandidates },
		},
		fieldDefault{
			key:   "engine.score.strength",
			need:  func() bool { return e.Score.Strength <= 0 },
			apply: func() { e.Score.Strength = defaultScoreStrength },
		},
		fieldDefault{
			key:   "engine.score.volume",
			need:  func() bool { return e.Score.Volume <= 0 },
			apply: func() { e.Score.Volume = defaultScoreVolume },
		},
		fieldDefault{
			key:   "engine.score.trend",
			need:  func() bool { return e.Score.Trend <= 0 },
			apply: func() { e.Score.Trend = defaultScoreTrend },
		},
		fieldDefault{
			key:   "engine.breakout.min_volume_ratio",
			need:  func() bool { return e.Breakout.MinVolumeRatio <= 0 },
			apply: func() { e.Breakout.MinVolumeRatio = defaultBreakoutVolRatio },
		},
		fieldDefault{
			key:   "engine.breakout.arm_within",
			need:  func() bool { return e.Breakout.ArmWithin <= 0 },
			apply: func() { e.Breakout.ArmWithin = defaultBreakoutArm },
		},
		fieldDefault{
			key:   "engine.pullback.rsi_min",
			need:  func() bool { return e.Pullback.RSIMin <= 0 },
			apply: func() { e.Pullback.RSIMin = defaultPullbackRSIMin },
		},
		fieldDefault{
			key:   "engine.pullback.rsi_max",
			need:  func() bool { return e.Pullback.RSIMax <= 0 },
			apply: func() { e.Pullback.RSIMax = defaultPullbackRSIMax },
		},
		fieldDefault{
			key:   "engine.pullback.atr_band",
			need:  func() bool { return e.Pullback.ATRBand <= 0 },
			apply: func() { e.Pullback.ATRBand = defaultPullbackATRBand },
		},
		fieldDefault{
			key:   "engine.regime.vol_low_below",
			need:  func() bool { return e.Regime.VolLowBelow <= 0 },
			apply: func() { e.Regime.VolLowBelow = defaultRegimeVolLow },
		},
		fieldDefault{
			key:   "engine.regime.vol_high_above",
			need:  func() bool { return e.Regime.VolHighAbove <= 0 },
			apply: func() { e.Regime.VolHighAbove = defaultRegimeVolHigh },
		},
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	if len(d.Sources) == 0 {
		d.Sources = []DataSource{
			{Name: "stooq", Enabled: true, RESTBaseURL: defaultStooqREST},
			{Name: "binance", Enabled: true, RESTBaseURL: defaultBinanceREST},
		}
	}
	for i := range d.Sources {
		src := &d.Sources[i]
		src.Proxy.normalize()
		src.Name = strings.ToLower(strings.TrimSpace(src.Name))
		if src.RESTBaseURL == "" {
			switch src.Name {
			case "binance":
				src.RESTBaseURL = defaultBinanceREST
			case "stooq":
				src.RESTBaseURL = defaultStooqREST
			case "gate":
				src.RESTBaseURL = defaultGateREST
			}
		}
		if src.TimeoutSeconds <= 0 {
			src.TimeoutSeconds = defaultSourceTimeout
		}
	}
}

func (c *Config) applyMarketDefaults(keys keySet) {
	if len(c.Markets) == 0 {
		jp := marketDefaults["JP"]
		jp.ID = "JP"
		jp.Enabled = true
		c.Markets = []MarketConfig{jp}
		return
	}
	// markets 是列表，keySet 无法定位到单个条目，按零值回填
	for i := range c.Markets {
		m := &c.Markets[i]
		id := NormalizeMarketID(m.ID)
		if id == "" {
			continue // validate 阶段报错
		}
		m.ID = id
		def, ok := marketDefaults[id]
		if !ok {
			continue
		}
		if strings.TrimSpace(m.Source) == "" {
			m.Source = def.Source
		}
		if strings.TrimSpace(m.Benchmark) == "" {
			m.Benchmark = def.Benchmark
		}
		if m.LookbackDays <= 0 {
			m.LookbackDays = def.LookbackDays
		}
		if strings.TrimSpace(m.Schedule) == "" {
			m.Schedule = def.Schedule
		}
		if strings.TrimSpace(m.Timezone) == "" {
			m.Timezone = def.Timezone
		}
	}
}

func (p *PolicyConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("policy.path", &p.Path, defaultPolicyPath),
		boolFieldDefault("policy.watch", &p.Watch, true),
	)
}

func (c *ConfidenceConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("confidence.provider", &c.Provider, "none"),
		fieldDefault{
			key:   "confidence.timeout_seconds",
			need:  func() bool { return c.TimeoutSeconds <= 0 },
			apply: func() { c.TimeoutSeconds = defaultConfidenceTimeout },
		},
	)
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.out_dir", &r.OutDir, defaultReportOutDir),
		fieldDefault{
			key:   "report.top_n",
			need:  func() bool { return r.TopN <= 0 },
			apply: func() { r.TopN = defaultReportTopN },
		},
	)
	if strings.TrimSpace(r.ChartDir) == "" {
		r.ChartDir = r.OutDir
	}
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
