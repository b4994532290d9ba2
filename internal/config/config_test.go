package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfigFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写配置文件失败: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.toml", `
[app]
env = "prod"

[[markets]]
id = "jp"
enabled = true
`)

	cfg, err := Load(path)
	assert.NoError(t, err)
	if cfg == nil {
		t.Fatalf("配置为空")
	}

	t.Run("App Defaults", func(t *testing.T) {
		assert.Equal(t, "prod", cfg.App.Env)
		assert.Equal(t, "info", cfg.App.LogLevel)
		assert.NotEmpty(t, cfg.App.LogPath)
	})

	t.Run("Engine Defaults", func(t *testing.T) {
		assert.Equal(t, 8, cfg.Engine.Workers)
		assert.Equal(t, 2, cfg.Engine.MaxCandidates)
		assert.InDelta(t, 0.5, cfg.Engine.Score.Strength, 1e-9)
		assert.InDelta(t, 1.2, cfg.Engine.Breakout.MinVolumeRatio, 1e-9)
		assert.InDelta(t, 0.15, cfg.Engine.Regime.VolLowBelow, 1e-9)
	})

	t.Run("Market Defaults", func(t *testing.T) {
		if !assert.Len(t, cfg.Markets, 1) {
			return
		}
		m := cfg.Markets[0]
		assert.Equal(t, "JP", m.ID)
		assert.Equal(t, "stooq", m.Source)
		assert.Equal(t, "^NKX", m.Benchmark)
		assert.Equal(t, 120, m.LookbackDays)
		assert.Equal(t, "15:30", m.Schedule)
		assert.Equal(t, "Asia/Tokyo", m.Timezone)
		assert.True(t, m.ShouldSkipWeekends())
	})

	t.Run("Data Sources Defaults", func(t *testing.T) {
		names := make([]string, 0, len(cfg.Data.Sources))
		for _, s := range cfg.Data.Sources {
			names = append(names, s.Name)
			assert.Equal(t, 15, s.TimeoutSeconds)
			assert.NotEmpty(t, s.RESTBaseURL)
		}
		assert.ElementsMatch(t, []string{"stooq", "binance"}, names)
	})

	t.Run("Collaborator Defaults", func(t *testing.T) {
		assert.Equal(t, "none", cfg.Confidence.Provider)
		assert.Equal(t, 5, cfg.Confidence.TimeoutSeconds)
		assert.Equal(t, "configs/policy.yaml", cfg.Policy.Path)
		assert.True(t, cfg.Policy.Watch)
		assert.NotEmpty(t, cfg.Store.Path)
		assert.Equal(t, 10, cfg.Report.TopN)
		assert.Equal(t, cfg.Report.OutDir, cfg.Report.ChartDir)
	})
}

func TestLoadExplicitValuesSurviveDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.toml", `
[engine]
workers = 4
max_candidates = 1

[engine.breakout]
arm_within = 0.01

[[markets]]
id = "CRYPTO"
enabled = true
lookback_days = 250
`)

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 1, cfg.Engine.MaxCandidates)
	assert.InDelta(t, 0.01, cfg.Engine.Breakout.ArmWithin, 1e-9)
	if assert.Len(t, cfg.Markets, 1) {
		assert.Equal(t, "CRYPTO", cfg.Markets[0].ID)
		assert.Equal(t, "binance", cfg.Markets[0].Source)
		assert.Equal(t, "BTCUSDT", cfg.Markets[0].Benchmark)
		assert.Equal(t, 250, cfg.Markets[0].LookbackDays)
		// 加密市场全年无休，周末不跳过
		assert.False(t, cfg.Markets[0].ShouldSkipWeekends())
	}
}

func TestLoadIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.toml", `
[app]
env = "base"
log_level = "debug"

[engine]
workers = 2
`)
	main := writeConfigFile(t, dir, "config.toml", `
include = ["base.toml"]

[app]
env = "prod"

[[markets]]
id = "US"
enabled = true
`)

	cfg, err := Load(main)
	assert.NoError(t, err)
	// 主文件覆盖 include，未覆盖的键沿用 include 值
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 2, cfg.Engine.Workers)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.toml", `include = ["b.toml"]`)
	writeConfigFile(t, dir, "b.toml", `include = ["a.toml"]`)

	_, err := Load(filepath.Join(dir, "a.toml"))
	assert.ErrorContains(t, err, "cycle")
}

func TestLoadValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "Unknown Market",
			body: "[[markets]]\nid = \"LSE\"\nenabled = true\n",
			want: "unknown id",
		},
		{
			name: "Duplicate Market",
			body: "[[markets]]\nid = \"jp\"\nenabled = true\n\n[[markets]]\nid = \"TSE\"\nenabled = true\n",
			want: "duplicate",
		},
		{
			name: "Lookback Too Short",
			body: "[[markets]]\nid = \"JP\"\nenabled = true\nlookback_days = 30\n",
			want: "lookback_days",
		},
		{
			name: "Bad Schedule",
			body: "[[markets]]\nid = \"JP\"\nenabled = true\nschedule = \"25:99\"\n",
			want: "schedule",
		},
		{
			name: "Workers Out Of Range",
			body: "[engine]\nworkers = 100\n\n[[markets]]\nid = \"JP\"\nenabled = true\n",
			want: "workers",
		},
		{
			name: "Max Candidates Out Of Range",
			body: "[engine]\nmax_candidates = 5\n\n[[markets]]\nid = \"JP\"\nenabled = true\n",
			want: "max_candidates",
		},
		{
			name: "Confidence Without URL",
			body: "[confidence]\nprovider = \"http\"\n\n[[markets]]\nid = \"JP\"\nenabled = true\n",
			want: "api_url",
		},
		{
			name: "Telegram Missing Token",
			body: "[notify.telegram]\nenabled = true\nchat_id = \"42\"\n\n[[markets]]\nid = \"JP\"\nenabled = true\n",
			want: "bot_token",
		},
		{
			name: "Snapshots Without Charts",
			body: "[report]\npng_snapshots = true\n\n[[markets]]\nid = \"JP\"\nenabled = true\n",
			want: "png_snapshots",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfigFile(t, dir, "config.toml", tc.body)
			_, err := Load(path)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestNormalizeMarketID(t *testing.T) {
	assert.Equal(t, "JP", NormalizeMarketID("tse"))
	assert.Equal(t, "JP", NormalizeMarketID(" Tokyo "))
	assert.Equal(t, "US", NormalizeMarketID("nasdaq"))
	assert.Equal(t, "CRYPTO", NormalizeMarketID("coin"))
	assert.Equal(t, "", NormalizeMarketID("LSE"))
}

func TestResolveSource(t *testing.T) {
	d := DataConfig{Sources: []DataSource{
		{Name: "stooq", Enabled: true},
		{Name: "binance", Enabled: false},
	}}
	src, ok := d.ResolveSource("STOOQ")
	assert.True(t, ok)
	assert.Equal(t, "stooq", src.Name)

	_, ok = d.ResolveSource("binance")
	assert.False(t, ok)

	_, ok = d.ResolveSource("kraken")
	assert.False(t, ok)
}

func TestParseWallClock(t *testing.T) {
	d, err := ParseWallClock("15:30")
	assert.NoError(t, err)
	assert.Equal(t, 15*3600+30*60, int(d.Seconds()))

	_, err = ParseWallClock("1530")
	assert.Error(t, err)
	_, err = ParseWallClock("24:00")
	assert.Error(t, err)
}

func TestEnabledMarkets(t *testing.T) {
	c := Config{Markets: []MarketConfig{
		{ID: "JP", Enabled: true},
		{ID: "US", Enabled: false},
		{ID: "CRYPTO", Enabled: true},
	}}
	ids := make([]string, 0, 2)
	for _, m := range c.EnabledMarkets() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"JP", "CRYPTO"}, ids)
}
