package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	mdcfg "github.com/satter0827/market-decision-engine/internal/config"
	"github.com/satter0827/market-decision-engine/internal/decision"
	"github.com/satter0827/market-decision-engine/internal/gateway/binance"
	"github.com/satter0827/market-decision-engine/internal/gateway/confidence"
	"github.com/satter0827/market-decision-engine/internal/gateway/gate"
	"github.com/satter0827/market-decision-engine/internal/gateway/notifier"
	"github.com/satter0827/market-decision-engine/internal/gateway/stooq"
	"github.com/satter0827/market-decision-engine/internal/logger"
	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/policy"
	"github.com/satter0827/market-decision-engine/internal/regime"
	"github.com/satter0827/market-decision-engine/internal/store"
	httpapi "github.com/satter0827/market-decision-engine/internal/transport/http"
	"github.com/satter0827/market-decision-engine/internal/universe"
)

// AppBuilder 把配置装配成可运行的 App。
// 各依赖通过可注入的构造函数挂接，测试时用 With* 选项替换真实网关。
type AppBuilder struct {
	cfg *mdcfg.Config

	universeFn   func(market, path string) ([]universe.Entry, error)
	sourceFn     func(cfg *mdcfg.Config, mc mdcfg.MarketConfig, cache *market.BarCache) (market.Source, error)
	registryFn   func(pc mdcfg.PolicyConfig, markets []string) (*policy.Registry, error)
	confidenceFn func(cc mdcfg.ConfidenceConfig) (decision.Provider, error)
	runStoreFn   func(path string) (*store.RunStore, error)
	notifierFn   func(nc mdcfg.NotifyConfig) (notifier.TextNotifier, error)

	runStoreOverride *store.RunStore
	notifierOverride notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *mdcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		universeFn:   universe.Load,
		sourceFn:     buildSource,
		registryFn:   buildRegistry,
		confidenceFn: buildConfidence,
		runStoreFn:   store.NewRunStore,
		notifierFn:   buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// marketUnit 绑定一个已启用市场的全部运行件：标的池、数据源与调度参数。
type marketUnit struct {
	cfg     mdcfg.MarketConfig
	id      string
	entries []universe.Entry
	symbols []string
	source  market.Source
	loc     *time.Location
	trigger time.Duration
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	enabled := cfg.EnabledMarkets()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("没有启用任何市场，请检查 markets 配置")
	}

	params := engineParams(cfg.Engine, cfg.Confidence)
	engine, err := decision.NewEngine(params)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 决策引擎就绪: workers=%d max_candidates=%d", params.Workers, params.MaxCandidates)

	ids := make([]string, 0, len(enabled))
	for _, mc := range enabled {
		ids = append(ids, mdcfg.NormalizeMarketID(mc.ID))
	}
	registry, err := b.registryFn(cfg.Policy, ids)
	if err != nil {
		return nil, fmt.Errorf("加载策略注册表失败: %w", err)
	}
	registry.OnChange(func(marketID string, snap policy.Snapshot) {
		logger.Infof("策略热更新生效: market=%s snapshot=%s", marketID, snap.ID)
	})
	logger.Infof("✓ 策略注册表已加载: markets=%v version=%d", ids, registry.Version())

	provider, err := b.confidenceFn(cfg.Confidence)
	if err != nil {
		return nil, fmt.Errorf("初始化置信度提供方失败: %w", err)
	}
	if provider != nil {
		logger.Infof("✓ 置信度提供方: %s", provider.Name())
	} else {
		logger.Infof("置信度未配置，估计按缺席处理")
	}

	var cache *market.BarCache
	if path := strings.TrimSpace(cfg.Data.CachePath); path != "" {
		cache, err = market.NewBarCache(path)
		if err != nil {
			return nil, fmt.Errorf("初始化行情缓存失败: %w", err)
		}
		logger.Infof("✓ 行情缓存: %s", path)
	}

	units := make([]*marketUnit, 0, len(enabled))
	for _, mc := range enabled {
		unit, err := b.buildMarketUnit(cfg, mc, cache)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
		logger.Infof("✓ 市场 %s: %d 个标的 source=%s benchmark=%s schedule=%s (%s)",
			unit.id, len(unit.entries), unit.source.Name(), mc.Benchmark, mc.Schedule, mc.Timezone)
	}

	runs := b.runStoreOverride
	if runs == nil {
		runs, err = b.runStoreFn(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化运行存储失败: %w", err)
		}
		logger.Infof("✓ 运行存储: %s", cfg.Store.Path)
	}

	notify := b.notifierOverride
	if notify == nil {
		notify, err = b.notifierFn(cfg.Notify)
		if err != nil {
			return nil, fmt.Errorf("初始化通知网关失败: %w", err)
		}
	}

	var httpSrv *httpapi.Server
	if cfg.HTTP.Enabled {
		httpSrv, err = httpapi.NewServer(httpapi.Config{
			Addr:      cfg.HTTP.Addr,
			Runs:      runs,
			ReportDir: cfg.Report.OutDir,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 HTTP 查询服务失败: %w", err)
		}
		logger.Infof("✓ HTTP 查询服务: %s", cfg.HTTP.Addr)
	}

	app := &App{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		provider: provider,
		cache:    cache,
		units:    units,
		runs:     runs,
		notify:   notify,
		httpSrv:  httpSrv,
		regimeTh: regime.Thresholds{
			VolLowBelow:  cfg.Engine.Regime.VolLowBelow,
			VolHighAbove: cfg.Engine.Regime.VolHighAbove,
		},
	}
	app.Summary = buildStartupSummary(app)
	return app, nil
}

func (b *AppBuilder) buildMarketUnit(cfg *mdcfg.Config, mc mdcfg.MarketConfig, cache *market.BarCache) (*marketUnit, error) {
	id := mdcfg.NormalizeMarketID(mc.ID)
	entries, err := b.universeFn(id, mc.UniverseFile)
	if err != nil {
		return nil, fmt.Errorf("市场 %s 标的池加载失败: %w", id, err)
	}
	src, err := b.sourceFn(cfg, mc, cache)
	if err != nil {
		return nil, fmt.Errorf("市场 %s 数据源初始化失败: %w", id, err)
	}
	loc, err := time.LoadLocation(mc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("市场 %s 时区 %s 不可用: %w", id, mc.Timezone, err)
	}
	trigger, err := mdcfg.ParseWallClock(mc.Schedule)
	if err != nil {
		return nil, fmt.Errorf("市场 %s 调度时刻非法: %w", id, err)
	}
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}
	return &marketUnit{
		cfg:     mc,
		id:      id,
		entries: entries,
		symbols: symbols,
		source:  src,
		loc:     loc,
		trigger: trigger,
	}, nil
}

// buildSource 按市场配置挑选数据源实现，配置了缓存路径时外面再包一层写穿缓存。
func buildSource(cfg *mdcfg.Config, mc mdcfg.MarketConfig, cache *market.BarCache) (market.Source, error) {
	name := strings.ToLower(strings.TrimSpace(mc.Source))
	ds, ok := cfg.Data.ResolveSource(name)
	if !ok {
		return nil, fmt.Errorf("数据源 %s 未配置或未启用", mc.Source)
	}
	timeout := time.Duration(ds.TimeoutSeconds) * time.Second
	var (
		inner market.Source
		err   error
	)
	switch name {
	case "stooq":
		inner, err = stooq.New(stooq.Config{
			RESTBaseURL:  ds.RESTBaseURL,
			HTTPTimeout:  timeout,
			ProxyEnabled: ds.Proxy.Enabled,
			RESTProxyURL: ds.Proxy.RESTURL,
		})
	case "binance":
		inner, err = binance.New(binance.Config{
			RESTBaseURL:  ds.RESTBaseURL,
			HTTPTimeout:  timeout,
			ProxyEnabled: ds.Proxy.Enabled,
			RESTProxyURL: ds.Proxy.RESTURL,
		})
	case "gate":
		inner, err = gate.New(gate.Config{
			RESTBaseURL:  ds.RESTBaseURL,
			HTTPTimeout:  timeout,
			ProxyEnabled: ds.Proxy.Enabled,
			RESTProxyURL: ds.Proxy.RESTURL,
		})
	default:
		return nil, fmt.Errorf("未知数据源: %s", mc.Source)
	}
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return inner, nil
	}
	return market.NewCachedSource(inner, cache), nil
}

func buildRegistry(pc mdcfg.PolicyConfig, markets []string) (*policy.Registry, error) {
	return policy.NewRegistry(pc.Path, markets, pc.Watch)
}

func buildConfidence(cc mdcfg.ConfidenceConfig) (decision.Provider, error) {
	return confidence.New(confidence.Config{
		Provider: cc.Provider,
		APIURL:   cc.APIURL,
		APIKey:   cc.APIKey,
		Headers:  cc.Headers,
		Timeout:  time.Duration(cc.TimeoutSeconds) * time.Second,
		Trace:    cc.Trace,
	})
}

func buildNotifier(nc mdcfg.NotifyConfig) (notifier.TextNotifier, error) {
	tg := nc.Telegram
	if !tg.Enabled {
		logger.Infof("Telegram 未启用，通知走 Noop")
		return notifier.Noop{}, nil
	}
	client, err := notifier.NewTelegram(tg.BotToken, tg.ChatID)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ Telegram 通知已启用: chat_id=%s", tg.ChatID)
	return client, nil
}

// engineParams 把配置映射到引擎参数。配置加载时已填缺省并校验过范围，
// 这里只做字段搬运。
func engineParams(ec mdcfg.EngineConfig, cc mdcfg.ConfidenceConfig) decision.Params {
	return decision.Params{
		Workers:         ec.Workers,
		MaxCandidates:   ec.MaxCandidates,
		LogDroppedPlans: ec.LogDroppedPlans,
		Score: decision.ScoreWeights{
			Strength: ec.Score.Strength,
			Volume:   ec.Score.Volume,
			Trend:    ec.Score.Trend,
		},
		Breakout: decision.BreakoutParams{
			MinVolumeRatio: ec.Breakout.MinVolumeRatio,
			ArmWithin:      ec.Breakout.ArmWithin,
		},
		Pullback: decision.PullbackParams{
			RSIMin:  ec.Pullback.RSIMin,
			RSIMax:  ec.Pullback.RSIMax,
			ATRBand: ec.Pullback.ATRBand,
		},
		ConfidenceTimeout: time.Duration(cc.TimeoutSeconds) * time.Second,
	}
}

func WithUniverseLoader(fn func(market, path string) ([]universe.Entry, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.universeFn = fn
		}
	}
}

func WithSourceBuilder(fn func(cfg *mdcfg.Config, mc mdcfg.MarketConfig, cache *market.BarCache) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.sourceFn = fn
		}
	}
}

func WithConfidenceBuilder(fn func(cc mdcfg.ConfidenceConfig) (decision.Provider, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.confidenceFn = fn
		}
	}
}

func WithRunStore(runs *store.RunStore) AppBuilderOption {
	return func(b *AppBuilder) {
		if runs != nil {
			b.runStoreOverride = runs
		}
	}
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if n != nil {
			b.notifierOverride = n
		}
	}
}
