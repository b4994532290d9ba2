package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"

	mdcfg "github.com/satter0827/market-decision-engine/internal/config"
	"github.com/satter0827/market-decision-engine/internal/decision"
	"github.com/satter0827/market-decision-engine/internal/gateway/notifier"
	"github.com/satter0827/market-decision-engine/internal/logger"
	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/policy"
	"github.com/satter0827/market-decision-engine/internal/regime"
	"github.com/satter0827/market-decision-engine/internal/scheduler"
	"github.com/satter0827/market-decision-engine/internal/store"
	httpapi "github.com/satter0827/market-decision-engine/internal/transport/http"
)

// App 负责应用级编排：装配依赖，按模式执行批跑、常驻调度与查询服务。
type App struct {
	cfg      *mdcfg.Config
	engine   *decision.Engine
	registry *policy.Registry
	provider decision.Provider
	cache    *market.BarCache
	units    []*marketUnit
	runs     *store.RunStore
	notify   notifier.TextNotifier
	httpSrv  *httpapi.Server
	regimeTh regime.Thresholds
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *mdcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Close 释放数据源、缓存与存储连接。
func (a *App) Close() {
	if a == nil {
		return
	}
	for _, unit := range a.units {
		if unit.source != nil {
			if err := unit.source.Close(); err != nil {
				logger.Warnf("关闭数据源 %s 失败: %v", unit.id, err)
			}
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Warnf("关闭行情缓存失败: %v", err)
		}
	}
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			logger.Warnf("关闭运行存储失败: %v", err)
		}
	}
}

// RunOnce 对单个市场执行一次 EOD 批跑。market 为空取第一个启用市场，
// asOf 为空以基准指数最新收盘日为批次交易日。
func (a *App) RunOnce(ctx context.Context, marketID, asOf string) error {
	unit, err := a.unitFor(marketID)
	if err != nil {
		return err
	}
	err = a.runSession(ctx, unit, strings.TrimSpace(asOf), false)
	if errors.Is(err, errNonTradingDay) {
		return fmt.Errorf("市场 %s 在 %s 无交易数据", unit.id, asOf)
	}
	return err
}

// RunDaemon 启动常驻模式：每个市场一个 EOD 调度器，外加只读查询服务。
// ctx 取消后各部件退出，Wait 返回。
func (a *App) RunDaemon(ctx context.Context) error {
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	for _, unit := range a.units {
		unit := unit
		sched := scheduler.NewEODScheduler(ctx, "eod-"+strings.ToLower(unit.id), unit.loc, unit.trigger)
		sched.SkipWeekends = unit.cfg.ShouldSkipWeekends()
		if unit.id == "CRYPTO" {
			// 加密市场在 UTC 零点后触发，结算的是前一天的日线。
			sched.SessionLagDays = 1
		}
		group.Go(func() error {
			sched.Start(func(sessionDate string) {
				if err := a.runSession(ctx, unit, sessionDate, false); err != nil {
					logger.Errorf("市场 %s 批跑失败 session=%s: %v", unit.id, sessionDate, err)
				}
			})
			return nil
		})
	}
	return group.Wait()
}

// Replay 按日期区间顺序重放历史批次。行情一律来自本地缓存，
// 不触网；缓存里没有对应交易日数据的日期按非交易日跳过。
func (a *App) Replay(ctx context.Context, marketID, from, to string) error {
	unit, err := a.unitFor(marketID)
	if err != nil {
		return err
	}
	if a.cache == nil {
		return fmt.Errorf("重放需要行情缓存，请配置 data.cache_path")
	}
	start, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(from), time.UTC)
	if err != nil {
		return fmt.Errorf("重放起始日非法: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(to), time.UTC)
	if err != nil {
		return fmt.Errorf("重放结束日非法: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("重放区间非法: from=%s to=%s", from, to)
	}

	ran, skipped := 0, 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if unit.cfg.ShouldSkipWeekends() {
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
		}
		session := day.Format("2006-01-02")
		err := a.runSession(ctx, unit, session, true)
		switch {
		case errors.Is(err, errNonTradingDay):
			skipped++
			logger.Infof("重放跳过 %s %s：缓存无该交易日数据", unit.id, session)
		case err != nil:
			return fmt.Errorf("重放 %s session=%s: %w", unit.id, session, err)
		default:
			ran++
		}
	}
	logger.Infof("重放完成: market=%s 区间=%s..%s 执行=%d 跳过=%d", unit.id, from, to, ran, skipped)
	return nil
}

func (a *App) unitFor(marketID string) (*marketUnit, error) {
	if len(a.units) == 0 {
		return nil, fmt.Errorf("没有已装配的市场")
	}
	if strings.TrimSpace(marketID) == "" {
		return a.units[0], nil
	}
	want := mdcfg.NormalizeMarketID(marketID)
	for _, unit := range a.units {
		if unit.id == want {
			return unit, nil
		}
	}
	return nil, fmt.Errorf("市场 %s 未启用", marketID)
}

// ShowConfig 输出脱敏后的生效配置，密钥一律打码。
func ShowConfig(cfg *mdcfg.Config, w io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	redacted := *cfg
	redacted.Notify.Telegram.BotToken = redactSecret(redacted.Notify.Telegram.BotToken)
	redacted.Confidence.APIKey = redactSecret(redacted.Confidence.APIKey)
	if len(redacted.Confidence.Headers) > 0 {
		headers := make(map[string]string, len(redacted.Confidence.Headers))
		for k := range redacted.Confidence.Headers {
			headers[k] = redactSecret("set")
		}
		redacted.Confidence.Headers = headers
	}
	return toml.NewEncoder(w).Encode(redacted)
}

func redactSecret(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	return "******"
}
