package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	// 市场时区调度不依赖宿主机的 zoneinfo。
	_ "time/tzdata"

	"github.com/satter0827/market-decision-engine/internal/app"
	mdcfg "github.com/satter0827/market-decision-engine/internal/config"
	"github.com/satter0827/market-decision-engine/internal/logger"
)

func main() {
	var (
		cfgPath  = flag.String("config", defaultConfigPath(), "配置文件路径（也可用环境变量 MDENGINE_CONFIG）")
		mode     = flag.String("mode", "once", "运行模式: once | daemon | replay | show-config")
		marketID = flag.String("market", "", "市场 (JP/US/CRYPTO)，once/replay 模式使用；为空取第一个启用市场")
		asOf     = flag.String("asof", "", "批次交易日 YYYY-MM-DD，once 模式使用；为空取基准最新收盘日")
		from     = flag.String("from", "", "重放起始日 YYYY-MM-DD")
		to       = flag.String("to", "", "重放结束日 YYYY-MM-DD")
	)
	flag.Parse()

	cfg, err := mdcfg.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}

	if *mode == "show-config" {
		if err := app.ShowConfig(cfg, os.Stdout); err != nil {
			log.Fatalf("输出配置失败: %v", err)
		}
		return
	}

	logCloser, err := logger.Setup(cfg.App.LogLevel, cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	if cfg.Confidence.Trace {
		traceFile, err := setupModelTrace(cfg.App.ModelTracePath)
		if err != nil {
			log.Fatalf("初始化模型追踪日志失败: %v", err)
		}
		if traceFile != nil {
			defer traceFile.Close()
		}
	}
	logger.Infof("✓ 配置加载成功（环境=%s，模式=%s）", cfg.App.Env, *mode)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "once":
		err = application.RunOnce(ctx, *marketID, *asOf)
	case "daemon":
		err = application.RunDaemon(ctx)
	case "replay":
		err = application.Replay(ctx, *marketID, *from, *to)
	default:
		log.Fatalf("未知模式: %s（可选 once | daemon | replay | show-config）", *mode)
	}
	if err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("MDENGINE_CONFIG")); p != "" {
		return p
	}
	return "configs/config.toml"
}

// setupModelTrace 打开置信度请求/响应的审计日志文件。
func setupModelTrace(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetModelTraceWriter(f)
	return f, nil
}
