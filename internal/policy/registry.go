package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/satter0827/market-decision-engine/internal/logger"
)

// ChangeListener 在策略热更新生效后触发。
type ChangeListener func(market string, snap Snapshot)

// Registry 管理各市场的策略快照：内建缺省 <- default 段 <- markets.<id> 段
// 逐层深合并，schema 校验通过后才替换旧快照（坏编辑保留上一份）。
type Registry struct {
	path    string
	markets []string

	mu        sync.RWMutex
	snaps     map[string]Snapshot
	version   int64
	loadedAt  time.Time
	listeners []ChangeListener
}

// NewRegistry 载入策略文件并可选地监听变更。
// 文件不存在时直接使用内建缺省（不开启监听）。
func NewRegistry(path string, markets []string, watch bool) (*Registry, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("policy registry requires at least one market")
	}
	r := &Registry{path: strings.TrimSpace(path), markets: markets}
	exists := false
	if r.path != "" {
		if _, err := os.Stat(r.path); err == nil {
			exists = true
		}
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if watch && exists {
		v := viper.New()
		v.SetConfigFile(r.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read policy config failed: %w", err)
		}
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := r.reload(); err != nil {
				logger.Errorf("policy reload failed, keeping last good snapshot: %v", err)
				return
			}
			r.notifyListeners()
		})
		v.WatchConfig()
	}
	if !exists && r.path != "" {
		logger.Warnf("policy file %s not found, using builtin defaults", r.path)
	}
	return r, nil
}

// Snapshot 返回某市场当前生效的策略。
func (r *Registry) Snapshot(market string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snaps[strings.ToUpper(strings.TrimSpace(market))]
	return snap, ok
}

// Version 返回已生效的加载轮次。
func (r *Registry) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	var defaultSection, marketsSection map[string]any
	if r.path != "" {
		if _, err := os.Stat(r.path); err == nil {
			v := viper.New()
			v.SetConfigFile(r.path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read policy config failed: %w", err)
			}
			defaultSection = v.GetStringMap("default")
			marketsSection = v.GetStringMap("markets")
		}
	}
	candidate := make(map[string]Snapshot, len(r.markets))
	for _, market := range r.markets {
		id := strings.ToUpper(strings.TrimSpace(market))
		snap, err := buildSnapshot(id, defaultSection, marketsSection)
		if err != nil {
			return err
		}
		candidate[id] = snap
	}
	r.mu.Lock()
	r.snaps = candidate
	r.version++
	r.loadedAt = time.Now()
	r.mu.Unlock()
	if r.path != "" {
		logger.Infof("policy registry loaded %d markets from %s", len(candidate), filepath.Base(r.path))
	}
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snaps := make(map[string]Snapshot, len(r.snaps))
	for k, v := range r.snaps {
		snaps[k] = v
	}
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for market, snap := range snaps {
		for _, fn := range listeners {
			go func(cb ChangeListener, m string, s Snapshot) {
				defer safeRecover("policy listener")
				cb(m, s)
			}(fn, market, snap)
		}
	}
}

// buildSnapshot 合并三层配置并完成校验与哈希。
func buildSnapshot(market string, defaultSection, marketsSection map[string]any) (Snapshot, error) {
	builtin := builtinDefaults(market)
	if builtin == nil {
		return Snapshot{}, fmt.Errorf("policy: unknown market %s", market)
	}
	merged := viper.New()
	if err := merged.MergeConfigMap(builtin); err != nil {
		return Snapshot{}, fmt.Errorf("policy %s: merge builtin: %w", market, err)
	}
	if len(defaultSection) > 0 {
		if err := merged.MergeConfigMap(defaultSection); err != nil {
			return Snapshot{}, fmt.Errorf("policy %s: merge default section: %w", market, err)
		}
	}
	if sub, ok := marketsSection[strings.ToLower(market)]; ok {
		if m, ok := sub.(map[string]any); ok {
			if err := merged.MergeConfigMap(m); err != nil {
				return Snapshot{}, fmt.Errorf("policy %s: merge market section: %w", market, err)
			}
		} else {
			return Snapshot{}, fmt.Errorf("policy %s: markets.%s must be a mapping", market, strings.ToLower(market))
		}
	}
	var snap Snapshot
	if err := merged.Unmarshal(&snap, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return Snapshot{}, fmt.Errorf("policy %s: decode: %w", market, err)
	}
	snap.Constraints.Market = market
	if err := validateAgainstSchema(snap); err != nil {
		return Snapshot{}, err
	}
	if err := snap.validate(); err != nil {
		return Snapshot{}, err
	}
	id, err := snap.computeID()
	if err != nil {
		return Snapshot{}, err
	}
	snap.ID = id
	return snap, nil
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}
