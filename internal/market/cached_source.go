package market

import (
	"context"

	"github.com/satter0827/market-decision-engine/internal/logger"
)

// CachedSource 在任意 Source 外层加一层本地缓存：
// 在线拉取成功则写穿，失败则回退到缓存（调用方据此标记降级）。
type CachedSource struct {
	inner Source
	cache *BarCache
}

func NewCachedSource(inner Source, cache *BarCache) *CachedSource {
	return &CachedSource{inner: inner, cache: cache}
}

func (s *CachedSource) Name() string { return s.inner.Name() }

func (s *CachedSource) Stats() SourceStats { return s.inner.Stats() }

func (s *CachedSource) Close() error { return s.inner.Close() }

func (s *CachedSource) FetchDaily(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	bars, err := s.inner.FetchDaily(ctx, symbol, limit)
	if err == nil {
		if s.cache != nil {
			if cerr := s.cache.Put(ctx, symbol, bars); cerr != nil {
				logger.Warnf("bar cache 写入失败 symbol=%s: %v", symbol, cerr)
			}
		}
		return bars, nil
	}
	if s.cache == nil {
		return nil, err
	}
	cached, cerr := s.cache.GetThrough(ctx, symbol, "", limit)
	if cerr != nil || len(cached) == 0 {
		return nil, err
	}
	logger.Warnf("数据源 %s 拉取 %s 失败，回退本地缓存（%d 根）: %v", s.inner.Name(), symbol, len(cached), err)
	return cached, nil
}
