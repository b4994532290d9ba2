package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/pkg/circuit"
	symbolpkg "github.com/satter0827/market-decision-engine/internal/pkg/symbol"
)

const (
	maxHistoryLimit = 1000
	dailyInterval   = "1d"
)

// Source 基于 go-binance 现货 SDK 实现 market.Source，只取日线。
type Source struct {
	cfg     Config
	client  *binance.Client
	breaker *circuit.CircuitBreaker

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := binance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		breaker: circuit.NewCircuitBreaker("binance", 4, 2*time.Minute),
	}, nil
}

func (s *Source) Name() string { return "binance" }

// FetchDaily 拉取已收盘的日线。当日未收盘的 K 线会被丢弃，
// 避免盘中数据混进收盘后的决策输入。
func (s *Source) FetchDaily(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = symbolpkg.ToBinance(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("binance klines %s: circuit open", symbol)
	}

	s.recordRequest()
	// 多取一根，末尾未收盘的丢掉后仍凑满 limit。
	svc := s.client.NewKlinesService().Symbol(symbol).Interval(dailyInterval).Limit(limit + 1)
	kls, err := svc.Do(ctx)
	if err != nil {
		s.recordFailure(err)
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}
	s.breaker.RecordSuccess()

	nowMs := time.Now().UTC().UnixMilli()
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		if kl.CloseTime >= nowMs {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error { return nil }

func (s *Source) recordRequest() {
	s.statsMu.Lock()
	s.stats.Requests++
	s.statsMu.Unlock()
}

func (s *Source) recordFailure(err error) {
	s.statsMu.Lock()
	s.stats.Failures++
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
