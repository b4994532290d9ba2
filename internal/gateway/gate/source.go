// Package gate 基于 gate.io 永续合约行情实现 market.Source，
// 作为加密市场 binance 之外的备选日线源。
package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"

	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/pkg/circuit"
	symbolpkg "github.com/satter0827/market-decision-engine/internal/pkg/symbol"
)

const (
	gateSettle          = "usdt"
	gateMaxHistoryLimit = 2000
	dailyInterval       = "1d"
)

type Source struct {
	cfg     Config
	rest    *gateapi.APIClient
	breaker *circuit.CircuitBreaker

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()

	conf := gateapi.NewConfiguration()
	conf.BasePath = final.RESTBaseURL
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
	conf.HTTPClient = httpClient

	return &Source{
		cfg:     final,
		rest:    gateapi.NewAPIClient(conf),
		breaker: circuit.NewCircuitBreaker("gate", 4, 2*time.Minute),
	}, nil
}

func (s *Source) Name() string { return "gate" }

// FetchDaily 拉取已收盘的日线。gate 合约口径为 BTC_USDT，
// 结算固定 usdt；当日未收盘的 K 线会被丢弃。
func (s *Source) FetchDaily(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > gateMaxHistoryLimit {
		limit = gateMaxHistoryLimit
	}
	contract := symbolpkg.ToGate(symbol)
	if contract == "" {
		return nil, fmt.Errorf("gate: unsupported symbol %q", symbol)
	}
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("gate klines %s: circuit open", contract)
	}

	s.recordRequest()
	opts := &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(limit + 1)),
		Interval: optional.NewString(dailyInterval),
	}
	kls, _, err := s.rest.FuturesApi.ListFuturesCandlesticks(ctx, gateSettle, contract, opts)
	if err != nil {
		s.recordFailure(err)
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("gate klines %s: %w", contract, err)
	}
	s.breaker.RecordSuccess()

	nowMs := time.Now().UTC().UnixMilli()
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		openMs := int64(kl.T * 1000)
		closeMs := openMs + 24*time.Hour.Milliseconds() - 1
		if closeMs >= nowMs {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  openMs,
			CloseTime: closeMs,
			Open:      parseFloat(kl.O),
			High:      parseFloat(kl.H),
			Low:       parseFloat(kl.L),
			Close:     parseFloat(kl.C),
			Volume:    parseFloat(kl.Sum),
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
