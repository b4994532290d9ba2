// Package stooq 通过 stooq.com 的 CSV 接口拉取日本与美国市场日线。
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/satter0827/market-decision-engine/internal/market"
	"github.com/satter0827/market-decision-engine/internal/pkg/circuit"
)

const (
	csvPath   = "/q/d/l/"
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://stooq.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}

// Source 实现 market.Source。stooq 免鉴权，但对默认 UA 不友好，
// 请求固定带浏览器 UA。
type Source struct {
	cfg     Config
	client  *http.Client
	breaker *circuit.CircuitBreaker

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
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
	return &Source{
		cfg:     final,
		client:  httpClient,
		breaker: circuit.NewCircuitBreaker("stooq", 4, 2*time.Minute),
	}, nil
}

func (s *Source) Name() string { return "stooq" }

// MapSymbol 把内部代码换成 stooq 口径：
// 7203.T -> 7203.jp，AAPL -> aapl.us，^NKX -> ^nkx，已带后缀的原样小写。
func MapSymbol(symbol string) string {
	sym := strings.ToLower(strings.TrimSpace(symbol))
	switch {
	case sym == "":
		return ""
	case strings.HasPrefix(sym, "^"):
		return sym
	case strings.HasSuffix(sym, ".t"):
		return strings.TrimSuffix(sym, ".t") + ".jp"
	case strings.Contains(sym, "."):
		return sym
	default:
		return sym + ".us"
	}
}

func (s *Source) FetchDaily(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	mapped := MapSymbol(symbol)
	if mapped == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("stooq fetch %s: circuit open", mapped)
	}

	endpoint := fmt.Sprintf("%s%s?s=%s&i=d", strings.TrimRight(s.cfg.RESTBaseURL, "/"), csvPath, url.QueryEscape(mapped))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("stooq request %s: %w", mapped, err)
	}
	req.Header.Set("User-Agent", userAgent)

	s.recordRequest()
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordFailure(err)
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("stooq fetch %s: %w", mapped, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("stooq fetch %s: http %d", mapped, resp.StatusCode)
		s.recordFailure(err)
		s.breaker.RecordFailure()
		return nil, err
	}
	s.breaker.RecordSuccess()

	candles, err := parseCSV(resp.Body)
	if err != nil {
		s.recordFailure(err)
		return nil, fmt.Errorf("stooq parse %s: %w", mapped, err)
	}
	if len(candles) == 0 {
		err := fmt.Errorf("stooq %s: empty series", mapped)
		s.recordFailure(err)
		return nil, err
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// parseCSV 解析 Date,Open,High,Low,Close,Volume 表头的日线序列。
// 指数没有成交量时按 0 处理。
func parseCSV(r io.Reader) ([]market.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []market.Candle
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		day, err := time.Parse("2006-01-02", field(record, col["date"]))
		if err != nil {
			continue
		}
		openMs := day.UTC().UnixMilli()
		candle := market.Candle{
			OpenTime:  openMs,
			CloseTime: openMs + 24*time.Hour.Milliseconds() - 1,
			Open:      parseFloat(field(record, col["open"])),
			High:      parseFloat(field(record, col["high"])),
			Low:       parseFloat(field(record, col["low"])),
			Close:     parseFloat(field(record, col["close"])),
		}
		if idx, ok := col["volume"]; ok {
			candle.Volume = parseFloat(field(record, idx))
		}
		out = append(out, candle)
	}
	return out, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
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
