// Package confidence 实现置信度估计器的外部接入。
// HTTP 形态把已调整计划投喂给打分服务，none 形态直接缺席。
package confidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/satter0827/market-decision-engine/internal/decision"
	"github.com/satter0827/market-decision-engine/internal/feature"
	"github.com/satter0827/market-decision-engine/internal/logger"
	"github.com/satter0827/market-decision-engine/internal/pkg/jsonutil"
)

const (
	ProviderNone = "none"
	ProviderHTTP = "http"
)

type Config struct {
	Provider string
	APIURL   string
	APIKey   string
	Headers  map[string]string
	Timeout  time.Duration
	Trace    bool
}

// New 按配置构造估计器。none 返回 nil，核心把 nil 视作缺席。
func New(cfg Config) (decision.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderHTTP:
		if strings.TrimSpace(cfg.APIURL) == "" {
			return nil, fmt.Errorf("confidence provider http 需要 api_url")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		return &HTTPProvider{
			cfg:    cfg,
			client: &http.Client{Timeout: timeout},
		}, nil
	default:
		return nil, fmt.Errorf("未知 confidence provider: %s", cfg.Provider)
	}
}

// HTTPProvider 通过一次 POST 交换估计。响应契约是平铺 JSON：
// p_success / ev_r / uncertainty 必填，model_version 可选。
type HTTPProvider struct {
	cfg    Config
	client *http.Client
}

func (p *HTTPProvider) Name() string { return ProviderHTTP }

func (p *HTTPProvider) Estimate(ctx context.Context, req decision.EstimateRequest) (decision.Estimate, error) {
	payload, err := json.Marshal(buildPayload(req))
	if err != nil {
		return decision.Estimate{}, fmt.Errorf("encode request: %w", err)
	}
	if p.cfg.Trace {
		logger.TraceModelRequest(ProviderHTTP, req.Ticker, string(payload))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return decision.Estimate{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.cfg.APIKey))
	}
	for k, v := range p.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if p.cfg.Trace {
			logger.TraceModelResponse(ProviderHTTP, req.Ticker, "", err)
		}
		return decision.Estimate{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decision.Estimate{}, fmt.Errorf("read response: %w", err)
	}
	if p.cfg.Trace {
		logger.TraceModelResponse(ProviderHTTP, req.Ticker, string(body), nil)
	}
	if resp.StatusCode/100 != 2 {
		return decision.Estimate{}, fmt.Errorf("status=%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseEstimate(body)
}

// parseEstimate 从响应体取字段，必填缺失即报错，范围校验交给核心边界。
// LLM 代理类打分服务会把 JSON 包进 markdown 围栏，先剥离再解析。
func parseEstimate(body []byte) (decision.Estimate, error) {
	if !gjson.ValidBytes(body) {
		block, ok := jsonutil.ExtractJSON(string(body))
		if !ok {
			return decision.Estimate{}, fmt.Errorf("响应不是合法 JSON")
		}
		body = []byte(block)
	}
	for _, key := range []string{"p_success", "ev_r", "uncertainty"} {
		if !gjson.GetBytes(body, key).Exists() {
			return decision.Estimate{}, fmt.Errorf("响应缺少 %s", key)
		}
	}
	return decision.Estimate{
		PSuccess:     gjson.GetBytes(body, "p_success").Float(),
		EVR:          gjson.GetBytes(body, "ev_r").Float(),
		Uncertainty:  gjson.GetBytes(body, "uncertainty").Float(),
		ModelVersion: gjson.GetBytes(body, "model_version").String(),
	}, nil
}

// estimatePayload 送出的请求体。价格字段只读不回收，
// 服务端返回什么都改不了计划。
type estimatePayload struct {
	Ticker         string             `json:"ticker"`
	AsOf           string             `json:"as_of"`
	Setup          string             `json:"setup"`
	Plan           planPayload        `json:"plan"`
	AdjustedSize   int                `json:"adjusted_size"`
	SizeMultiplier float64            `json:"size_multiplier"`
	Adjustments    []string           `json:"adjustments,omitempty"`
	Static         map[string]float64 `json:"static,omitempty"`
	Fundamental    map[string]float64 `json:"fundamental,omitempty"`
}

type planPayload struct {
	Entry        float64 `json:"entry"`
	Stop         float64 `json:"stop"`
	Target2R     float64 `json:"target_2r"`
	Target3R     float64 `json:"target_3r"`
	RiskPerShare float64 `json:"risk_per_share"`
	PositionSize int     `json:"position_size"`
	TimeStopDays int     `json:"time_stop_days"`
	PlanScore    float64 `json:"plan_score"`
}

func buildPayload(req decision.EstimateRequest) estimatePayload {
	plan := req.Adjusted.Plan
	return estimatePayload{
		Ticker: req.Ticker,
		AsOf:   req.AsOf,
		Setup:  string(plan.Args.Setup),
		Plan: planPayload{
			Entry:        plan.Entry,
			Stop:         plan.Stop,
			Target2R:     plan.Target2R,
			Target3R:     plan.Target3R,
			RiskPerShare: plan.RiskPerShare,
			PositionSize: plan.PositionSize,
			TimeStopDays: plan.TimeStopDays,
			PlanScore:    plan.PlanScore,
		},
		AdjustedSize:   req.Adjusted.AdjustedSize,
		SizeMultiplier: req.Adjusted.SizeMultiplier,
		Adjustments:    req.Adjusted.Adjustments,
		Static:         bundleNums(req.Static),
		Fundamental:    bundleNums(req.Fundamental),
	}
}

func bundleNums(b *feature.Bundle) map[string]float64 {
	if b == nil {
		return nil
	}
	out := make(map[string]float64)
	for _, key := range b.NumKeys() {
		if v, ok := b.Num(key); ok {
			out[key] = v
		}
	}
	return out
}
