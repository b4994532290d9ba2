package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/satter0827/market-decision-engine/internal/feature"
	"github.com/satter0827/market-decision-engine/internal/logger"
)

// 中文说明：
// 置信度边界：外部估计器只通过这层进入核心。
// 失败形态只有一种：缺席（Present=false + 原因），
// 超时、出错、越界、panic 一律收敛为缺席，绝不让流水线中断。

// EstimateRequest 交给估计器的上下文。估计器拿到的是已调整计划
// 与可选的 static/fundamental 包，日线原始特征不出核心。
type EstimateRequest struct {
	Ticker      string
	AsOf        string
	Adjusted    AdjustedPlan
	Static      *feature.Bundle
	Fundamental *feature.Bundle
}

// Provider 置信度估计器。实现方可以是 HTTP 服务或本地模型，
// 核心不关心来源，只要求对 ctx 超时敏感。
type Provider interface {
	Name() string
	Estimate(ctx context.Context, req EstimateRequest) (Estimate, error)
}

const (
	absentDisabled = "provider_disabled"

	evrClampLow  = -1.0
	evrClampHigh = 3.0
)

// estimateSafe 带超时与 panic 回收地调用估计器。
// 任何异常路径都折叠为缺席估计，原因落在 AbsentReason。
func estimateSafe(ctx context.Context, p Provider, req EstimateRequest, timeout time.Duration) (est Estimate) {
	if p == nil {
		return Estimate{AbsentReason: absentDisabled}
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("置信度估计器 %s 调用 panic: %v", p.Name(), r)
			est = Estimate{AbsentReason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := p.Estimate(cctx, req)
	if err != nil {
		return Estimate{AbsentReason: err.Error()}
	}
	return sanitizeEstimate(raw)
}

// sanitizeEstimate 做范围校验：概率越界判缺席，EV 越界收窄。
func sanitizeEstimate(e Estimate) Estimate {
	if math.IsNaN(e.PSuccess) || e.PSuccess < 0 || e.PSuccess > 1 {
		return Estimate{AbsentReason: fmt.Sprintf("p_success 越界: %v", e.PSuccess)}
	}
	if math.IsNaN(e.Uncertainty) || e.Uncertainty < 0 || e.Uncertainty > 1 {
		return Estimate{AbsentReason: fmt.Sprintf("uncertainty 越界: %v", e.Uncertainty)}
	}
	if math.IsNaN(e.EVR) {
		return Estimate{AbsentReason: "ev_r 非数"}
	}
	e.EVR = clampEVR(e.EVR)
	e.Present = true
	e.AbsentReason = ""
	return e
}

func clampEVR(v float64) float64 {
	switch {
	case v < evrClampLow:
		return evrClampLow
	case v > evrClampHigh:
		return evrClampHigh
	default:
		return v
	}
}
