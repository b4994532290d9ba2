package decision

import (
	"fmt"
	"time"
)

// Params 引擎调参集合。由应用层从配置映射而来，
// 核心包不直接读配置，保证可独立测试。
type Params struct {
	Workers           int
	MaxCandidates     int
	LogDroppedPlans   bool
	Score             ScoreWeights
	Breakout          BreakoutParams
	Pullback          PullbackParams
	ConfidenceTimeout time.Duration
}

// ScoreWeights plan_score 三因子权重，内部使用前会归一化。
type ScoreWeights struct {
	Strength float64
	Volume   float64
	Trend    float64
}

// BreakoutParams 突破检测阈值。
type BreakoutParams struct {
	MinVolumeRatio float64
	ArmWithin      float64
}

// PullbackParams 回踩检测阈值。
type PullbackParams struct {
	RSIMin  float64
	RSIMax  float64
	ATRBand float64
}

// DefaultParams 与配置缺省值保持一致的引擎参数。
func DefaultParams() Params {
	return Params{
		Workers:           8,
		MaxCandidates:     2,
		LogDroppedPlans:   false,
		Score:             ScoreWeights{Strength: 0.5, Volume: 0.2, Trend: 0.3},
		Breakout:          BreakoutParams{MinVolumeRatio: 1.2, ArmWithin: 0.005},
		Pullback:          PullbackParams{RSIMin: 35, RSIMax: 55, ATRBand: 1.0},
		ConfidenceTimeout: 5 * time.Second,
	}
}

func (p Params) validate() error {
	if p.Workers < 1 || p.Workers > 64 {
		return fmt.Errorf("workers 超出范围 [1,64]: %d", p.Workers)
	}
	if p.MaxCandidates < 1 || p.MaxCandidates > 3 {
		return fmt.Errorf("max_candidates 超出范围 [1,3]: %d", p.MaxCandidates)
	}
	if w := p.Score; w.Strength <= 0 || w.Volume <= 0 || w.Trend <= 0 {
		return fmt.Errorf("打分权重必须为正: %+v", w)
	}
	if p.Breakout.ArmWithin <= 0 || p.Breakout.MinVolumeRatio <= 0 {
		return fmt.Errorf("突破阈值必须为正: %+v", p.Breakout)
	}
	if p.Pullback.RSIMin >= p.Pullback.RSIMax || p.Pullback.ATRBand <= 0 {
		return fmt.Errorf("回踩阈值非法: %+v", p.Pullback)
	}
	return nil
}
