package decision

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/satter0827/market-decision-engine/internal/regime"
)

// 中文说明：
// 决策核心的数据类型：
// - PlanArgs: 候选阶段产物，只含参考位，不含任何成交价格
// - ExecutionPlan: 价格一经生成即冻结，checksum 在出口复验
// - AdjustedPlan: 只叠加缩减乘数与资格标记，不触碰价格
// - DecisionCore: 单标的最终输出，字段顺序即序列化顺序

// BuySignal 买入信号三态。降级只允许朝 NO 方向移动。
type BuySignal string

const (
	SignalYes     BuySignal = "YES"
	SignalYesHalf BuySignal = "YES_HALF"
	SignalNo      BuySignal = "NO"
)

// SetupKind 候选形态。
type SetupKind string

const (
	SetupBreakout20 SetupKind = "breakout20"
	SetupPullback   SetupKind = "pullback"
)

// PlanArgs 候选提取器的输出。RefLevel 是入场参考位（突破位或当日高点），
// SwingLow 是保护位参考，价格换算全部留给执行计划生成器。
type PlanArgs struct {
	Setup     SetupKind `json:"setup"`
	Direction string    `json:"direction"`
	RefLevel  float64   `json:"ref_level"`
	SwingLow  float64   `json:"swing_low"`
	ATR       float64   `json:"atr"`
	Strength  float64   `json:"strength"`
	Priority  int       `json:"priority"`
}

// ExecutionPlan 完整交易计划。Entry/Stop/Target2R/Target3R 在 seal 之后
// 不允许任何环节修改，VerifyPrices 在决策出口强制复验。
type ExecutionPlan struct {
	Ticker       string
	AsOf         string
	Args         PlanArgs
	Entry        float64
	Stop         float64
	Target2R     float64
	Target3R     float64
	RiskPerShare float64
	PositionSize int
	MaxLoss      float64
	TimeStopDays int
	PlanScore    float64
	Warnings     []string

	checksum uint64
}

// seal 固化价格字段。生成器在返回前调用一次。
func (p *ExecutionPlan) seal() { p.checksum = p.priceChecksum() }

func (p *ExecutionPlan) priceChecksum() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range []float64{p.Entry, p.Stop, p.Target2R, p.Target3R} {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// VerifyPrices 复验价格未被中途篡改。失败视为契约破坏。
func (p *ExecutionPlan) VerifyPrices() error {
	if p.checksum == 0 {
		return Contractf("resolve", "计划未固化: %s", p.Ticker)
	}
	if got := p.priceChecksum(); got != p.checksum {
		return Contractf("resolve", "价格字段在生成后被修改: %s", p.Ticker)
	}
	return nil
}

// AdjustedPlan 风险调节结果。SizeMultiplier 是全部缩减系数的乘积，
// 始终落在 [0,1]；Adjustments 记录每次缩减的原因标签。
type AdjustedPlan struct {
	Plan           ExecutionPlan
	SizeMultiplier float64
	AdjustedSize   int
	Eligible       bool
	Adjustments    []string
}

// Estimate 置信度估计。Present=false 表示缺席（禁用、超时、越界、panic），
// 缺席永远不以错误形态向上传播。
type Estimate struct {
	Present      bool
	PSuccess     float64
	EVR          float64
	Uncertainty  float64
	ModelVersion string
	AbsentReason string
}

// ScoredPlan 进入选择器的打分计划。
type ScoredPlan struct {
	Adjusted   AdjustedPlan
	Confidence Estimate
	Composite  float64
}

// DecisionCore 单标的决策输出。字段声明顺序决定 JSON 序列化顺序，
// 不携带任何挂钟时间，同输入同策略必须逐字节一致。
type DecisionCore struct {
	Ticker           string    `json:"ticker"`
	AsOf             string    `json:"as_of"`
	Setup            SetupKind `json:"setup"`
	BuySignal        BuySignal `json:"buy_signal"`
	Entry            float64   `json:"entry"`
	Stop             float64   `json:"stop"`
	Target2R         float64   `json:"target_2r"`
	Target3R         float64   `json:"target_3r"`
	PositionSize     int       `json:"position_size"`
	MaxLoss          float64   `json:"max_loss"`
	TimeStopDays     int       `json:"time_stop_days"`
	PlanScore        float64   `json:"plan_score"`
	Rank             int       `json:"rank"`
	PSuccess         *float64  `json:"p_success,omitempty"`
	EVR              *float64  `json:"ev_r,omitempty"`
	Uncertainty      *float64  `json:"uncertainty,omitempty"`
	ModelVersion     string    `json:"model_version,omitempty"`
	SizeMultiplier   float64   `json:"size_multiplier"`
	Adjustments      []string  `json:"adjustments,omitempty"`
	PlanArgs         PlanArgs  `json:"plan_args"`
	PolicySnapshotID string    `json:"policy_snapshot_id"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// Warning 运行期告警，聚合进 RunMeta。
type Warning struct {
	Ticker  string `json:"ticker,omitempty"`
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SkippedTicker 被整体跳过的标的及原因。
type SkippedTicker struct {
	Ticker string `json:"ticker"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// RunMeta 批次元数据。挂钟时间只允许出现在这里。
type RunMeta struct {
	RunID            string       `json:"run_id"`
	Market           string       `json:"market"`
	AsOf             string       `json:"as_of"`
	UniverseSize     int          `json:"universe_size"`
	Processed        int          `json:"processed"`
	Skipped          int          `json:"skipped"`
	NoCandidates     int          `json:"no_candidates"`
	Yes              int          `json:"yes"`
	YesHalf          int          `json:"yes_half"`
	No               int          `json:"no"`
	Degraded         bool         `json:"degraded"`
	DegradedReasons  []string     `json:"degraded_reasons,omitempty"`
	Warnings         []Warning    `json:"warnings,omitempty"`
	PolicySnapshotID string       `json:"policy_snapshot_id"`
	Regime           regime.State `json:"regime"`
	StartedAt        string       `json:"started_at"`
	FinishedAt       string       `json:"finished_at"`
	DurationMS       int64        `json:"duration_ms"`
}

// RunResult 一次批跑的全部输出。Decisions 已按全局排名排序。
type RunResult struct {
	Meta      RunMeta         `json:"run_meta"`
	Decisions []DecisionCore  `json:"decisions"`
	Skipped   []SkippedTicker `json:"skipped,omitempty"`
}

// String 便于日志排查。
func (d DecisionCore) String() string {
	return fmt.Sprintf("%s %s %s entry=%.4f stop=%.4f size=%d score=%.3f",
		d.Ticker, d.Setup, d.BuySignal, d.Entry, d.Stop, d.PositionSize, d.PlanScore)
}
