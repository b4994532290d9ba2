package model

import "gorm.io/datatypes"

// RunModel 一次批跑的落库行。列字段用于列表页与筛选，
// meta_json / skipped_json 保存完整原始结构，读取时据此还原。
type RunModel struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	RunID            string         `gorm:"column:run_id;uniqueIndex"`
	Market           string         `gorm:"column:market;index:idx_runs_market_asof,priority:1"`
	AsOf             string         `gorm:"column:as_of;index:idx_runs_market_asof,priority:2"`
	UniverseSize     int            `gorm:"column:universe_size"`
	Processed        int            `gorm:"column:processed"`
	Skipped          int            `gorm:"column:skipped"`
	NoCandidates     int            `gorm:"column:no_candidates"`
	Yes              int            `gorm:"column:yes"`
	YesHalf          int            `gorm:"column:yes_half"`
	No               int            `gorm:"column:no"`
	Degraded         bool           `gorm:"column:degraded"`
	PolicySnapshotID string         `gorm:"column:policy_snapshot_id"`
	MetaJSON         datatypes.JSON `gorm:"column:meta_json;type:TEXT"`
	SkippedJSON      datatypes.JSON `gorm:"column:skipped_json;type:TEXT"`
	CreatedAtUnix    int64          `gorm:"column:created_at"`
}

func (RunModel) TableName() string { return "decision_runs" }

// DecisionModel 单标的决策行。payload_json 保存完整 DecisionCore，
// 其余列只为过滤与排序服务。
type DecisionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	RunID         string         `gorm:"column:run_id;uniqueIndex:idx_decisions_run_ticker,priority:1"`
	Ticker        string         `gorm:"column:ticker;uniqueIndex:idx_decisions_run_ticker,priority:2;index:idx_decisions_ticker"`
	Market        string         `gorm:"column:market;index"`
	AsOf          string         `gorm:"column:as_of"`
	Setup         string         `gorm:"column:setup"`
	BuySignal     string         `gorm:"column:buy_signal;index"`
	Rank          int            `gorm:"column:rank"`
	Entry         float64        `gorm:"column:entry"`
	Stop          float64        `gorm:"column:stop"`
	PositionSize  int            `gorm:"column:position_size"`
	PlanScore     float64        `gorm:"column:plan_score"`
	PayloadJSON   datatypes.JSON `gorm:"column:payload_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (DecisionModel) TableName() string { return "decisions" }
