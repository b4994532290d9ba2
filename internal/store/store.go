package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/satter0827/market-decision-engine/internal/decision"
	storemodel "github.com/satter0827/market-decision-engine/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const defaultListLimit = 50

// ErrRunNotFound 查询的 run_id 不存在。
var ErrRunNotFound = errors.New("run 不存在")

// RunStore 基于 gorm + sqlite 落地批跑结果，读 API 与报告层共用同一份数据。
type RunStore struct {
	db *gorm.DB
}

// NewRunStore 打开(或创建)落库文件并完成建表迁移。
func NewRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&storemodel.RunModel{}, &storemodel.DecisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 写侧单线程，读侧留两条连接给 HTTP 查询。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &RunStore{db: db}, nil
}

// Close 关闭底层连接。
func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 落地一次批跑。同 run_id 重放时覆盖旧汇总行，决策行整批重建。
func (s *RunStore) SaveRun(ctx context.Context, res decision.RunResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store 未初始化")
	}
	meta := res.Meta
	if strings.TrimSpace(meta.RunID) == "" {
		return fmt.Errorf("run store: run_id 不能为空")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("序列化 run_meta 失败: %w", err)
	}
	var skippedJSON []byte
	if len(res.Skipped) > 0 {
		skippedJSON, err = json.Marshal(res.Skipped)
		if err != nil {
			return fmt.Errorf("序列化 skipped 失败: %w", err)
		}
	}
	now := time.Now().Unix()
	run := storemodel.RunModel{
		RunID:            meta.RunID,
		Market:           meta.Market,
		AsOf:             meta.AsOf,
		UniverseSize:     meta.UniverseSize,
		Processed:        meta.Processed,
		Skipped:          meta.Skipped,
		NoCandidates:     meta.NoCandidates,
		Yes:              meta.Yes,
		YesHalf:          meta.YesHalf,
		No:               meta.No,
		Degraded:         meta.Degraded,
		PolicySnapshotID: meta.PolicySnapshotID,
		MetaJSON:         datatypes.JSON(metaJSON),
		SkippedJSON:      datatypes.JSON(skippedJSON),
		CreatedAtUnix:    now,
	}
	rows := make([]storemodel.DecisionModel, 0, len(res.Decisions))
	for _, d := range res.Decisions {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("序列化决策 %s 失败: %w", d.Ticker, err)
		}
		rows = append(rows, storemodel.DecisionModel{
			RunID:         meta.RunID,
			Ticker:        d.Ticker,
			Market:        meta.Market,
			AsOf:          d.AsOf,
			Setup:         string(d.Setup),
			BuySignal:     string(d.BuySignal),
			Rank:          d.Rank,
			Entry:         d.Entry,
			Stop:          d.Stop,
			PositionSize:  d.PositionSize,
			PlanScore:     d.PlanScore,
			PayloadJSON:   datatypes.JSON(payload),
			CreatedAtUnix: now,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := []string{
			"market", "as_of", "universe_size", "processed", "skipped", "no_candidates",
			"yes", "yes_half", "no", "degraded", "policy_snapshot_id",
			"meta_json", "skipped_json", "created_at",
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).Create(&run).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", meta.RunID).Delete(&storemodel.DecisionModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 200).Error
	})
}

// RunSummary 列表页摘要行。
type RunSummary struct {
	RunID            string `json:"run_id"`
	Market           string `json:"market"`
	AsOf             string `json:"as_of"`
	UniverseSize     int    `json:"universe_size"`
	Processed        int    `json:"processed"`
	Skipped          int    `json:"skipped"`
	Yes              int    `json:"yes"`
	YesHalf          int    `json:"yes_half"`
	No               int    `json:"no"`
	Degraded         bool   `json:"degraded"`
	PolicySnapshotID string `json:"policy_snapshot_id"`
	CreatedAt        string `json:"created_at"`
}

// ListRuns 按入库时间倒序返回摘要，market 为空不过滤，limit<=0 用默认值。
func (s *RunStore) ListRuns(ctx context.Context, market string, limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store 未初始化")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if market = strings.TrimSpace(market); market != "" {
		query = query.Where("market = ?", market)
	}
	var models []storemodel.RunModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(models))
	for _, m := range models {
		out = append(out, RunSummary{
			RunID:            m.RunID,
			Market:           m.Market,
			AsOf:             m.AsOf,
			UniverseSize:     m.UniverseSize,
			Processed:        m.Processed,
			Skipped:          m.Skipped,
			Yes:              m.Yes,
			YesHalf:          m.YesHalf,
			No:               m.No,
			Degraded:         m.Degraded,
			PolicySnapshotID: m.PolicySnapshotID,
			CreatedAt:        time.Unix(m.CreatedAtUnix, 0).UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

// GetRun 还原完整批跑结果：RunMeta 与跳过明细取自 JSON 列，决策按排名升序。
func (s *RunStore) GetRun(ctx context.Context, runID string) (decision.RunResult, error) {
	var res decision.RunResult
	if s == nil || s.db == nil {
		return res, fmt.Errorf("run store 未初始化")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return res, fmt.Errorf("run_id 必填")
	}
	var run storemodel.RunModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return res, ErrRunNotFound
		}
		return res, err
	}
	if len(run.MetaJSON) > 0 {
		if err := json.Unmarshal(run.MetaJSON, &res.Meta); err != nil {
			return res, fmt.Errorf("解析 run_meta 失败: %w", err)
		}
	}
	if len(run.SkippedJSON) > 0 {
		if err := json.Unmarshal(run.SkippedJSON, &res.Skipped); err != nil {
			return res, fmt.Errorf("解析 skipped 失败: %w", err)
		}
	}
	var rows []storemodel.DecisionModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("rank ASC, ticker ASC").
		Find(&rows).Error; err != nil {
		return res, err
	}
	res.Decisions = make([]decision.DecisionCore, 0, len(rows))
	for _, row := range rows {
		var d decision.DecisionCore
		if err := json.Unmarshal(row.PayloadJSON, &d); err != nil {
			return res, fmt.Errorf("解析决策 %s 失败: %w", row.Ticker, err)
		}
		res.Decisions = append(res.Decisions, d)
	}
	return res, nil
}

// DecisionQuery 决策查询条件，零值字段不参与过滤。
type DecisionQuery struct {
	RunID  string
	Ticker string
	Market string
	Signal string
	Limit  int
}

// ListDecisions 跨批次查询决策，按入库时间倒序、批内按排名升序。
func (s *RunStore) ListDecisions(ctx context.Context, q DecisionQuery) ([]decision.DecisionCore, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store 未初始化")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := s.db.WithContext(ctx).Order("created_at DESC, rank ASC, id ASC").Limit(limit)
	if v := strings.TrimSpace(q.RunID); v != "" {
		query = query.Where("run_id = ?", v)
	}
	if v := strings.TrimSpace(q.Ticker); v != "" {
		query = query.Where("ticker = ?", v)
	}
	if v := strings.TrimSpace(q.Market); v != "" {
		query = query.Where("market = ?", v)
	}
	if v := strings.TrimSpace(q.Signal); v != "" {
		query = query.Where("buy_signal = ?", v)
	}
	var rows []storemodel.DecisionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]decision.DecisionCore, 0, len(rows))
	for _, row := range rows {
		var d decision.DecisionCore
		if err := json.Unmarshal(row.PayloadJSON, &d); err != nil {
			return nil, fmt.Errorf("解析决策 %s 失败: %w", row.Ticker, err)
		}
		out = append(out, d)
	}
	return out, nil
}
