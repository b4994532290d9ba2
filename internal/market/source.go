package market

import "context"

type SourceStats struct {
	Requests  int
	Failures  int
	LastError string
}

// Source 拉取某标的的已收盘日线，按时间升序返回，最多 limit 根。
// 实现方负责剔除未收盘的当日数据。
type Source interface {
	FetchDaily(ctx context.Context, symbol string, limit int) ([]Candle, error)
	Name() string
	Stats() SourceStats
	Close() error
}
