package scheduler

import (
	"context"
	"time"

	"github.com/satter0827/market-decision-engine/internal/logger"
)

// 中文说明：
// EOD 调度器：按市场本地挂钟在每个交易日收盘后触发一次批跑。
// 触发点 = 当地 00:00 + TriggerAfter + Offset；session 是触发点对应的交易日，
// CRYPTO 在次日凌晨触发时用 SessionLagDays 回退一天。时钟可注入，便于测试。

type EODScheduler struct {
	Name           string
	Location       *time.Location
	TriggerAfter   time.Duration
	Offset         time.Duration
	SessionLagDays int
	SkipWeekends   bool
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewEODScheduler(ctx context.Context, name string, loc *time.Location, triggerAfter time.Duration) *EODScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EODScheduler{
		Name:         name,
		Location:     loc,
		TriggerAfter: triggerAfter,
		ctx:          ctx,
		nowFn:        time.Now,
	}
}

// Start 阻塞运行调度循环，ctx 取消后返回。task 收到的参数是交易日 (YYYY-MM-DD)。
func (s *EODScheduler) Start(task func(sessionDate string)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("EODScheduler: task is nil, exit")
		return
	}
	if s.TriggerAfter < 0 || s.TriggerAfter >= 24*time.Hour {
		logger.Warnf("EODScheduler: invalid trigger=%s, exit", s.TriggerAfter)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("EODScheduler: negative offset=%s, clamp to 0", s.Offset)
		s.Offset = 0
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	prefix := "EODScheduler"
	if s.Name != "" {
		prefix = prefix + "[" + s.Name + "]"
	}
	logger.Infof("%s: started trigger=%s tz=%s offset=%s skip_weekends=%v run_immediately=%v at=%s",
		prefix, s.TriggerAfter, s.Location, s.Offset, s.SkipWeekends, s.RunImmediately,
		startAt.Format(time.RFC3339))

	if s.RunImmediately {
		session := s.LatestSession(s.nowFn())
		logger.Infof("%s: RunImmediately=true, 先跑最近一个交易日 session=%s", prefix, session)
		task(session)
	}

	for {
		now := s.nowFn()
		fireAt, session := s.NextTrigger(now)
		wait := fireAt.Sub(now)
		uptime := now.UTC().Sub(startAt)
		logger.Infof("%s: 下次触发=%s session=%s (in %s) | uptime=%s",
			prefix, fireAt.Format(time.RFC3339), session,
			wait.Truncate(time.Second), uptime.Truncate(time.Second))

		if !s.waitUntil(fireAt) {
			logger.Infof("%s: ctx done, exit", prefix)
			return
		}
		task(session)
	}
}

// NextTrigger 返回 now 之后最近的触发时刻与对应交易日。
func (s *EODScheduler) NextTrigger(now time.Time) (time.Time, string) {
	local := now.In(s.Location)
	candidate := dayStart(local).Add(s.TriggerAfter)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	session := candidate.AddDate(0, 0, -s.SessionLagDays)
	for s.SkipWeekends && isWeekend(session) {
		candidate = candidate.AddDate(0, 0, 1)
		session = session.AddDate(0, 0, 1)
	}
	return candidate.Add(s.Offset), session.Format("2006-01-02")
}

// LatestSession 返回 now 时刻已经收盘的最近交易日。
func (s *EODScheduler) LatestSession(now time.Time) string {
	local := now.In(s.Location)
	trigger := dayStart(local).Add(s.TriggerAfter)
	if local.Before(trigger) {
		trigger = trigger.AddDate(0, 0, -1)
	}
	session := trigger.AddDate(0, 0, -s.SessionLagDays)
	for s.SkipWeekends && isWeekend(session) {
		session = session.AddDate(0, 0, -1)
	}
	return session.Format("2006-01-02")
}

func (s *EODScheduler) waitUntil(target time.Time) bool {
	now := s.nowFn()
	wait := target.Sub(now)
	if wait <= 0 {
		select {
		case <-s.ctx.Done():
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(wait)
	select {
	case <-s.ctx.Done():
		timer.Stop()
		return false
	case <-timer.C:
		return true
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
