package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"pensionhub/internal/aggregator"
	"pensionhub/internal/model"
)

// Healer 汇总校验与重算
type Healer interface {
	Verify(ctx context.Context, dims ...model.Dimension) ([]aggregator.Drift, error)
	Recompute(ctx context.Context, dims ...model.Dimension) (*aggregator.RecomputeResult, error)
}

// Scheduler 定时校验汇总表，发现偏差时重算（修复批次中途崩溃留下的不一致）
type Scheduler struct {
	cron    *cron.Cron
	healer  Healer
	logger  logrus.FieldLogger
	timeout time.Duration
}

// NewScheduler 创建定时任务
func NewScheduler(h Healer, logger logrus.FieldLogger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		healer:  h,
		logger:  logger,
		timeout: 30 * time.Minute,
	}
}

// Start 按 cron 表达式调度；表达式为空时不启动
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Heal(ctx); err != nil {
			s.logger.WithError(err).Error("scheduled summary heal failed")
		}
	}); err != nil {
		return fmt.Errorf("unable to schedule summary recompute %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", schedule).Info("summary recompute scheduled")
	return nil
}

// Stop 停止调度并等待正在运行的任务
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Heal 校验全部维度；存在偏差时只重算有偏差的维度，返回偏差条数
func (s *Scheduler) Heal(ctx context.Context) (int, error) {
	drifts, err := s.healer.Verify(ctx)
	if err != nil {
		return 0, err
	}
	if len(drifts) == 0 {
		return 0, nil
	}

	seen := make(map[model.Dimension]bool)
	var dims []model.Dimension
	for _, d := range drifts {
		if !seen[d.Key.Dimension] {
			seen[d.Key.Dimension] = true
			dims = append(dims, d.Key.Dimension)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"drifts":     len(drifts),
		"dimensions": dims,
	}).Warn("summary drift detected, recomputing")

	if _, err := s.healer.Recompute(ctx, dims...); err != nil {
		return len(drifts), err
	}
	return len(drifts), nil
}
