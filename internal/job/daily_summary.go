package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookstore/internal/model"

	"github.com/robfig/cron/v3"
)

// SummaryGenerator 由 FinancialService 实现
type SummaryGenerator interface {
	GenerateDailySummary(ctx context.Context, date time.Time) (*model.FinancialSummary, error)
}

// DailySummaryJob 定时重算昨天和今天的财务汇总快照
// 昨天的流水可能在零点后才补录，所以每次都把昨天一起重算
type DailySummaryJob struct {
	generator SummaryGenerator
	schedule  string
	timeout   time.Duration
	now       func() time.Time
	cron      *cron.Cron
	logger    *slog.Logger
}

func NewDailySummaryJob(generator SummaryGenerator, schedule string) *DailySummaryJob {
	return &DailySummaryJob{
		generator: generator,
		schedule:  schedule,
		timeout:   5 * time.Minute,
		now:       time.Now,
		logger:    slog.Default().With("job", "DailySummaryJob"),
	}
}

// Start 注册 cron 任务并在后台运行，上一次未结束时跳过本次
func (j *DailySummaryJob) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(j.schedule, j.run); err != nil {
		return fmt.Errorf("注册每日汇总任务失败: %w", err)
	}
	j.cron = c
	c.Start()
	j.logger.Info("每日汇总任务启动", "schedule", j.schedule)
	return nil
}

// Stop 等待正在执行的任务结束
func (j *DailySummaryJob) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info("任务停止")
}

func (j *DailySummaryJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("生成每日汇总失败", "error", err)
	}
}

// RunOnce 重算昨天和今天
func (j *DailySummaryJob) RunOnce(ctx context.Context) error {
	today := j.now()
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		summary, err := j.generator.GenerateDailySummary(ctx, day)
		if err != nil {
			return fmt.Errorf("日期 %s: %w", day.Format("2006-01-02"), err)
		}
		j.logger.Info("每日汇总已更新", "date", summary.SummaryDate)
	}
	return nil
}
