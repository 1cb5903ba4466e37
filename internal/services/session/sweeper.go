package session

import (
	"formcapture/pkg/errors"
	"formcapture/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Sweeper 定时清理空闲会话
type Sweeper struct {
	cron     *cron.Cron
	registry *Registry
}

// NewSweeper spec 为 cron 表达式，如 "@every 5m"
func NewSweeper(registry *Registry, spec string) (*Sweeper, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { registry.Sweep() }); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParameter, "无效的会话清理周期: "+spec)
	}
	return &Sweeper{cron: c, registry: registry}, nil
}

func (s *Sweeper) Start() {
	logger.Info("会话清理任务已启动")
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的清理结束
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("会话清理任务已停止")
}
