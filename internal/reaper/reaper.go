// Package reaper 负责回收空置的房间以约束内存占用。
package reaper

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"whiteboard-relay/internal/room"
)

// Scheduler 在成员数减少后做即时检查，并周期性扫描全部房间。
// 回收条件：房间存在、成员数为零、距创建时间已超过 after。
// 判定基于 createdAt 而不是最后活跃时间；有成员的房间永远不会被回收。
type Scheduler struct {
	registry *room.Registry
	after    time.Duration
	interval time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// Option 配置 Scheduler 的可选参数。
type Option func(*Scheduler)

// WithClock 替换 Scheduler 使用的时钟，供测试控制回收判定的时间。
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now == nil {
			panic("clock function cannot be nil for Scheduler")
		}
		s.now = now
	}
}

// NewScheduler 创建 Scheduler 实例。
// after 是空房间的回收时间窗，interval 是周期性扫描的间隔。
func NewScheduler(registry *room.Registry, after, interval time.Duration, opts ...Option) *Scheduler {
	if registry == nil {
		panic("Registry cannot be nil for Scheduler")
	}
	if after <= 0 {
		panic("after duration must be positive for Scheduler")
	}
	if interval <= 0 {
		panic("interval duration must be positive for Scheduler")
	}
	s := &Scheduler{
		registry: registry,
		after:    after,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndReap 对单个房间做一次即时回收判定。
// 房间不存在时为 no-op。成员检查和删除由注册表在一个临界区内完成，
// 与并发的 join 没有竞争窗口。
func (s *Scheduler) CheckAndReap(roomID string) {
	rm, ok := s.registry.Get(roomID)
	if !ok {
		return
	}
	age := s.now().Sub(rm.CreatedAt())
	if age < s.after {
		return
	}
	if !s.registry.RemoveIfEmpty(roomID) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"age":     age.String(),
	}).Info("Reaped empty room")
}

// Run 启动周期性扫描循环，直到 Stop 被调用。
// 应该在单独的 goroutine 中运行。
func (s *Scheduler) Run() {
	logrus.WithFields(logrus.Fields{
		"component": "reaper",
		"after":     s.after.String(),
		"interval":  s.interval.String(),
	}).Info("Reaper scheduler is running...")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			logrus.WithField("component", "reaper").Info("Reaper scheduler stopped")
			return
		}
	}
}

// Sweep 对当前全部房间执行一次回收判定。
func (s *Scheduler) Sweep() {
	for _, id := range s.registry.IDs() {
		s.CheckAndReap(id)
	}
}

// Stop 终止周期性扫描。可安全地重复调用。
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
