package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"linkforge-backend/shared/logger"
	"linkforge-backend/shared/metrics"
)

// Locker grants a named lease. release is safe to call once the lease has expired.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error)
}

// JanitorTask is one periodic maintenance job
type JanitorTask struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Janitor runs maintenance tasks on an interval. Each task runs under a lock
// so that only one replica performs it per tick.
type Janitor struct {
	interval time.Duration
	locker   Locker
	tasks    []JanitorTask
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewJanitor creates a Janitor
func NewJanitor(interval time.Duration, locker Locker, log *zap.Logger, tasks ...JanitorTask) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{
		interval: interval,
		locker:   locker,
		tasks:    tasks,
		log:      logger.OrNop(log).Named("janitor"),
	}
}

// Start runs the tasks immediately and then on every tick until ctx is done
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				j.log.Info("janitor stopped")
				return
			case <-ticker.C:
				j.RunOnce(ctx)
			}
		}
	}()
}

// Wait blocks until a started janitor has stopped
func (j *Janitor) Wait() {
	j.wg.Wait()
}

// RunOnce runs every task a single time
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, task := range j.tasks {
		if ctx.Err() != nil {
			return
		}
		j.runTask(ctx, task)
	}
}

func (j *Janitor) runTask(ctx context.Context, task JanitorTask) {
	release, acquired, err := j.locker.TryLock(ctx, task.Name, j.interval)
	if err != nil {
		metrics.JanitorRuns.WithLabelValues(task.Name, "error").Inc()
		j.log.Error("failed to acquire janitor lock", zap.String("task", task.Name), zap.Error(err))
		return
	}
	if !acquired {
		metrics.JanitorRuns.WithLabelValues(task.Name, "skipped").Inc()
		j.log.Debug("janitor task held by another instance", zap.String("task", task.Name))
		return
	}
	defer release()

	start := time.Now()
	count, err := task.Run(ctx)
	if err != nil {
		metrics.JanitorRuns.WithLabelValues(task.Name, "error").Inc()
		j.log.Error("janitor task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}

	metrics.JanitorRuns.WithLabelValues(task.Name, "ok").Inc()
	j.log.Debug("janitor task finished",
		zap.String("task", task.Name),
		zap.Int("affected", count),
		zap.Duration("took", time.Since(start)),
	)
}

// MaintenanceTasks returns the standard janitor tasks. archiver may be nil.
func MaintenanceTasks(sessions *SessionManager, reconciler *Reconciler, archiver *AuditArchiver) []JanitorTask {
	tasks := []JanitorTask{
		{Name: "expired-sessions", Run: func(ctx context.Context) (int, error) {
			n, err := sessions.CleanupExpiredSessions(ctx)
			return int(n), err
		}},
		{Name: "reconcile-impersonation", Run: reconciler.Run},
	}
	if archiver != nil {
		tasks = append(tasks, JanitorTask{Name: "archive-audit", Run: archiver.Run})
	}
	return tasks
}
