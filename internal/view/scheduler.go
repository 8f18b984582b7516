package view

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// refreshTimeout bounds a single automatic refresh.
const refreshTimeout = time.Minute

// Start schedules the automatic refresh. The first run happens one interval
// after Start; ticks without a bundle on screen do nothing. Calling Start on
// a running view is a no-op.
func (v *View) Start(ctx context.Context) error {
	v.schedMu.Lock()
	defer v.schedMu.Unlock()

	if v.scheduler != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(v.opts.RefreshInterval).WaitForSchedule().Do(func() {
		v.autoRefresh(runCtx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.StartAsync()
	v.scheduler = s
	v.cancelRun = cancel

	v.logger.Info("Auto-refresh started", zap.Duration("interval", v.opts.RefreshInterval))
	return nil
}

// Stop cancels the automatic refresh and any refresh in flight.
func (v *View) Stop() {
	v.schedMu.Lock()
	defer v.schedMu.Unlock()

	if v.scheduler == nil {
		return
	}

	v.cancelRun()
	v.scheduler.Stop()
	v.scheduler = nil
	v.cancelRun = nil

	v.logger.Info("Auto-refresh stopped")
}

func (v *View) autoRefresh(ctx context.Context) {
	if ctx.Err() != nil || !v.HasData() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	v.logger.Debug("Auto-refresh tick")
	v.Refresh(ctx)
}
