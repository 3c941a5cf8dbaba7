package manager

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Backoff applied after a failed or panicked tick before the loop resumes
// its normal cadence.
const loopErrorBackoff = time.Second

// Run starts the background loops and blocks until ctx is canceled. Loop
// errors are contained: a failing tick logs, backs off and retries; it never
// terminates the group.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.runLoop(gctx, "monitor", m.pollInterval, m.monitorTick) })
	g.Go(func() error { return m.runLoop(gctx, "idle_evictor", m.idleSweepInterval, m.idleSweep) })
	g.Go(func() error { return m.runLoop(gctx, "optimizer", m.optimizationInterval, m.optimizeTick) })
	if m.predictiveEnabled {
		g.Go(func() error { return m.runLoop(gctx, "predictor", m.predictorInterval, m.predictorTick) })
	} else {
		m.log.Info().Msg("predictive loading disabled")
	}
	return g.Wait()
}

func (m *Manager) runLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := m.safeTick(ctx, tick); err != nil {
		m.log.Warn().Str("loop", name).Err(err).Msg("initial tick failed")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.safeTick(ctx, tick); err != nil {
				m.log.Error().Str("loop", name).Err(err).Msg("tick failed")
				m.sleepWithContext(ctx, loopErrorBackoff)
			}
		}
	}
}

// safeTick contains panics so a misbehaving cycle cannot take down the other
// loops or the process.
func (m *Manager) safeTick(ctx context.Context, tick func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return tick(ctx)
}
