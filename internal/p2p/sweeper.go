package p2p

import (
	"context"
	"time"

	"gopkg.in/tomb.v2"
)

// Sweeper periodically cancels orders whose payment window has passed.
type Sweeper struct {
	tomb.Tomb
	svc      *Service
	interval time.Duration
}

// StartSweeper runs the first sweep immediately and then every interval.
func StartSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	sw := &Sweeper{svc: svc, interval: interval}
	sw.Go(sw.run)
	return sw
}

func (sw *Sweeper) run() error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		sw.sweep()
		select {
		case <-ticker.C:
		case <-sw.Dying():
			return nil
		}
	}
}

func (sw *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(sw.Context(nil), sw.interval)
	defer cancel()
	n, err := sw.svc.ExpireOverdue(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("order sweep failed")
		return
	}
	if n > 0 {
		logger.Info().Int("cancelled", n).Msg("expired orders cancelled")
	}
}

// Stop kills the sweeper and waits for the current sweep to finish.
func (sw *Sweeper) Stop() error {
	sw.Kill(nil)
	return sw.Wait()
}
