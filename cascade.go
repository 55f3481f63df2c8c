package cascade

import "time"

// runCascade advances the background stages after Start has returned control
// to the application: sleep, initialize the fast tier, sleep, initialize the
// slow tier. The two tiers run strictly in that order so slow, expensive
// services never starve fast ones. Failures are logged here and never
// propagate to the startup path.
func (c *Container) runCascade(stopCh, immediateDone <-chan struct{}) {
	// The fast tier must never begin before the immediate tier has fully
	// settled.
	select {
	case <-stopCh:
		return
	case <-immediateDone:
	}

	steps := []struct {
		delay time.Duration
		stage Stage
	}{
		{c.cfg.FastDelay, StageBackgroundFast},
		{c.cfg.SlowDelay, StageBackgroundSlow},
	}

	for _, step := range steps {
		timer := time.NewTimer(step.delay)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.logger.Debug("cascade stage starting", "stage", step.stage.String())
		if err := c.InitializeStage(c.lifeCtx, step.stage); err != nil {
			c.logger.Error("cascade stage failed", "stage", step.stage.String(), "error", err)
			continue
		}
		c.logger.Debug("cascade stage settled", "stage", step.stage.String())
	}
}
