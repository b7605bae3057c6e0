package platform

import (
	"context"
	"time"
)

// ShutdownTimeout bounds the finalizer writes once the run context is gone.
const ShutdownTimeout = 10 * time.Second

// Shutdown persists the checkpoint and then the best record. It runs at most
// once per Controller; later calls are no-ops. Failures are logged and do not
// stop the remaining write.
func (c *Controller) Shutdown(ctx context.Context) {
	c.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()

		c.pacer.Stop()
		c.saveCheckpoint(ctx)
		c.saveBest(ctx)
	})
}

func (c *Controller) saveCheckpoint(ctx context.Context) {
	if c.cfg.Population == nil {
		return
	}
	population, err := c.cfg.Population()
	if err != nil {
		c.log.Error("encode population for checkpoint", "error", err)
		return
	}
	if len(population) == 0 {
		return
	}
	if err := c.cfg.Checkpoints.Save(ctx, population, c.state.Generation, c.state.Snapshot); err != nil {
		c.log.Error("save checkpoint", "error", err)
		return
	}
	c.log.Info("checkpoint saved", "generation", c.state.Generation, "snapshot", c.state.Snapshot != nil)
}

func (c *Controller) saveBest(ctx context.Context) {
	genome, fitness, generation, ok := c.state.Best.Best()
	if !ok {
		return
	}
	if err := c.cfg.Best.Save(ctx, genome, fitness, generation); err != nil {
		c.log.Error("save best genome", "error", err)
		return
	}
	c.log.Info("best genome saved", "genome", genome.ID, "fitness", fitness, "generation", generation)
}
