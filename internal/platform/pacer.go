package platform

import (
	"context"
	"time"
)

// Pacer holds the tick loop to a fixed frame rate. A zero rate runs
// unthrottled.
type Pacer struct {
	ticker *time.Ticker
}

func NewPacer(fps int) *Pacer {
	if fps <= 0 {
		return &Pacer{}
	}
	return &Pacer{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.ticker == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *Pacer) Stop() {
	if p != nil && p.ticker != nil {
		p.ticker.Stop()
	}
}
