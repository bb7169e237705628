package remote

import (
	"context"
	"time"

	"github.com/tbourn/today-feed-cache/internal/sysutil"
)

const defaultProbeInterval = 30 * time.Second

// Pinger checks whether the content API is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober polls a Pinger and reports reachability transitions.
type Prober struct {
	Target   Pinger
	Interval time.Duration
	Timeout  time.Duration
}

// Start launches the polling goroutine and returns immediately. The first
// result is always sent; after that only changes are. The channel is closed
// once ctx is done.
func (p *Prober) Start(ctx context.Context) <-chan bool {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	out := make(chan bool, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger := sysutil.Component("prober")
		var last, known bool
		for {
			online := p.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if !known || online != last {
				logger.Info().Bool("online", online).Msg("content api reachability changed")
				select {
				case out <- online:
				case <-ctx.Done():
					return
				}
				last, known = online, true
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

func (p *Prober) probe(ctx context.Context) bool {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if err := p.Target.Ping(ctx); err != nil {
		logger := sysutil.Component("prober")
		logger.Debug().Err(err).Msg("probe failed")
		return false
	}
	return true
}
