package cooldown

import (
	"context"
	"time"

	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Sweeper runs Store.Sweep on a fixed interval, fully decoupled from the
// request path. Start returns immediately; Stop blocks until the loop exits.
type Sweeper struct {
	store    *Store
	interval time.Duration
	timeout  time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		timeout:  30 * time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			removed, err := s.store.Sweep(ctx)
			cancel()
			if err != nil {
				logger.Warn("cooldown sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("cooldown sweep completed", zap.Int64("removed", removed))
			}
		}
	}
}
