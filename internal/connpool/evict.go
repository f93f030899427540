package connpool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (p *Pool) evictLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.TimeoutCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if n := p.evictIdle(); n > 0 {
				p.logger.Debug("evicted idle connections", zap.Int("count", n))
			}
		}
	}
}

// evictIdle closes connections idle longer than IdleTimeout, never going
// below MinSize, then tops the pool back up to MinSize. It returns the number
// of evicted connections.
func (p *Pool) evictIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}

	evicted := 0
	if p.cfg.IdleTimeout > 0 {
		total := p.res.Stat().TotalResources()
		for _, res := range p.res.AcquireAllIdle() {
			if total > p.cfg.MinSize && res.IdleDuration() > p.cfg.IdleTimeout {
				p.destroy(res)
				total--
				evicted++
				continue
			}
			// ReleaseUnused keeps the idle clock running.
			res.ReleaseUnused()
		}
		p.evicted.Add(int64(evicted))
	}

	p.replenishLocked()
	return evicted
}

// replenishAsync tops the pool up to MinSize in the background.
func (p *Pool) replenishAsync() {
	if p.cfg.MinSize == 0 {
		return
	}
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.closed {
			p.replenishLocked()
		}
	}()
}

func (p *Pool) replenishLocked() {
	for p.res.Stat().TotalResources() < p.cfg.MinSize {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
		err := p.res.CreateResource(ctx)
		cancel()
		if err != nil {
			p.logger.Warn("failed to replenish connection pool", zap.Error(err))
			return
		}
	}
}
