package broker

import (
	"context"
	"log"
	"time"

	"github.com/pairly/chat-app/internal/metrics"
)

// StartReconciler runs the periodic housekeeping sweep in a background
// goroutine until ctx is cancelled. The sweep is best-effort self-healing;
// the event-driven paths stay correct without it.
func StartReconciler(ctx context.Context, c *Controller) {
	go func() {
		ticker := time.NewTicker(ReconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[reconciler] stopped")
				return
			case <-ticker.C:
				c.reconcile(time.Now())
			}
		}
	}()
}

// reconcile removes waiting entries whose connection died or whose wait
// exceeded the retention window, and dissolves pairs with a dead side. Call
// markers for every evicted connection are cleared afterwards.
func (c *Controller) reconcile(now time.Time) {
	var dead []string
	evictedPool := 0
	evictedPairs := 0

	c.mu.Lock()

	for _, mode := range c.pools.Modes() {
		pool := c.pools.Pool(mode)
		for _, client := range pool.Snapshot() {
			if client.Live() && now.Sub(client.JoinedAt) <= RetentionWindow {
				continue
			}
			pool.Remove(client.ID)
			c.cancelTimerLocked(client.ID)
			dead = append(dead, client.ID)
			evictedPool++
		}
	}

	for _, pair := range c.pairs.Entries() {
		a, b := pair[0], pair[1]
		if c.registry.IsLive(a) && c.registry.IsLive(b) {
			continue
		}
		c.pairs.Unpair(a)
		dead = append(dead, a, b)
		evictedPairs++
	}

	c.mu.Unlock()

	for _, id := range dead {
		c.endCallMarkers(id)
	}

	if evictedPool > 0 || evictedPairs > 0 {
		metrics.ReconcilerEvictionsTotal.WithLabelValues("pool").Add(float64(evictedPool))
		metrics.ReconcilerEvictionsTotal.WithLabelValues("pair").Add(float64(evictedPairs))
		log.Printf("[reconciler] removed %d stale waiting entries, %d stale pairs", evictedPool, evictedPairs)
		c.updateGauges()
	}
}
