package region

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/source"
	"github.com/kilianp07/freightmatch/core/translit"
)

// Cache keeps the last Encoder built from the price history and rebuilds it
// when invalidated or when its TTL elapses. A zero TTL never expires.
type Cache struct {
	src  source.PriceSource
	ttl  time.Duration
	norm *translit.Normalizer
	log  logger.Logger
	now  func() time.Time

	mu    sync.Mutex
	enc   *Encoder
	built time.Time
}

// NewCache creates a Cache reading from src. Names are canonicalized with
// norm, which must be the Normalizer used on the query side.
func NewCache(src source.PriceSource, ttl time.Duration, norm *translit.Normalizer, log logger.Logger) *Cache {
	return &Cache{src: src, ttl: ttl, norm: translit.OrDefault(norm), log: logger.OrNop(log), now: time.Now}
}

// Encoder returns the cached Encoder, rebuilding it when stale.
func (c *Cache) Encoder(ctx context.Context) (*Encoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc != nil && (c.ttl <= 0 || c.now().Sub(c.built) < c.ttl) {
		return c.enc, nil
	}
	records, err := c.src.PriceRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load price records: %w", err)
	}
	c.enc = Build(VocabularyFrom(records, c.norm))
	c.built = c.now()
	c.log.Debugf("region vocabulary rebuilt with %d names", c.enc.Len())
	return c.enc, nil
}

// Invalidate drops the cached Encoder.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.enc = nil
	c.mu.Unlock()
}

// Watch invalidates the cache on every retrain event until ctx is done or
// events is closed.
func (c *Cache) Watch(ctx context.Context, events <-chan model.RetrainCompleted) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.log.Infof("retrain with %d samples completed, invalidating region vocabulary", ev.Samples)
			c.Invalidate()
		}
	}
}
