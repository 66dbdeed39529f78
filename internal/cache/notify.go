package cache

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/glommer/cachebro/internal/watcher"
)

// Consume applies watcher events until ctx is done or events is closed.
// Errors are logged, never returned: reads stay correct without events.
func (c *Cache) Consume(ctx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.apply(ctx, ev); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				log.Printf("⚠️  Failed to apply %s event for %s: %v", ev.Kind, ev.Path, err)
			}
		}
	}
}

func (c *Cache) apply(ctx context.Context, ev watcher.Event) error {
	if ev.Kind == watcher.Deleted && gone(ev.Path) {
		return c.OnPathDeleted(ctx, ev.Path)
	}
	// A delete followed by a recreate lands here.
	log.Printf("📝 %s changed", ev.Path)
	return c.OnPathChanged(ctx, ev.Path)
}

func gone(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}
