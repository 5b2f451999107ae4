// Package history keeps the last known list of past interactions.
package history

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"lumen/internal/domain"
	"lumen/internal/metrics"
	"lumen/internal/ports"
)

// Cache holds the history as returned by the remote service. Every successful
// refresh replaces the whole sequence; a failed refresh keeps the previous one.
// When refreshes overlap, the one started last wins regardless of which
// response arrives last.
type Cache struct {
	fetcher ports.HistoryFetcher
	logger  zerolog.Logger
	metrics *metrics.Metrics

	issued atomic.Uint64

	mu      sync.Mutex
	stored  uint64
	entries atomic.Pointer[[]domain.HistoryEntry]
}

func NewCache(fetcher ports.HistoryFetcher, logger zerolog.Logger, m *metrics.Metrics) *Cache {
	c := &Cache{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "history-cache").Logger(),
		metrics: m,
	}
	empty := []domain.HistoryEntry{}
	c.entries.Store(&empty)
	return c
}

// Refresh fetches the full history and swaps it in unless a refresh started
// later has already been applied.
func (c *Cache) Refresh(ctx context.Context) error {
	generation := c.issued.Add(1)

	fetched, err := c.fetcher.FetchHistory(ctx)
	if err != nil {
		return err
	}

	next := make([]domain.HistoryEntry, len(fetched))
	for i, e := range fetched {
		next[i] = cloneEntry(e)
	}

	c.mu.Lock()
	if generation < c.stored {
		c.mu.Unlock()
		c.logger.Debug().Uint64("generation", generation).Msg("superseded history response dropped")
		return nil
	}
	c.stored = generation
	c.entries.Store(&next)
	c.mu.Unlock()

	c.metrics.HistorySize(len(next))
	c.logger.Debug().Int("entries", len(next)).Msg("history refreshed")
	return nil
}

// Entries returns a copy of the cached sequence in remote order.
func (c *Cache) Entries() []domain.HistoryEntry {
	current := *c.entries.Load()
	out := make([]domain.HistoryEntry, len(current))
	for i, e := range current {
		out[i] = cloneEntry(e)
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(*c.entries.Load())
}

func cloneEntry(e domain.HistoryEntry) domain.HistoryEntry {
	if e.ImageData != nil {
		e.ImageData = append([]byte(nil), e.ImageData...)
	}
	return e
}
