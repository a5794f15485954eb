package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"orderflow/logger"
	"orderflow/models"
)

// ErrClosed is returned by a send on a queue that has already been closed.
var ErrClosed = errors.New("channel: queue closed")

type ChannelStats struct {
	RawSent         int64
	MergedSent      int64
	RawHighWater    int
	MergedHighWater int
}

// Channels holds the two bounded queues of the pipeline: Raw carries
// normalized snapshots from the sources to the aggregator and Merged
// carries consolidated books from the aggregator to the distributor.
// Sends block while a queue is full.
type Channels struct {
	Raw    chan models.Snapshot
	Merged chan models.OrderBook

	rawClosed    bool
	mergedClosed bool
	closeMu      sync.RWMutex

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, mergedBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:    make(chan models.Snapshot, rawBufferSize),
		Merged: make(chan models.OrderBook, mergedBufferSize),
		log:    log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":    rawBufferSize,
		"merged_buffer_size": mergedBufferSize,
	}).Info("channels initialized")

	return c
}

// SendRaw enqueues a snapshot, waiting for room when the queue is full.
// It returns the context error if ctx ends first.
func (c *Channels) SendRaw(ctx context.Context, snap models.Snapshot) error {
	c.closeMu.RLock()
	closed := c.rawClosed
	c.closeMu.RUnlock()
	if closed {
		return ErrClosed
	}

	select {
	case c.Raw <- snap:
		c.statsMutex.Lock()
		c.stats.RawSent++
		if n := len(c.Raw); n > c.stats.RawHighWater {
			c.stats.RawHighWater = n
		}
		c.statsMutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMerged enqueues a merged book, waiting for room when the queue is full.
func (c *Channels) SendMerged(ctx context.Context, book models.OrderBook) error {
	c.closeMu.RLock()
	closed := c.mergedClosed
	c.closeMu.RUnlock()
	if closed {
		return ErrClosed
	}

	select {
	case c.Merged <- book:
		c.statsMutex.Lock()
		c.stats.MergedSent++
		if n := len(c.Merged); n > c.stats.MergedHighWater {
			c.stats.MergedHighWater = n
		}
		c.statsMutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseRaw closes the inbound queue. Producers must have returned before it
// is called; the aggregator drains what is left and then exits.
func (c *Channels) CloseRaw() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.rawClosed {
		return
	}
	c.rawClosed = true
	close(c.Raw)
	c.log.WithComponent("channels").Info("raw channel closed")
}

// CloseMerged closes the merged queue. Only the aggregator calls it.
func (c *Channels) CloseMerged() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.mergedClosed {
		return
	}
	c.mergedClosed = true
	close(c.Merged)
	c.log.WithComponent("channels").Info("merged channel closed")
}

// Close closes both queues.
func (c *Channels) Close() {
	c.CloseRaw()
	c.CloseMerged()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	stats := c.GetStats()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"raw_messages_sent":    stats.RawSent,
		"merged_messages_sent": stats.MergedSent,
		"raw_high_water":       stats.RawHighWater,
		"merged_high_water":    stats.MergedHighWater,
		"raw_channel_len":      len(c.Raw),
		"raw_channel_cap":      cap(c.Raw),
		"merged_channel_len":   len(c.Merged),
		"merged_channel_cap":   cap(c.Merged),
	}).Info("channel statistics")
}
