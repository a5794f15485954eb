package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	appconfig "orderflow/config"
	"orderflow/internal/channel"
	"orderflow/internal/metrics"
	"orderflow/logger"
	"orderflow/models"
)

type sourceBook struct {
	book models.OrderBook
	at   time.Time
}

// Aggregator keeps the last snapshot of every source and re-merges them
// into one consolidated book each time a snapshot arrives. A single
// goroutine owns the per-source state.
type Aggregator struct {
	config     *appconfig.Config
	channels   *channel.Channels
	depth      int
	staleAfter time.Duration
	debug      bool
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
	now        func() time.Time

	books map[models.SourceID]sourceBook
	stale map[models.SourceID]bool

	latestMu sync.RWMutex
	latest   models.OrderBook

	// Metrics
	updatesProcessed int64
	booksMerged      int64
	updatesDropped   int64
}

func NewAggregator(cfg *appconfig.Config, ch *channel.Channels) *Aggregator {
	depth := cfg.Aggregator.Depth
	if depth <= 0 {
		depth = models.DepthLimit
	}
	return &Aggregator{
		config:     cfg,
		channels:   ch,
		depth:      depth,
		staleAfter: cfg.Aggregator.StaleAfter,
		debug:      cfg.Debug,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
		now:        time.Now,
		books:      make(map[models.SourceID]sourceBook),
		stale:      make(map[models.SourceID]bool),
	}
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("aggregator already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"depth":       a.depth,
		"stale_after": a.staleAfter.String(),
	}).Info("starting aggregator")

	a.wg.Add(1)
	go a.run()

	return nil
}

// Stop waits for the merge loop to exit. The loop ends when the raw queue
// is closed or the Start context is cancelled.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("aggregator").Info("stopping aggregator")
	a.wg.Wait()
	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"updates_processed": a.updatesProcessed,
		"books_merged":      a.booksMerged,
		"updates_dropped":   a.updatesDropped,
	}).Info("aggregator stopped")
}

func (a *Aggregator) run() {
	defer a.wg.Done()
	defer a.channels.CloseMerged()

	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{"worker": "merge_loop"})

	for {
		select {
		case <-a.ctx.Done():
			log.Info("merge loop stopped due to context cancellation")
			return
		case snap, ok := <-a.channels.Raw:
			if !ok {
				log.Info("raw channel closed, merge loop stopping")
				return
			}

			start := time.Now()
			book, err := a.OnUpdate(snap)
			if err != nil {
				a.updatesDropped++
				logger.IncrementDropped()
				metrics.IncrementDropped(snap.Source.String(), "malformed")
				log.WithError(err).WithFields(logger.Fields{"source": snap.Source.String()}).Warn("dropping malformed snapshot")
				continue
			}

			if err := a.channels.SendMerged(a.ctx, book); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.WithError(err).Warn("merged channel unavailable, merge loop stopping")
				}
				return
			}
			if a.debug {
				logger.LogPerformanceEntry(log, "aggregator", "merge", time.Since(start), logger.Fields{
					"source": snap.Source.String(),
				})
			}
		}
	}
}

// OnUpdate replaces the stored snapshot for snap.Source and returns the
// newly merged book. A snapshot that fails validation is rejected and the
// stored state is left as it was.
func (a *Aggregator) OnUpdate(snap models.Snapshot) (models.OrderBook, error) {
	if err := snap.Validate(a.depth); err != nil {
		return models.OrderBook{}, err
	}

	at := snap.ReceivedAt
	if at.IsZero() {
		at = a.now()
	}
	a.books[snap.Source] = sourceBook{book: snap.Book.Clone(), at: at}
	a.updatesProcessed++
	logger.IncrementSourceUpdate(snap.Source.String())
	metrics.IncrementSourceUpdate(snap.Source.String())

	merged := Merge(a.currentBooks(), a.depth)

	a.latestMu.Lock()
	a.latest = merged
	a.latestMu.Unlock()

	a.booksMerged++
	logger.IncrementMerged()
	bid, hasBid := merged.BestBid()
	ask, hasAsk := merged.BestAsk()
	metrics.ObserveMerged(merged.Spread, bid.Price, ask.Price, hasBid, hasAsk)

	if a.debug {
		a.log.WithComponent("aggregator").WithFields(logger.Fields{
			"source": snap.Source.String(),
			"bids":   len(merged.Bids),
			"asks":   len(merged.Asks),
			"spread": merged.Spread,
		}).Debug("merged book")
	}

	return merged.Clone(), nil
}

// currentBooks lists the stored books in ascending source order, leaving
// out sources considered stale.
func (a *Aggregator) currentBooks() []models.OrderBook {
	ids := make([]models.SourceID, 0, len(a.books))
	for id := range a.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := a.now()
	books := make([]models.OrderBook, 0, len(ids))
	for _, id := range ids {
		sb := a.books[id]
		if a.staleAfter > 0 {
			isStale := now.Sub(sb.at) > a.staleAfter
			if isStale != a.stale[id] {
				a.stale[id] = isStale
				entry := a.log.WithComponent("aggregator").WithFields(logger.Fields{
					"source":      id.String(),
					"last_update": sb.at,
				})
				if isStale {
					entry.Warn("source is stale, excluding it from the merge")
				} else {
					entry.Info("source is fresh again")
				}
			}
			if isStale {
				continue
			}
		}
		books = append(books, sb.book)
	}
	return books
}

// Latest returns a copy of the most recently merged book.
func (a *Aggregator) Latest() models.OrderBook {
	a.latestMu.RLock()
	defer a.latestMu.RUnlock()
	return a.latest.Clone()
}

// Merge concatenates the sides of books in the given order, sorts bids by
// descending and asks by ascending price, and keeps depth levels per side.
// Equal prices keep their concatenation order. Spread is best ask minus best
// bid, or 0 when either side is empty.
func Merge(books []models.OrderBook, depth int) models.OrderBook {
	var bids, asks []models.Level
	for _, b := range books {
		bids = append(bids, b.Bids...)
		asks = append(asks, b.Asks...)
	}

	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	if len(bids) > depth {
		bids = bids[:depth]
	}
	if len(asks) > depth {
		asks = asks[:depth]
	}

	out := models.OrderBook{Bids: bids, Asks: asks}
	if len(bids) > 0 && len(asks) > 0 {
		out.Spread = asks[0].Price - bids[0].Price
	}
	return out
}
