package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "orderflow/config"
	"orderflow/internal/metrics"
	"orderflow/internal/symbols"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/reader"

	binance "github.com/adshao/go-binance/v2"
	"github.com/sirupsen/logrus"
)

// Depth streams the top ten levels of one symbol every 100ms from the
// Binance partial book depth stream (<symbol>@depth10@100ms).
type Depth struct {
	config  *appconfig.Config
	sink    reader.Sink
	url     string
	symbol  string
	depth   int
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// UseStreamEndpoint points go-binance at url. The client library reads its
// websocket base from a package variable, so main calls this once at startup,
// before any Depth is started; nothing else in the process writes it.
func UseStreamEndpoint(url string) {
	if url != "" {
		binance.BaseWsMainURL = url
	}
}

// NewDepth creates the Binance source for source.binance.url.
func NewDepth(cfg *appconfig.Config, sink reader.Sink) *Depth {
	return &Depth{
		config: cfg,
		sink:   sink,
		url:    cfg.Source.Binance.URL,
		symbol: symbols.ForSource(models.SourceBinance, cfg.Instrument),
		depth:  cfg.Aggregator.Depth,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (r *Depth) Name() string {
	return models.SourceBinance.String()
}

// Start subscribes to the partial depth stream.
func (r *Depth) Start(ctx context.Context) error {
	if r.url != "" && r.url != binance.BaseWsMainURL {
		return fmt.Errorf("binance stream endpoint is %q, want %q: UseStreamEndpoint was not called", binance.BaseWsMainURL, r.url)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance depth reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"symbol": r.symbol,
		"url":    r.url,
	}).Info("starting binance depth reader")

	r.wg.Add(1)
	go r.streamSymbol()

	return nil
}

// Stop waits for the stream goroutine to return. The context passed to
// Start must be cancelled first.
func (r *Depth) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_reader").Info("stopping binance depth reader")
	r.wg.Wait()
	r.log.WithComponent("binance_reader").Info("binance depth reader stopped")
}

func (r *Depth) streamSymbol() {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": r.symbol,
		"worker": "depth_stream",
	})

	reconnectDelay := r.config.Source.Binance.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	for {
		if r.ctx.Err() != nil {
			return
		}
		r.serve(log)
		if r.ctx.Err() != nil {
			return
		}

		log.WithFields(logger.Fields{"delay": reconnectDelay.String()}).Warn("depth stream ended, reconnecting")
		timer := time.NewTimer(reconnectDelay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Depth) serve(log *logger.Entry) {
	handler := func(event *binance.WsPartialDepthEvent) {
		snap, err := r.normalize(event)
		if err != nil {
			log.WithError(err).Warn("dropping unparsable depth event")
			metrics.IncrementDropped(r.Name(), "parse")
			return
		}

		if err := r.sink.SendRaw(r.ctx, snap); err != nil {
			if r.ctx.Err() == nil {
				log.WithError(err).Warn("failed to enqueue depth snapshot")
			}
			return
		}
		if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			logger.LogDataFlowEntry(log, "binance_ws", "raw_channel", len(snap.Book.Bids)+len(snap.Book.Asks), "depth_levels")
		}
	}

	errHandler := func(err error) {
		if err != nil && r.ctx.Err() == nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	doneC, stopC, err := binance.WsPartialDepthServe100Ms(r.symbol, "10", handler, errHandler)
	if err != nil {
		log.WithError(err).Error("failed to subscribe to partial depth stream")
		return
	}
	log.Info("subscribed to partial depth stream")

	select {
	case <-r.ctx.Done():
		close(stopC)
		<-doneC
	case <-doneC:
	}
}

func (r *Depth) normalize(event *binance.WsPartialDepthEvent) (models.Snapshot, error) {
	bids := make([][]string, 0, len(event.Bids))
	for _, b := range event.Bids {
		bids = append(bids, []string{b.Price, b.Quantity})
	}
	asks := make([][]string, 0, len(event.Asks))
	for _, a := range event.Asks {
		asks = append(asks, []string{a.Price, a.Quantity})
	}
	return Normalize(r.symbol, bids, asks, r.depth, time.Now().UTC())
}

// Normalize builds a snapshot from Binance [price, quantity] rows.
func Normalize(symbol string, bids, asks [][]string, depth int, at time.Time) (models.Snapshot, error) {
	bidLevels, err := reader.ParseLevels(models.SourceBinance, bids, depth)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("binance bids: %w", err)
	}
	askLevels, err := reader.ParseLevels(models.SourceBinance, asks, depth)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("binance asks: %w", err)
	}
	return models.Snapshot{
		Source:     models.SourceBinance,
		Symbol:     symbol,
		Book:       models.OrderBook{Bids: bidLevels, Asks: askLevels},
		ReceivedAt: at,
	}, nil
}
