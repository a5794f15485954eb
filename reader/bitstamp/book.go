package bitstamp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	appconfig "orderflow/config"
	"orderflow/internal/metrics"
	"orderflow/internal/symbols"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/reader"
)

// Book streams the Bitstamp live order book channel (order_book_<pair>).
// Every data event carries the top of the book and replaces the previous one.
type Book struct {
	config  *appconfig.Config
	sink    reader.Sink
	pair    string
	depth   int
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewBook(cfg *appconfig.Config, sink reader.Sink) *Book {
	return &Book{
		config: cfg,
		sink:   sink,
		pair:   symbols.ForSource(models.SourceBitstamp, cfg.Instrument),
		depth:  cfg.Aggregator.Depth,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (r *Book) Name() string {
	return models.SourceBitstamp.String()
}

func (r *Book) Channel() string {
	return "order_book_" + r.pair
}

// Start connects and subscribes in the background.
func (r *Book) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("bitstamp book reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Bitstamp
	log := r.log.WithComponent("bitstamp_reader").WithFields(logger.Fields{
		"channel": r.Channel(),
		"url":     cfg.URL,
	})
	log.Info("starting bitstamp book reader")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		runWebSocket(ctx, cfg.URL, r.Channel(), cfg.ReconnectDelay, cfg.KeepAlive, log, r.handleMessage)
	}()

	return nil
}

// Stop waits for the connection loop to exit after the Start context ends.
func (r *Book) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("bitstamp_reader").Info("stopping bitstamp book reader")
	r.wg.Wait()
	r.log.WithComponent("bitstamp_reader").Info("bitstamp book reader stopped")
}

func (r *Book) handleMessage(payload []byte) error {
	log := r.log.WithComponent("bitstamp_reader").WithFields(logger.Fields{"channel": r.Channel()})

	snap, event, err := Decode(payload, r.depth, time.Now().UTC())
	if err != nil {
		log.WithError(err).Warn("dropping unparsable bitstamp message")
		metrics.IncrementDropped(r.Name(), "parse")
		return nil
	}

	switch event {
	case "data":
	case "bts:request_reconnect":
		return errReconnectRequested
	case "bts:error":
		log.WithFields(logger.Fields{"payload": string(payload)}).Warn("bitstamp reported an error")
		return nil
	default:
		log.WithFields(logger.Fields{"event": event}).Debug("ignoring bitstamp event")
		return nil
	}

	snap.Symbol = r.pair
	if err := r.sink.SendRaw(r.ctx, snap); err != nil {
		if r.ctx.Err() == nil {
			log.WithError(err).Warn("failed to enqueue bitstamp snapshot")
		}
		return nil
	}
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.LogDataFlowEntry(log, "bitstamp_ws", "raw_channel", len(snap.Book.Bids)+len(snap.Book.Asks), "book_levels")
	}
	return nil
}

// Decode parses one Bitstamp websocket frame. For "data" events the returned
// snapshot holds at most depth levels per side; other events return only
// their name.
func Decode(payload []byte, depth int, at time.Time) (models.Snapshot, string, error) {
	var msg models.BitstampMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.Snapshot{}, "", fmt.Errorf("%w: %v", reader.ErrParse, err)
	}
	if msg.Event != "data" {
		return models.Snapshot{}, msg.Event, nil
	}

	var data models.BitstampBookData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return models.Snapshot{}, msg.Event, fmt.Errorf("%w: book data: %v", reader.ErrParse, err)
	}
	bids, err := reader.ParseLevels(models.SourceBitstamp, data.Bids, depth)
	if err != nil {
		return models.Snapshot{}, msg.Event, fmt.Errorf("bitstamp bids: %w", err)
	}
	asks, err := reader.ParseLevels(models.SourceBitstamp, data.Asks, depth)
	if err != nil {
		return models.Snapshot{}, msg.Event, fmt.Errorf("bitstamp asks: %w", err)
	}

	return models.Snapshot{
		Source:     models.SourceBitstamp,
		Book:       models.OrderBook{Bids: bids, Asks: asks},
		ReceivedAt: at,
	}, msg.Event, nil
}
