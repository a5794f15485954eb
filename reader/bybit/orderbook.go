package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	appconfig "orderflow/config"
	"orderflow/internal/metrics"
	"orderflow/internal/symbols"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/reader"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Orderbook polls GET /v5/market/orderbook. Each response is a full top of
// book snapshot, so no local book is maintained.
type Orderbook struct {
	config  *appconfig.Config
	client  *bybit.Client
	limiter *rate.Limiter
	sink    reader.Sink
	symbol  string
	depth   int
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewOrderbook(cfg *appconfig.Config, sink reader.Sink) *Orderbook {
	log := logger.GetLogger()
	bcfg := cfg.Source.Bybit

	transport := &http.Transport{
		MaxIdleConns:        bcfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: bcfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     bcfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     bcfg.ConnectionPool.IdleConnTimeout,
	}
	if localIP := cfg.Source.LocalIP; localIP != "" {
		if ip := net.ParseIP(localIP); ip != nil {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
			transport.DialContext = dialer.DialContext
		}
	}
	httpClient := &http.Client{Transport: transport, Timeout: bcfg.Timeout}

	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(bcfg.URL))
	client.HTTPClient = httpClient

	var limiter *rate.Limiter
	if bcfg.RequestsPerSecond > 0 {
		burst := bcfg.BurstSize
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(bcfg.RequestsPerSecond), burst)
	}

	r := &Orderbook{
		config:  cfg,
		client:  client,
		limiter: limiter,
		sink:    sink,
		symbol:  symbols.ForSource(models.SourceBybit, cfg.Instrument),
		depth:   cfg.Aggregator.Depth,
		wg:      &sync.WaitGroup{},
		log:     log,
	}

	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol":  r.symbol,
		"timeout": bcfg.Timeout,
	}).Info("bybit orderbook reader initialized")

	return r
}

func (r *Orderbook) Name() string {
	return models.SourceBybit.String()
}

// Start launches the polling worker.
func (r *Orderbook) Start(ctx context.Context) error {
	cfg := r.config.Source.Bybit
	if cfg.IntervalMs <= 0 {
		return fmt.Errorf("bybit interval_ms must be positive")
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("bybit orderbook reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol":   r.symbol,
		"interval": cfg.IntervalMs,
		"category": cfg.Category,
	}).Info("starting bybit orderbook reader")

	r.wg.Add(1)
	go r.fetchOrderbookWorker(time.Duration(cfg.IntervalMs) * time.Millisecond)
	return nil
}

// Stop waits for the polling worker once the Start context is cancelled.
func (r *Orderbook) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("bybit_reader").Info("stopping bybit orderbook reader")
	r.wg.Wait()
	r.log.WithComponent("bybit_reader").Info("bybit orderbook reader stopped")
}

func (r *Orderbook) fetchOrderbookWorker(interval time.Duration) {
	defer r.wg.Done()

	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"symbol": r.symbol,
		"worker": "orderbook_fetcher",
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			r.fetchOrderbook(log)
		}
	}
}

func (r *Orderbook) fetchOrderbook(log *logger.Entry) {
	if r.limiter != nil {
		if err := r.limiter.Wait(r.ctx); err != nil {
			if r.ctx.Err() == nil {
				log.WithError(err).Warn("rate limiter wait failed")
			}
			return
		}
	}

	params := map[string]interface{}{
		"category": r.config.Source.Bybit.Category,
		"symbol":   r.symbol,
		"limit":    r.depth,
	}

	start := time.Now()
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(r.ctx)
	if err != nil {
		if r.ctx.Err() == nil {
			log.WithError(err).Warn("failed to fetch orderbook")
		}
		return
	}
	logger.LogPerformanceEntry(log, "bybit_reader", "api_request", time.Since(start), logger.Fields{"symbol": r.symbol})

	if resp.RetCode != 0 {
		log.WithFields(logger.Fields{"ret_code": resp.RetCode, "ret_msg": resp.RetMsg}).Warn("bybit rejected orderbook request")
		return
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		log.WithError(err).Warn("failed to marshal orderbook")
		return
	}

	snap, err := Decode(payload, r.depth, time.Now().UTC())
	if err != nil {
		log.WithError(err).Warn("dropping unparsable bybit orderbook")
		metrics.IncrementDropped(r.Name(), "parse")
		return
	}

	if err := r.sink.SendRaw(r.ctx, snap); err != nil {
		if r.ctx.Err() == nil {
			log.WithError(err).Warn("failed to enqueue bybit snapshot")
		}
		return
	}
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.LogDataFlowEntry(log, "bybit_api", "raw_channel", len(snap.Book.Bids)+len(snap.Book.Asks), "book_levels")
	}
}

// Decode parses the result object of a Bybit orderbook response.
func Decode(payload []byte, depth int, at time.Time) (models.Snapshot, error) {
	var book models.BybitBookResp
	if err := json.Unmarshal(payload, &book); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", reader.ErrParse, err)
	}
	bids, err := reader.ParseLevels(models.SourceBybit, book.Bids, depth)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("bybit bids: %w", err)
	}
	asks, err := reader.ParseLevels(models.SourceBybit, book.Asks, depth)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("bybit asks: %w", err)
	}
	return models.Snapshot{
		Source:     models.SourceBybit,
		Symbol:     book.Symbol,
		Book:       models.OrderBook{Bids: bids, Asks: asks},
		ReceivedAt: at,
	}, nil
}
