package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "orderflow/config"
	"orderflow/internal/broadcast"
	"orderflow/internal/channel"
	"orderflow/internal/metrics"
	"orderflow/logger"
	"orderflow/models"
)

// SubscriptionState is one-way: Active then Closed.
type SubscriptionState int32

const (
	Active SubscriptionState = iota
	Closed
)

func (s SubscriptionState) String() string {
	if s == Active {
		return "active"
	}
	return "closed"
}

// Subscription is one downstream reader of merged books.
type Subscription struct {
	id     string
	out    chan models.OrderBook
	recv   *broadcast.Receiver[models.OrderBook]
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	lagged atomic.Uint64
}

func (s *Subscription) ID() string { return s.id }

// C delivers merged books in publish order. It is closed when the
// subscription ends.
func (s *Subscription) C() <-chan models.OrderBook { return s.out }

func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// Close ends the subscription. Callers use it when they can no longer
// deliver to the client.
func (s *Subscription) Close() { s.cancel() }

// Done is closed once the bridging goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Lagged reports how many books this subscription skipped.
func (s *Subscription) Lagged() uint64 { return s.lagged.Load() }

type DistributorStats struct {
	Published           int64
	LaggedMessages      int64
	SubscriptionsOpened int64
	SubscriptionsClosed int64
	Active              int
}

// Distributor republishes every merged book to all current subscriptions.
// Publishing never waits on a subscriber.
type Distributor struct {
	config       *appconfig.Config
	channels     *channel.Channels
	bus          *broadcast.Bus[models.OrderBook]
	outSize      int
	drainTimeout time.Duration
	debug        bool
	ctx          context.Context
	wg           *sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	log          *logger.Log

	subsMu   sync.Mutex
	subs     map[string]*Subscription
	subsWg   sync.WaitGroup
	stopping bool

	published atomic.Int64
	lagged    atomic.Int64
	opened    atomic.Int64
	closed    atomic.Int64
}

func NewDistributor(cfg *appconfig.Config, ch *channel.Channels) *Distributor {
	capacity := cfg.Channels.BroadcastBuffer
	if capacity <= 0 {
		capacity = 64
	}
	outSize := cfg.Channels.SubscriberBuffer
	if outSize <= 0 {
		outSize = 4
	}
	drainTimeout := cfg.GRPC.ShutdownTimeout
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	return &Distributor{
		config:       cfg,
		channels:     ch,
		bus:          broadcast.New[models.OrderBook](capacity),
		outSize:      outSize,
		drainTimeout: drainTimeout,
		debug:        cfg.Debug,
		wg:           &sync.WaitGroup{},
		log:          logger.GetLogger(),
		subs:         make(map[string]*Subscription),
	}
}

func (d *Distributor) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("distributor already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	d.log.WithComponent("distributor").WithFields(logger.Fields{
		"broadcast_capacity": d.bus.Capacity(),
		"subscriber_buffer":  d.outSize,
	}).Info("starting distributor")

	d.wg.Add(1)
	go d.publishLoop()
	return nil
}

// Stop waits for the publish loop and every bridging goroutine to exit.
// Subscriptions that have not drained within the shutdown timeout are
// closed.
func (d *Distributor) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.subsMu.Lock()
	d.stopping = true
	d.subsMu.Unlock()

	d.log.WithComponent("distributor").Info("stopping distributor")
	d.wg.Wait()
	d.bus.Close()

	drained := make(chan struct{})
	go func() {
		d.subsWg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(d.drainTimeout):
		d.subsMu.Lock()
		stuck := len(d.subs)
		for _, sub := range d.subs {
			sub.Close()
		}
		d.subsMu.Unlock()
		d.log.WithComponent("distributor").WithFields(logger.Fields{"subscriptions": stuck}).Warn("subscriptions did not drain, closing them")
		<-drained
	}

	stats := d.Stats()
	d.log.WithComponent("distributor").WithFields(logger.Fields{
		"published":            stats.Published,
		"lagged_messages":      stats.LaggedMessages,
		"subscriptions_opened": stats.SubscriptionsOpened,
		"subscriptions_closed": stats.SubscriptionsClosed,
	}).Info("distributor stopped")
}

func (d *Distributor) publishLoop() {
	defer d.wg.Done()
	defer d.bus.Close()

	log := d.log.WithComponent("distributor").WithFields(logger.Fields{"worker": "publish_loop"})

	for {
		select {
		case <-d.ctx.Done():
			log.Info("publish loop stopped due to context cancellation")
			return
		case book, ok := <-d.channels.Merged:
			if !ok {
				log.Info("merged channel closed, publish loop stopping")
				return
			}
			if err := d.bus.Publish(book); err != nil {
				log.WithError(err).Warn("broadcast closed, publish loop stopping")
				return
			}
			d.published.Add(1)
			metrics.IncrementPublished()
			if d.debug {
				log.WithFields(logger.Fields{
					"spread":      book.Spread,
					"subscribers": d.bus.Receivers(),
				}).Debug("published merged book")
			}
		}
	}
}

// Subscribe registers a new reader. The subscription ends when ctx is
// cancelled, Close is called, or the distributor shuts down. Once Stop has
// begun the returned subscription is already closed.
func (d *Distributor) Subscribe(ctx context.Context) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:     uuid.New().String(),
		out:    make(chan models.OrderBook, d.outSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.subsMu.Lock()
	if d.stopping {
		d.subsMu.Unlock()
		cancel()
		sub.state.Store(int32(Closed))
		close(sub.out)
		close(sub.done)
		d.log.WithComponent("distributor").WithFields(logger.Fields{"subscription_id": sub.id}).Info("subscription refused, distributor stopping")
		return sub
	}
	sub.recv = d.bus.Subscribe()
	sub.state.Store(int32(Active))
	d.subs[sub.id] = sub
	active := len(d.subs)
	// Registered under subsMu so Stop never waits while a bridge is added.
	d.subsWg.Add(1)
	d.subsMu.Unlock()

	d.opened.Add(1)
	logger.IncrementSubscriptionOpened()
	metrics.SetActiveSubscriptions(active)

	d.log.WithComponent("distributor").WithFields(logger.Fields{
		"subscription_id": sub.id,
		"active":          active,
	}).Info("subscription opened")

	go d.bridge(subCtx, sub)
	return sub
}

// bridge forwards broadcast messages into the subscription's output queue.
// A full output queue blocks only this goroutine.
func (d *Distributor) bridge(ctx context.Context, sub *Subscription) {
	defer d.subsWg.Done()
	defer d.finish(sub)

	log := d.log.WithComponent("distributor").WithFields(logger.Fields{"subscription_id": sub.id})

	for {
		book, err := sub.recv.Recv(ctx)
		if err != nil {
			var lag *broadcast.LagError
			switch {
			case errors.As(err, &lag):
				sub.lagged.Add(lag.Missed)
				d.lagged.Add(int64(lag.Missed))
				logger.IncrementLagged(lag.Missed)
				metrics.AddSubscriberLag(lag.Missed)
				log.WithFields(logger.Fields{"missed": lag.Missed}).Warn("subscriber lagged, skipping to oldest retained book")
				continue
			case errors.Is(err, broadcast.ErrClosed):
				log.Debug("broadcast closed, ending subscription")
			default:
				log.Debug("subscriber disconnected")
			}
			return
		}

		select {
		case sub.out <- book:
		case <-ctx.Done():
			log.Debug("subscriber disconnected")
			return
		}
	}
}

func (d *Distributor) finish(sub *Subscription) {
	sub.state.Store(int32(Closed))
	sub.recv.Close()
	sub.cancel()
	close(sub.out)

	d.subsMu.Lock()
	delete(d.subs, sub.id)
	active := len(d.subs)
	d.subsMu.Unlock()

	d.closed.Add(1)
	logger.IncrementSubscriptionClosed()
	metrics.SetActiveSubscriptions(active)

	d.log.WithComponent("distributor").WithFields(logger.Fields{
		"subscription_id": sub.id,
		"active":          active,
		"lagged":          sub.Lagged(),
	}).Info("subscription closed")
	close(sub.done)
}

func (d *Distributor) ActiveSubscriptions() int {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	return len(d.subs)
}

func (d *Distributor) Stats() DistributorStats {
	return DistributorStats{
		Published:           d.published.Load(),
		LaggedMessages:      d.lagged.Load(),
		SubscriptionsOpened: d.opened.Load(),
		SubscriptionsClosed: d.closed.Load(),
		Active:              d.ActiveSubscriptions(),
	}
}
