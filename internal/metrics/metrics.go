// Registers:
//
//	#orderflow_source_updates_total{source}
//	#orderflow_dropped_updates_total{source,reason}
//	#orderflow_merged_books_total
//	#orderflow_published_books_total
//	#orderflow_subscriber_lag_messages_total
//	#orderflow_active_subscriptions
//	#orderflow_queue_length{queue}
//	#orderflow_best_price{side}
//	#orderflow_spread
//	#go_* and process_* system metrics
//
// Exposes them on <metrics.address>/metrics using the Prometheus HTTP handler.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	once sync.Once

	registry = prometheus.NewRegistry()

	sourceUpdates  *prometheus.CounterVec
	droppedUpdates *prometheus.CounterVec
	mergedBooks    prometheus.Counter
	publishedBooks prometheus.Counter
	subscriberLag  prometheus.Counter
	activeSubs     prometheus.Gauge
	queueLength    *prometheus.GaugeVec
	bestPrice      *prometheus.GaugeVec
	spread         prometheus.Gauge
)

// Init creates and registers the collectors. It is safe to call repeatedly.
func Init() {
	once.Do(func() {
		sourceUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_source_updates_total",
			Help: "Snapshots accepted from each exchange source",
		}, []string{"source"})
		droppedUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_dropped_updates_total",
			Help: "Exchange messages dropped before merging",
		}, []string{"source", "reason"})
		mergedBooks = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_merged_books_total",
			Help: "Consolidated books produced by the aggregator",
		})
		publishedBooks = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_published_books_total",
			Help: "Consolidated books published to subscribers",
		})
		subscriberLag = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_subscriber_lag_messages_total",
			Help: "Books skipped by subscribers that fell behind",
		})
		activeSubs = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_active_subscriptions",
			Help: "Currently active subscriptions",
		})
		queueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orderflow_queue_length",
			Help: "Buffered items in the pipeline queues",
		}, []string{"queue"})
		bestPrice = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orderflow_best_price",
			Help: "Best consolidated price per side",
		}, []string{"side"})
		spread = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_spread",
			Help: "Spread of the latest consolidated book",
		})

		registry.MustRegister(
			sourceUpdates, droppedUpdates, mergedBooks, publishedBooks,
			subscriberLag, activeSubs, queueLength, bestPrice, spread,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Registry returns the registry the collectors are registered with.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

func IncrementSourceUpdate(source string) {
	if sourceUpdates != nil {
		sourceUpdates.WithLabelValues(source).Inc()
	}
}

// IncrementDropped counts a message discarded for reason (parse, malformed).
func IncrementDropped(source, reason string) {
	if droppedUpdates != nil {
		droppedUpdates.WithLabelValues(source, reason).Inc()
	}
}

// ObserveMerged records a newly merged book and its top of book.
func ObserveMerged(spreadValue float64, bid, ask float64, hasBid, hasAsk bool) {
	if mergedBooks == nil {
		return
	}
	mergedBooks.Inc()
	spread.Set(spreadValue)
	if hasBid {
		bestPrice.WithLabelValues("bid").Set(bid)
	}
	if hasAsk {
		bestPrice.WithLabelValues("ask").Set(ask)
	}
}

func IncrementPublished() {
	if publishedBooks != nil {
		publishedBooks.Inc()
	}
}

func AddSubscriberLag(missed uint64) {
	if subscriberLag != nil {
		subscriberLag.Add(float64(missed))
	}
}

func SetActiveSubscriptions(n int) {
	if activeSubs != nil {
		activeSubs.Set(float64(n))
	}
}

func SetQueueLength(queue string, n int) {
	if queueLength != nil {
		queueLength.WithLabelValues(queue).Set(float64(n))
	}
}
