package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "orderflow/config"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/processor"
)

// Subscriber is the part of the distributor the writer needs.
type Subscriber interface {
	Subscribe(ctx context.Context) *processor.Subscription
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BookRecord is the JSON value written for every merged book.
type BookRecord struct {
	Instrument string         `json:"instrument"`
	Timestamp  time.Time      `json:"timestamp"`
	Spread     float64        `json:"spread"`
	Bids       []models.Level `json:"bids"`
	Asks       []models.Level `json:"asks"`
}

// KafkaWriter republishes merged books to a Kafka topic. It subscribes to
// the distributor like any client, so a slow broker only lags this writer.
type KafkaWriter struct {
	config     *appconfig.Config
	subscriber Subscriber
	writer     messageWriter
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log

	written int64
	failed  int64
}

func NewKafkaWriter(cfg *appconfig.Config, subscriber Subscriber) (*KafkaWriter, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}
	return newKafkaWriter(cfg, subscriber, w), nil
}

func newKafkaWriter(cfg *appconfig.Config, subscriber Subscriber, w messageWriter) *KafkaWriter {
	kw := &KafkaWriter{
		config:     cfg,
		subscriber: subscriber,
		writer:     w,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
	}
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.Topic,
	}).Debug("kafka writer initialized")
	return kw
}

func (kw *KafkaWriter) Start(ctx context.Context) error {
	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	kw.running = true
	kw.ctx = ctx
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Info("starting kafka writer")

	sub := kw.subscriber.Subscribe(ctx)
	kw.wg.Add(1)
	go kw.run(sub)

	return nil
}

func (kw *KafkaWriter) run(sub *processor.Subscription) {
	defer kw.wg.Done()

	log := kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{"subscription_id": sub.ID()})

	for book := range sub.C() {
		data, err := json.Marshal(BookRecord{
			Instrument: kw.config.Instrument,
			Timestamp:  time.Now().UTC(),
			Spread:     book.Spread,
			Bids:       book.Bids,
			Asks:       book.Asks,
		})
		if err != nil {
			log.WithError(err).Warn("failed to marshal book")
			continue
		}
		msg := kafka.Message{
			Key:   []byte(kw.config.Instrument),
			Value: data,
		}
		if err := kw.writer.WriteMessages(kw.ctx, msg); err != nil {
			kw.failed++
			if kw.ctx.Err() != nil {
				sub.Close()
				continue
			}
			log.WithError(err).Warn("failed to write message")
			continue
		}
		kw.written++
		logger.LogDataFlowEntry(log, "distributor", "kafka", 1, "merged_book")
	}
}

// Stop waits for the subscription to end, then closes the Kafka writer.
func (kw *KafkaWriter) Stop() {
	kw.mu.Lock()
	kw.running = false
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Info("stopping kafka writer")
	kw.wg.Wait()
	if err := kw.writer.Close(); err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to close kafka writer")
	}
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"written": kw.written,
		"failed":  kw.failed,
	}).Info("kafka writer stopped")
}
