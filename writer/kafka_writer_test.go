package writer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "orderflow/config"
	"orderflow/internal/channel"
	"orderflow/models"
	"orderflow/processor"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		f.fail = false
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestNewKafkaWriterRequiresBrokers(t *testing.T) {
	cfg := appconfig.Default()
	if _, err := NewKafkaWriter(cfg, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	if _, err := NewKafkaWriter(cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKafkaWriterRepublishesBooks(t *testing.T) {
	cfg := appconfig.Default()
	ch := channel.NewChannels(4, 4)
	dist := processor.NewDistributor(cfg, ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := dist.Start(ctx); err != nil {
		t.Fatalf("start distributor: %v", err)
	}

	fw := &fakeWriter{fail: true}
	kw := newKafkaWriter(cfg, dist, fw)
	if err := kw.Start(ctx); err != nil {
		t.Fatalf("start writer: %v", err)
	}
	if err := kw.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}

	book := models.OrderBook{
		Spread: 1,
		Bids:   []models.Level{{Source: models.SourceBinance, Price: 100, Quantity: 1}},
		Asks:   []models.Level{{Source: models.SourceBitstamp, Price: 101, Quantity: 2}},
	}
	for i := 0; i < 3; i++ {
		if err := ch.SendMerged(ctx, book); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for fw.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fw.count() != 2 {
		t.Fatalf("expected 2 messages after one failure, got %d", fw.count())
	}

	ch.CloseMerged()
	kw.Stop()
	dist.Stop()

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.closed {
		t.Fatalf("writer not closed on stop")
	}
	if string(fw.msgs[0].Key) != "ethbtc" {
		t.Fatalf("unexpected key %q", fw.msgs[0].Key)
	}
	var rec BookRecord
	if err := json.Unmarshal(fw.msgs[0].Value, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Spread != 1 || rec.Bids[0].Source != models.SourceBinance || rec.Asks[0].Source != models.SourceBitstamp {
		t.Fatalf("unexpected record %+v", rec)
	}
}
