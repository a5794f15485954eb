package bitstamp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"orderflow/config"
	"orderflow/models"
	"orderflow/reader"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []models.Snapshot
	got   chan struct{}
}

func (s *recordingSink) SendRaw(_ context.Context, snap models.Snapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	select {
	case s.got <- struct{}{}:
	default:
	}
	return nil
}

func bookFrame(levels int) string {
	bids := make([]string, 0, levels)
	asks := make([]string, 0, levels)
	for i := 0; i < levels; i++ {
		bids = append(bids, fmt.Sprintf(`["0.%04d","1.0"]`, 700-i))
		asks = append(asks, fmt.Sprintf(`["0.%04d","2.0"]`, 710+i))
	}
	return fmt.Sprintf(`{"event":"data","channel":"order_book_ethbtc","data":{"timestamp":"1","microtimestamp":"1000000","bids":[%s],"asks":[%s]}}`,
		strings.Join(bids, ","), strings.Join(asks, ","))
}

func TestDecodeTruncatesToDepth(t *testing.T) {
	snap, event, err := Decode([]byte(bookFrame(100)), models.DepthLimit, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event != "data" {
		t.Fatalf("unexpected event %q", event)
	}
	if len(snap.Book.Bids) != 10 || len(snap.Book.Asks) != 10 {
		t.Fatalf("expected 10 levels per side, got %d/%d", len(snap.Book.Bids), len(snap.Book.Asks))
	}
	if snap.Book.Bids[0].Price != 0.07 || snap.Book.Asks[0].Price != 0.071 {
		t.Fatalf("unexpected top of book %+v %+v", snap.Book.Bids[0], snap.Book.Asks[0])
	}
	if err := snap.Validate(models.DepthLimit); err != nil {
		t.Fatalf("decoded snapshot invalid: %v", err)
	}
}

func TestDecodeControlEvents(t *testing.T) {
	for _, event := range []string{"bts:subscription_succeeded", "bts:request_reconnect"} {
		_, got, err := Decode([]byte(`{"event":"`+event+`","channel":"","data":{}}`), 10, time.Now())
		if err != nil || got != event {
			t.Fatalf("expected %q, got %q (%v)", event, got, err)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []string{
		`not json`,
		`{"event":"data","data":{"bids":[["x","1"]],"asks":[]}}`,
		`{"event":"data","data":{"bids":"nope"}}`,
	}
	for _, payload := range tests {
		if _, _, err := Decode([]byte(payload), 10, time.Now()); !errors.Is(err, reader.ErrParse) {
			t.Fatalf("expected ErrParse for %s, got %v", payload, err)
		}
	}
}

func TestBookSubscribesAndReconnectsOnRequest(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections int32
	channels := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := atomic.AddInt32(&connections, 1)

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Event == "bts:subscribe" {
			select {
			case channels <- req.Data.Channel:
			default:
			}
		}

		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"data","data":{"bids":[["bad","1"]]}}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"bts:request_reconnect","channel":"","data":""}`))
		} else {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(bookFrame(3)))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Source.Bitstamp.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.Source.Bitstamp.ReconnectDelay = 10 * time.Millisecond

	sink := &recordingSink{got: make(chan struct{}, 1)}
	src := NewBook(cfg, sink)

	ctx, cancel := context.WithCancel(context.Background())
	if err := src.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-sink.got:
	case <-time.After(5 * time.Second):
		t.Fatalf("no snapshot received")
	}
	cancel()
	src.Stop()

	if got := atomic.LoadInt32(&connections); got < 2 {
		t.Fatalf("expected a reconnect, saw %d connections", got)
	}
	if ch := <-channels; ch != "order_book_ethbtc" {
		t.Fatalf("unexpected channel %q", ch)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.snaps) != 1 {
		t.Fatalf("expected exactly one snapshot, got %d", len(sink.snaps))
	}
	snap := sink.snaps[0]
	if snap.Source != models.SourceBitstamp || snap.Symbol != "ethbtc" || len(snap.Book.Bids) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSubscribeRequestShape(t *testing.T) {
	b, err := json.Marshal(subscribeRequest{Event: "bts:subscribe", Data: subscribeData{Channel: "order_book_ethbtc"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"event":"bts:subscribe","data":{"channel":"order_book_ethbtc"}}` {
		t.Fatalf("unexpected request %s", b)
	}
}
