package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestReceiversSeeEveryMessageInOrder(t *testing.T) {
	b := New[int](8)
	r1 := b.Subscribe()
	r2 := b.Subscribe()

	for i := 0; i < 5; i++ {
		if err := b.Publish(i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	ctx := context.Background()
	for _, r := range []*Receiver[int]{r1, r2} {
		for want := 0; want < 5; want++ {
			got, err := r.Recv(ctx)
			if err != nil {
				t.Fatalf("recv: %v", err)
			}
			if got != want {
				t.Fatalf("expected %d, got %d", want, got)
			}
		}
	}
}

func TestSubscribeSeesOnlyFutureMessages(t *testing.T) {
	b := New[int](4)
	_ = b.Publish(1)
	r := b.Subscribe()
	_ = b.Publish(2)

	got, err := r.Recv(context.Background())
	if err != nil || got != 2 {
		t.Fatalf("expected 2, got %d (%v)", got, err)
	}
}

func TestPublisherNeverBlocksAndLaggingReceiverSkips(t *testing.T) {
	b := New[int](4)
	r := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publisher blocked on an idle receiver")
	}

	_, err := r.Recv(context.Background())
	var lag *LagError
	if !errors.As(err, &lag) {
		t.Fatalf("expected LagError, got %v", err)
	}
	if lag.Missed != 6 {
		t.Fatalf("expected 6 missed, got %d", lag.Missed)
	}

	for want := 6; want < 10; want++ {
		got, err := r.Recv(context.Background())
		if err != nil {
			t.Fatalf("recv after lag: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	b := New[string](4)
	r := b.Subscribe()
	_ = b.Publish("a")
	b.Close()

	if err := b.Publish("b"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from publish, got %v", err)
	}
	got, err := r.Recv(context.Background())
	if err != nil || got != "a" {
		t.Fatalf("expected retained message, got %q (%v)", got, err)
	}
	if _, err := r.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRecvWakesOnCloseAndContext(t *testing.T) {
	b := New[int](2)
	r := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := r.Recv(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("receiver not woken by close")
	}
}

func TestReceiverClose(t *testing.T) {
	b := New[int](2)
	r1 := b.Subscribe()
	r2 := b.Subscribe()
	if b.Receivers() != 2 {
		t.Fatalf("expected 2 receivers, got %d", b.Receivers())
	}

	r1.Close()
	r1.Close()
	if b.Receivers() != 1 {
		t.Fatalf("expected 1 receiver, got %d", b.Receivers())
	}
	if _, err := r1.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed receiver should return ErrClosed, got %v", err)
	}

	_ = b.Publish(7)
	if got, err := r2.Recv(context.Background()); err != nil || got != 7 {
		t.Fatalf("remaining receiver affected: %d (%v)", got, err)
	}
}

func TestConcurrentReceivers(t *testing.T) {
	b := New[int](64)
	const n = 50
	var wg sync.WaitGroup
	results := make([][]int, 3)
	for i := range results {
		r := b.Subscribe()
		wg.Add(1)
		go func(i int, r *Receiver[int]) {
			defer wg.Done()
			for {
				v, err := r.Recv(context.Background())
				if err != nil {
					return
				}
				results[i] = append(results[i], v)
			}
		}(i, r)
	}

	for i := 0; i < n; i++ {
		_ = b.Publish(i)
	}
	b.Close()
	wg.Wait()

	for i, got := range results {
		if len(got) != n {
			t.Fatalf("receiver %d got %d messages, want %d", i, len(got), n)
		}
	}
}
