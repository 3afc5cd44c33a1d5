package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"bleflow/internal/bus"
	"bleflow/internal/durable"
	"bleflow/internal/model"
	"bleflow/internal/stats"
)

type fakePublisher struct {
	published [][]byte
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, value)
	return nil
}

func (p *fakePublisher) Close(ctx context.Context) error { return nil }

// drainingPublisher models an async driver: completions for everything
// still in flight are delivered during Close, the way the kafka writer
// flushes its pending batches.
type drainingPublisher struct {
	onResult bus.ResultFunc
	pending  int
	closed   bool
}

func (p *drainingPublisher) Publish(ctx context.Context, key, value []byte) error {
	p.pending++
	return nil
}

func (p *drainingPublisher) Close(ctx context.Context) error {
	for i := 0; i < p.pending; i++ {
		p.onResult(bus.Result{MessageID: "0-" + strconv.Itoa(i)})
	}
	p.pending = 0
	p.closed = true
	return nil
}

// stuckPublisher never finishes draining; Close honors its context the
// way the real drivers do.
type stuckPublisher struct{}

func (stuckPublisher) Publish(context.Context, []byte, []byte) error { return nil }
func (stuckPublisher) Close(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingStore struct{}

func (failingStore) Init(context.Context) error           { return nil }
func (failingStore) Append(context.Context, []byte) error { return errors.New("disk full") }
func (failingStore) Close() error                         { return nil }

func testEvent() model.AdvertisementEvent {
	rssi := -45
	return model.AdvertisementEvent{
		SnifferAddr:    "11:22:33:44:55:66",
		Datetime:       "2026-08-28 12:34:56.789012",
		AdvConstructor: "Acme Corp",
		AdvAddr:        "aa:bb:cc:dd:ee:ff",
		RSSI:           &rssi,
	}
}

func TestEmitPublishesCompactPayload(t *testing.T) {
	pub := &fakePublisher{}
	s := NewWithPublisher(pub, nil, stats.NewStore(), nil)
	if err := s.Emit(context.Background(), []byte("k"), testEvent()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published: %d", len(pub.published))
	}
	payload := string(pub.published[0])
	want := `{"sniffer_addr":"11:22:33:44:55:66","datetime":"2026-08-28 12:34:56.789012","adv_constructor":"Acme Corp","adv_addr":"aa:bb:cc:dd:ee:ff","rssi":-45}`
	if payload != want {
		t.Fatalf("wire payload:\n got %s\nwant %s", payload, want)
	}
}

func TestEmitNilEventNoOp(t *testing.T) {
	pub := &fakePublisher{}
	s := NewWithPublisher(pub, nil, stats.NewStore(), nil)
	if err := s.Emit(context.Background(), nil, nil); err != nil {
		t.Fatalf("emit nil: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("nil event must publish nothing")
	}
}

func TestEmitAppendsDurableLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	store, err := durable.NewJSONL(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	pub := &fakePublisher{}
	s := NewWithPublisher(pub, store, stats.NewStore(), nil)
	if err := s.Emit(context.Background(), nil, testEvent()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines: %d", len(lines))
	}
	if lines[0] != string(pub.published[0]) {
		t.Fatalf("log record differs from published payload")
	}
}

func TestDurableFailureDoesNotBlockPublish(t *testing.T) {
	pub := &fakePublisher{}
	st := stats.NewStore()
	s := NewWithPublisher(pub, failingStore{}, st, nil)
	if err := s.Emit(context.Background(), nil, testEvent()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("publish must proceed past durable failure")
	}
	if st.Get(stats.DurableFailed) != 1 {
		t.Fatalf("durable failure not counted")
	}
}

func TestPublishErrorDropsWithoutRetry(t *testing.T) {
	pub := &fakePublisher{err: errors.New("bus unreachable")}
	st := stats.NewStore()
	s := NewWithPublisher(pub, nil, st, nil)
	if err := s.Emit(context.Background(), nil, testEvent()); err == nil {
		t.Fatalf("expected publish error")
	}
	if st.Get(stats.PublishFailed) != 1 {
		t.Fatalf("publish failure not counted")
	}
}

func TestCloseDrainsInFlightCompletions(t *testing.T) {
	st := stats.NewStore()
	pub := &drainingPublisher{}
	s := NewWithPublisher(pub, nil, st, nil)
	pub.onResult = s.OnResult

	for i := 0; i < 3; i++ {
		if err := s.Emit(context.Background(), nil, testEvent()); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	if st.Get(stats.Published) != 0 {
		t.Fatalf("completions before close: %d", st.Get(stats.Published))
	}
	if err := s.Close(time.Second); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !pub.closed {
		t.Fatalf("publisher not closed")
	}
	if st.Get(stats.Published) != 3 {
		t.Fatalf("drained completions: %d", st.Get(stats.Published))
	}
}

func TestCloseGivesUpAfterTimeout(t *testing.T) {
	s := NewWithPublisher(stuckPublisher{}, nil, stats.NewStore(), nil)
	start := time.Now()
	err := s.Close(50 * time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("close error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("close took %v", elapsed)
	}
}

func TestCompletionCounting(t *testing.T) {
	st := stats.NewStore()
	s := NewWithPublisher(&fakePublisher{}, nil, st, nil)
	s.OnResult(bus.Result{MessageID: "0-17"})
	s.OnResult(bus.Result{Err: errors.New("quota exceeded")})
	if st.Get(stats.Published) != 1 {
		t.Fatalf("success completion not counted")
	}
	if st.Get(stats.PublishFailed) != 1 {
		t.Fatalf("failure completion not counted")
	}
}
