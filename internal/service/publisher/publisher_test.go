package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/google/go-cmp/cmp"
)

type message struct {
	Topic   string
	Payload string
}

type fakeBroker struct {
	mu           sync.Mutex
	connectErr   error
	publishErr   error
	connectDelay time.Duration
	connects     int32
	disconnects  int
	messages     []message
	onLost       func(error)
}

func (b *fakeBroker) Connect(time.Duration) error {
	atomic.AddInt32(&b.connects, 1)
	if b.connectDelay > 0 {
		time.Sleep(b.connectDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectErr
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.messages = append(b.messages, message{Topic: topic, Payload: string(payload)})
	return nil
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	b.disconnects++
	b.mu.Unlock()
}

func (b *fakeBroker) OnConnectionLost(fn func(error)) {
	b.onLost = fn
}

func (b *fakeBroker) setConnectErr(err error) {
	b.mu.Lock()
	b.connectErr = err
	b.mu.Unlock()
}

func (b *fakeBroker) setPublishErr(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}

func (b *fakeBroker) sent() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.messages...)
}

func newTestPublisher(b *fakeBroker) *Publisher {
	return New(b, Options{
		Topic:             "katzenschreck",
		ConnectTimeout:    time.Second,
		PublishTimeout:    time.Second,
		HeartbeatInterval: 10 * time.Millisecond,
	}, logger.NewNop(), nil)
}

func catEvent() model.DetectionEvent {
	return model.DetectionEvent{
		Timestamp:  time.Date(2025, 5, 4, 3, 2, 1, 0, time.Local),
		ClassID:    15,
		ClassName:  model.ClassCat,
		Confidence: 0.9,
	}
}

func TestPublish_ReconnectsOnceThenSends(t *testing.T) {
	b := &fakeBroker{}
	p := newTestPublisher(b)

	if err := p.Publish(context.Background(), model.ClassCat, catEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := atomic.LoadInt32(&b.connects); got != 1 {
		t.Errorf("connect attempts = %d, expected 1", got)
	}
	if p.State() != model.Connected {
		t.Errorf("state = %s, expected connected", p.State())
	}

	msgs := b.sent()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, expected 1", len(msgs))
	}
	if msgs[0].Topic != "katzenschreck/Cat" {
		t.Errorf("topic = %q", msgs[0].Topic)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(msgs[0].Payload), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := map[string]interface{}{
		"time":       "2025-05-04_03-02-01-000",
		"class":      "Cat",
		"confidence": 0.9,
	}
	if diff := cmp.Diff(want, payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	// Already connected: no further connect attempts.
	if err := p.Publish(context.Background(), model.ClassCat, catEvent()); err != nil {
		t.Fatalf("second Publish failed: %v", err)
	}
	if got := atomic.LoadInt32(&b.connects); got != 1 {
		t.Errorf("connect attempts = %d after second publish, expected 1", got)
	}
}

func TestPublish_UnreachableBrokerDropsEvent(t *testing.T) {
	b := &fakeBroker{connectErr: errors.New("connection refused")}
	p := newTestPublisher(b)

	err := p.Publish(context.Background(), model.ClassCat, catEvent())
	if !errors.Is(err, model.ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
	if p.State() != model.Disconnected {
		t.Errorf("state = %s, expected disconnected", p.State())
	}
	if got := atomic.LoadInt32(&b.connects); got != 1 {
		t.Errorf("connect attempts = %d, expected exactly 1", got)
	}
	if len(b.sent()) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestPublish_SendErrorDisconnectsWithoutRetry(t *testing.T) {
	b := &fakeBroker{}
	p := newTestPublisher(b)
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	b.setPublishErr(errors.New("broken pipe"))
	err := p.Publish(context.Background(), model.ClassPerson, catEvent())
	if !errors.Is(err, model.ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
	if p.State() != model.Disconnected {
		t.Errorf("state = %s, expected disconnected", p.State())
	}
	if got := atomic.LoadInt32(&b.connects); got != 1 {
		t.Errorf("connect attempts = %d, send errors must not trigger a reconnect in the same call", got)
	}
	b.mu.Lock()
	disconnects := b.disconnects
	b.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("disconnects = %d, a failed send must drop the client connection", disconnects)
	}

	b.setPublishErr(nil)
	if err := p.Publish(context.Background(), model.ClassCat, catEvent()); err != nil {
		t.Fatalf("Publish after recovery failed: %v", err)
	}
	if p.State() != model.Connected {
		t.Errorf("state = %s, expected connected", p.State())
	}
}

func TestPublish_CancelledContext(t *testing.T) {
	b := &fakeBroker{}
	p := newTestPublisher(b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, model.ClassCat, catEvent()); err == nil {
		t.Error("expected an error for a cancelled context")
	}
	if atomic.LoadInt32(&b.connects) != 0 {
		t.Error("no connect attempt expected after cancellation")
	}
}

func TestPing_Payload(t *testing.T) {
	b := &fakeBroker{}
	p := newTestPublisher(b)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	if err := p.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	want := []message{{Topic: "katzenschreck/ping", Payload: `{"timestamp":1700000000}`}}
	if diff := cmp.Diff(want, b.sent()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

// The broker is down at startup; the heartbeat reconnects once it comes back
// and resumes pings.
func TestRunHeartbeat_ReconnectsAndPings(t *testing.T) {
	b := &fakeBroker{connectErr: errors.New("down")}
	p := newTestPublisher(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.RunHeartbeat(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	if len(b.sent()) != 0 {
		t.Error("no pings expected while the broker is down")
	}

	b.setConnectErr(nil)
	deadline := time.Now().Add(2 * time.Second)
	for len(b.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	msgs := b.sent()
	if len(msgs) == 0 {
		t.Fatal("expected a ping after the broker recovered")
	}
	if !strings.HasSuffix(msgs[0].Topic, "/ping") {
		t.Errorf("topic = %q", msgs[0].Topic)
	}
	if p.State() != model.Connected {
		t.Errorf("state = %s, expected connected", p.State())
	}
}

func TestConcurrentReconnect_SingleAttempt(t *testing.T) {
	b := &fakeBroker{connectDelay: 50 * time.Millisecond}
	p := newTestPublisher(b)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = p.Publish(context.Background(), model.ClassCat, catEvent())
	}()
	go func() {
		defer wg.Done()
		results[1] = p.Ping()
	}()
	wg.Wait()

	if got := atomic.LoadInt32(&b.connects); got != 1 {
		t.Errorf("connect attempts = %d, expected 1", got)
	}
	for i, err := range results {
		if err != nil {
			t.Errorf("caller %d failed: %v", i, err)
		}
	}
}

func TestConnectionLost(t *testing.T) {
	b := &fakeBroker{}
	p := newTestPublisher(b)
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	b.onLost(errors.New("keepalive timeout"))
	if p.State() != model.Disconnected {
		t.Errorf("state = %s, expected disconnected", p.State())
	}

	if err := p.Publish(context.Background(), model.ClassCat, catEvent()); err != nil {
		t.Fatalf("Publish after loss failed: %v", err)
	}
	if got := atomic.LoadInt32(&b.connects); got != 2 {
		t.Errorf("connect attempts = %d, expected 2", got)
	}
}

func TestClose(t *testing.T) {
	b := &fakeBroker{}
	p := newTestPublisher(b)
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	p.Close()
	if p.State() != model.Disconnected {
		t.Errorf("state = %s", p.State())
	}
	if b.disconnects != 1 {
		t.Errorf("disconnects = %d, expected 1", b.disconnects)
	}

	p.Close()
	if b.disconnects != 1 {
		t.Error("closing twice must not disconnect twice")
	}
}

func TestClientID(t *testing.T) {
	a, b := ClientID("cam_garten"), ClientID("cam_garten")
	if !strings.HasPrefix(a, "katzenschreck-cam_garten-") {
		t.Errorf("ClientID = %q", a)
	}
	if a == b {
		t.Error("client ids should be unique")
	}
}
