package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/tourneychat/internal/chat"
)

type recorder struct {
	mu   sync.Mutex
	msgs []chat.LiveMessage
}

func (r *recorder) ApplyRemote(msg chat.LiveMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func startBus(t *testing.T, ctx context.Context, mr *miniredis.Miniredis, target Applier) *Bus {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bus := NewBus(rdb, "tourneychat:test", target, nil)
	go func() { _ = bus.Run(ctx) }()
	select {
	case <-bus.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not subscribe")
	}
	return bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBusRelaysBetweenInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	localTarget, remoteTarget := &recorder{}, &recorder{}
	local := startBus(t, ctx, mr, localTarget)
	startBus(t, ctx, mr, remoteTarget)

	msg := chat.LiveMessage{ID: "1-u1-1", TournamentID: "t1", SenderID: "u1", SenderName: "U1", Text: "gg", CreatedAt: time.Now().UTC()}
	local.Publish(msg)

	waitFor(t, func() bool { return remoteTarget.count() == 1 })
	remoteTarget.mu.Lock()
	got := remoteTarget.msgs[0]
	remoteTarget.mu.Unlock()
	if got.ID != msg.ID || got.Text != "gg" || got.TournamentID != "t1" {
		t.Errorf("Unexpected relayed message: %+v", got)
	}

	time.Sleep(50 * time.Millisecond)
	if localTarget.count() != 0 {
		t.Error("Instance applied its own message")
	}
}

func TestBusIgnoresMalformedPayloads(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &recorder{}
	startBus(t, ctx, mr, target)
	mr.Publish("tourneychat:test", "{not json")

	time.Sleep(50 * time.Millisecond)
	if target.count() != 0 {
		t.Error("Malformed payload was applied")
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	if _, err := NewClient(context.Background(), ""); err == nil {
		t.Error("Expected error for empty url")
	}
	if _, err := NewClient(context.Background(), "http://not-redis"); err == nil {
		t.Error("Expected error for non-redis url")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb, err := NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_ = rdb.Close()
}
