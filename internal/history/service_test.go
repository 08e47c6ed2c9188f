package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/clock"
	"github.com/Tyrowin/tourneychat/internal/registry"
	"github.com/Tyrowin/tourneychat/internal/store"
)

var tournamentEnd = time.Date(2026, 7, 10, 21, 0, 0, 0, time.UTC)

type failingLog struct{}

func (failingLog) Append(context.Context, store.PersistedMessage) error { return nil }
func (failingLog) Recent(context.Context, string, int) ([]store.PersistedMessage, error) {
	return nil, errors.New("connection reset")
}

func setup(t *testing.T, stored int) (*Service, *clock.FakeClock) {
	t.Helper()
	reg := registry.NewMemory()
	reg.PutTournament(registry.Tournament{
		ID:       "t1",
		Status:   registry.StatusCompleted,
		StartsAt: tournamentEnd.Add(-3 * time.Hour),
		EndsAt:   tournamentEnd,
	})
	reg.Register("t1", "alice", "bob")
	reg.Cancel("t1", "bob")

	log := store.NewMemory()
	for i := 0; i < stored; i++ {
		err := log.Append(context.Background(), store.PersistedMessage{
			MessageID:    fmt.Sprintf("m-%d", i),
			TournamentID: "t1",
			SenderID:     "alice",
			Text:         fmt.Sprintf("msg %d", i),
			CreatedAt:    tournamentEnd.Add(-3*time.Hour + time.Duration(i)*time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	clk := clock.Fake(tournamentEnd.Add(time.Hour))
	return NewService(reg, log, Options{Clock: clk}), clk
}

func TestHistoryAscendingAndBounded(t *testing.T) {
	svc, _ := setup(t, 150)

	msgs, err := svc.GetHistory(context.Background(), "t1", chat.Identity{UserID: "alice"})
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(msgs) != DefaultLimit {
		t.Fatalf("Expected %d messages, got %d", DefaultLimit, len(msgs))
	}
	if msgs[0].Text != "msg 50" || msgs[len(msgs)-1].Text != "msg 149" {
		t.Errorf("Expected the newest 100 messages, got %q..%q", msgs[0].Text, msgs[len(msgs)-1].Text)
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].CreatedAt.After(msgs[i-1].CreatedAt) {
			t.Fatalf("Messages not strictly ascending at %d", i)
		}
	}
}

func TestHistoryFewerThanLimit(t *testing.T) {
	svc, _ := setup(t, 3)
	msgs, err := svc.GetHistory(context.Background(), "t1", chat.Identity{UserID: "alice"})
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Text != "msg 0" {
		t.Errorf("Unexpected history: %+v", msgs)
	}
}

func TestHistoryGraceWindow(t *testing.T) {
	svc, clk := setup(t, 1)
	alice := chat.Identity{UserID: "alice"}

	clk.Set(tournamentEnd.Add(6 * 24 * time.Hour))
	if _, err := svc.GetHistory(context.Background(), "t1", alice); err != nil {
		t.Errorf("Expected history at +6 days, got %v", err)
	}

	clk.Set(tournamentEnd.Add(7 * 24 * time.Hour))
	if _, err := svc.GetHistory(context.Background(), "t1", alice); err != nil {
		t.Errorf("Expected history at exactly +7 days, got %v", err)
	}

	clk.Set(tournamentEnd.Add(8 * 24 * time.Hour))
	if _, err := svc.GetHistory(context.Background(), "t1", alice); !errors.Is(err, chat.ErrExpired) {
		t.Errorf("Expected expired at +8 days, got %v", err)
	}
}

func TestHistoryPreconditionOrder(t *testing.T) {
	svc, clk := setup(t, 1)
	ctx := context.Background()

	if _, err := svc.GetHistory(ctx, "missing", chat.Identity{UserID: "alice"}); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := svc.GetHistory(ctx, "t1", chat.Identity{UserID: "mallory"}); !errors.Is(err, chat.ErrUnauthorized) {
		t.Errorf("Expected unauthorized for stranger, got %v", err)
	}
	if _, err := svc.GetHistory(ctx, "t1", chat.Identity{UserID: "bob"}); !errors.Is(err, chat.ErrUnauthorized) {
		t.Errorf("Expected unauthorized for cancelled registrant, got %v", err)
	}

	clk.Set(tournamentEnd.Add(30 * 24 * time.Hour))
	if _, err := svc.GetHistory(ctx, "t1", chat.Identity{UserID: "mallory"}); !errors.Is(err, chat.ErrExpired) {
		t.Errorf("Expected expiry to be checked before registration, got %v", err)
	}
}

func TestHistoryStoreFailureIsInternal(t *testing.T) {
	reg := registry.NewMemory()
	reg.PutTournament(registry.Tournament{ID: "t1", EndsAt: tournamentEnd})
	reg.Register("t1", "alice")
	svc := NewService(reg, failingLog{}, Options{Clock: clock.Fake(tournamentEnd)})

	_, err := svc.GetHistory(context.Background(), "t1", chat.Identity{UserID: "alice"})
	if err == nil || chat.KindOf(err) != chat.KindInternal {
		t.Errorf("Expected internal error, got %v", err)
	}
}
