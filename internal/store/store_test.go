package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var base = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, log Log, tournamentID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		msg := PersistedMessage{
			MessageID:    fmt.Sprintf("%s-%d", tournamentID, i),
			TournamentID: tournamentID,
			SenderID:     "u1",
			SenderName:   "U1",
			Text:         fmt.Sprintf("msg %d", i),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
		if err := log.Append(ctx, msg); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
}

func checkRecent(t *testing.T, log Log, tournamentID string) {
	t.Helper()
	ctx := context.Background()

	recent, err := log.Recent(ctx, tournamentID, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("Expected 5 messages, got %d", len(recent))
	}
	for i, msg := range recent {
		if want := fmt.Sprintf("msg %d", 11-i); msg.Text != want {
			t.Errorf("recent[%d] = %q, want %q", i, msg.Text, want)
		}
		if msg.ID == 0 {
			t.Errorf("recent[%d] has no store id", i)
		}
	}

	dup := recent[0]
	dup.Text = "rewritten"
	if err := log.Append(ctx, dup); err != nil {
		t.Fatalf("Duplicate append: %v", err)
	}
	again, _ := log.Recent(ctx, tournamentID, 1)
	if again[0].Text != "msg 11" {
		t.Errorf("Duplicate append overwrote message: %q", again[0].Text)
	}

	other, err := log.Recent(ctx, tournamentID+"-other", 10)
	if err != nil {
		t.Fatalf("Recent other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no messages for another tournament, got %d", len(other))
	}

	elsewhere := recent[0]
	elsewhere.TournamentID = tournamentID + "-other"
	if err := log.Append(ctx, elsewhere); err != nil {
		t.Fatalf("Append to another tournament: %v", err)
	}
	other, _ = log.Recent(ctx, tournamentID+"-other", 10)
	if len(other) != 1 || other[0].MessageID != recent[0].MessageID {
		t.Errorf("Expected a reused message id to be kept for another tournament, got %+v", other)
	}
}

func TestMemoryRecentNewestFirst(t *testing.T) {
	log := NewMemory()
	seed(t, log, "t1", 12)
	checkRecent(t, log, "t1")
	if log.Len("t1") != 12 {
		t.Errorf("Expected 12 stored messages, got %d", log.Len("t1"))
	}
}

func TestPostgresRecentNewestFirst(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate is not idempotent: %v", err)
	}

	pg := NewPostgres(pool)
	if err := pg.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	tournamentID := "store-test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM chat_messages WHERE tournament_id IN ($1, $2)`, tournamentID, tournamentID+"-other")
	})
	seed(t, pg, tournamentID, 12)
	checkRecent(t, pg, tournamentID)
}
