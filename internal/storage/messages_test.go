package storage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/vennietweek/llm-chat/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestAddAndListKeepsInsertionOrder(t *testing.T) {
	store := NewMessageStore(openTestDB(t))
	ctx := context.Background()

	// Same-instant inserts must still come back in insertion order.
	for i := 0; i < 5; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := store.Add(ctx, role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
	}

	msgs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != fmt.Sprintf("turn %d", i) {
			t.Fatalf("message %d out of order: %q", i, m.Content)
		}
	}
}

func TestRecentReturnsTrailingWindowOldestFirst(t *testing.T) {
	store := NewMessageStore(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := store.Add(ctx, models.RoleUser, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	msgs, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	want := []string{"turn 3", "turn 4", "turn 5"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Fatalf("recent[%d] = %q, want %q", i, m.Content, want[i])
		}
	}
}

func TestRecentWithZeroLimit(t *testing.T) {
	store := NewMessageStore(openTestDB(t))
	msgs, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if msgs != nil {
		t.Fatalf("expected nil result, got %v", msgs)
	}
}

func TestLatestUserSkipsAssistantTurns(t *testing.T) {
	store := NewMessageStore(openTestDB(t))
	ctx := context.Background()

	if m, err := store.LatestUser(ctx); err != nil || m != nil {
		t.Fatalf("expected no message on empty store, got %v, %v", m, err)
	}

	if _, err := store.Add(ctx, models.RoleUser, "question"); err != nil {
		t.Fatalf("add user turn: %v", err)
	}
	if _, err := store.Add(ctx, models.RoleAssistant, "answer"); err != nil {
		t.Fatalf("add assistant turn: %v", err)
	}

	m, err := store.LatestUser(ctx)
	if err != nil {
		t.Fatalf("latest user: %v", err)
	}
	if m == nil || m.Content != "question" {
		t.Fatalf("expected latest user turn, got %+v", m)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	store := NewMessageStore(openTestDB(t))
	ctx := context.Background()

	if _, err := store.Add(ctx, models.RoleUser, "hello"); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty store, got %d messages", len(msgs))
	}
}
