package journal

import (
	"context"
	"testing"
	"time"
)

func TestRecordAndCountWithin(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := db.Record(ctx, now, "unfollow", "42", "ok"); err != nil {
		t.Fatal(err)
	}
	if err := db.Record(ctx, now.Add(10*time.Minute), "unfollow", "43", "ok"); err != nil {
		t.Fatal(err)
	}
	if err := db.Record(ctx, now.Add(2*time.Hour), "unfollow", "44", "failed"); err != nil {
		t.Fatal(err)
	}

	n, err := db.CountWithin(ctx, now, now.Add(time.Hour), "unfollow")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 actions in the hour, got %d", n)
	}
	n, err = db.CountWithin(ctx, now, now.Add(time.Hour), "login")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("type filter leaked, got %d", n)
	}
}

func TestRecentOrdering(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := db.Record(ctx, base.Add(time.Duration(i)*time.Minute), "unfollow", "t", "ok"); err != nil {
			t.Fatal(err)
		}
	}
	actions, err := db.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	if !actions[0].TS.After(actions[2].TS) {
		t.Fatalf("expected newest first, got %v .. %v", actions[0].TS, actions[2].TS)
	}
}
