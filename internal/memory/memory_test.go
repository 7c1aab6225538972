package memory

import (
	"context"
	"fmt"
	"testing"
)

func TestLogRecentReturnsLastEntriesOldestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	for i := 1; i <= 5; i++ {
		if err := log.Record(ctx, Entry{Utterance: fmt.Sprintf("q%d", i), SQL: fmt.Sprintf("SELECT %d", i)}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	recent, err := log.Recent(ctx, DefaultWindow)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(recent))
	}
	for i, want := range []string{"q3", "q4", "q5"} {
		if recent[i].Utterance != want {
			t.Fatalf("Recent()[%d] = %q, want %q", i, recent[i].Utterance, want)
		}
	}
	if recent[0].RecordedAt.IsZero() {
		t.Fatal("RecordedAt should be stamped")
	}
}

func TestLogRecentWithFewerEntries(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	_ = log.Record(ctx, Entry{Utterance: "only", SQL: "SELECT 1"})
	recent, _ := log.Recent(ctx, 3)
	if len(recent) != 1 || recent[0].Utterance != "only" {
		t.Fatalf("Recent() = %#v", recent)
	}
	if got, _ := log.Recent(ctx, 0); len(got) != 0 {
		t.Fatalf("Recent(0) = %#v", got)
	}
}

func TestLogRecentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	_ = log.Record(ctx, Entry{Utterance: "a"})
	recent, _ := log.Recent(ctx, 1)
	recent[0].Utterance = "mutated"
	again, _ := log.Recent(ctx, 1)
	if again[0].Utterance != "a" {
		t.Fatalf("Recent() exposes internal storage: %q", again[0].Utterance)
	}
}

func TestLogResetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log := NewLog()
	_ = log.Record(ctx, Entry{Utterance: "a"})
	for i := 0; i < 2; i++ {
		if err := log.Reset(ctx); err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		if log.Len() != 0 {
			t.Fatalf("Len() after Reset = %d", log.Len())
		}
	}
	recent, _ := log.Recent(ctx, 3)
	if len(recent) != 0 {
		t.Fatalf("Recent() after Reset = %#v", recent)
	}
}
