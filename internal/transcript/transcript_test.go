package transcript

import (
	"context"
	"testing"
)

func TestMemoryStoreListsTailInOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, utterance := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, Turn{SessionID: "s1", Utterance: utterance}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := store.Append(ctx, Turn{SessionID: "s2", Utterance: "other"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	all, err := store.List(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].Utterance != "a" || all[2].Utterance != "c" {
		t.Fatalf("List(all) = %#v", all)
	}
	if all[0].ID == 0 || all[0].CreatedAt.IsZero() {
		t.Fatalf("Append() should assign id and time: %#v", all[0])
	}

	tail, _ := store.List(ctx, "s1", 2)
	if len(tail) != 2 || tail[0].Utterance != "b" {
		t.Fatalf("List(2) = %#v", tail)
	}

	store.Forget("s1")
	if gone, _ := store.List(ctx, "s1", 0); len(gone) != 0 {
		t.Fatalf("List() after Forget = %#v", gone)
	}
}
