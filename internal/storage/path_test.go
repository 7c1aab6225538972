package storage

import (
	"testing"
	"time"
)

func TestBuildTranscriptPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 6, 7_000_000, time.FixedZone("x", -5*3600))
	key, err := BuildTranscriptPath("3f1c0d9e-7a2b-4c55-9d0e-1b2a3c4d5e6f", ts)
	if err != nil {
		t.Fatalf("BuildTranscriptPath() error = %v", err)
	}
	want := "exports/date=2026-02-19/3f1c0d9e-7a2b-4c55-9d0e-1b2a3c4d5e6f/transcript-20260219T090506.007Z.json"
	if key != want {
		t.Fatalf("BuildTranscriptPath() = %q, want %q", key, want)
	}
}

func TestBuildResultPath(t *testing.T) {
	ts := time.Date(2026, time.March, 1, 23, 0, 0, 0, time.UTC)
	key, err := BuildResultPath("session-1", ts)
	if err != nil {
		t.Fatalf("BuildResultPath() error = %v", err)
	}
	want := "exports/date=2026-03-01/session-1/result-20260301T230000.000Z.parquet"
	if key != want {
		t.Fatalf("BuildResultPath() = %q, want %q", key, want)
	}
}

func TestBuildPathRejectsInvalidSessionID(t *testing.T) {
	for _, id := range []string{"", "../oops", "a/b"} {
		if _, err := BuildTranscriptPath(id, time.Now()); err == nil {
			t.Fatalf("BuildTranscriptPath(%q) expected error", id)
		}
	}
}
