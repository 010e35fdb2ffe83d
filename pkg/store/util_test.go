package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestChunkRange(t *testing.T) {
	var windows [][2]int
	err := ChunkRange(7, 3, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := [][2]int{{0, 3}, {3, 6}, {6, 7}}
	if !reflect.DeepEqual(windows, expected) {
		t.Fatalf("expected windows %v, got %v", expected, windows)
	}
}

func TestChunkRangeEmpty(t *testing.T) {
	calls := 0
	err := ChunkRange(0, 3, func(start, end int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no calls for empty range, got %d", calls)
	}
}

func TestChunkRangeNonPositiveChunkSize(t *testing.T) {
	var windows [][2]int
	err := ChunkRange(5, 0, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(windows) != 1 || windows[0] != [2]int{0, 5} {
		t.Fatalf("expected single full window, got %v", windows)
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 2, func(start, end int) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected iteration to stop after error, got %d calls", calls)
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"a", "b", "", "a", "c", "b"})
	expected := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestDedupeStringsEmpty(t *testing.T) {
	if got := DedupeStrings(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
