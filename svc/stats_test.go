package svc

import (
	"testing"
	"time"
)

func TestStatsMessageCountInvariant(t *testing.T) {
	s := newStats()
	s.recordResult(true, time.Millisecond)
	s.recordResult(false, 2*time.Millisecond)
	s.recordResult(true, 3*time.Millisecond)

	snap := s.snapshot()
	if snap.NumMessages != snap.NumSuccess+snap.NumError {
		t.Fatalf("num_messages=%d but success+error=%d", snap.NumMessages, snap.NumSuccess+snap.NumError)
	}
	if snap.NumMessages != 3 || snap.NumSuccess != 2 || snap.NumError != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestStatsMinMaxAvgOrdering(t *testing.T) {
	s := newStats()
	durations := []time.Duration{5 * time.Millisecond, 1 * time.Millisecond, 9 * time.Millisecond}
	for _, d := range durations {
		s.recordResult(true, d)
	}
	snap := s.snapshot()
	if snap.MinMS > snap.AvgMS || snap.AvgMS > snap.MaxMS {
		t.Fatalf("expected min<=avg<=max, got min=%v avg=%v max=%v", snap.MinMS, snap.AvgMS, snap.MaxMS)
	}
	if snap.MinMS != 1 || snap.MaxMS != 9 {
		t.Fatalf("unexpected min/max: min=%v max=%v", snap.MinMS, snap.MaxMS)
	}
}

func TestStatsFirstSampleSeedsMin(t *testing.T) {
	s := newStats()
	s.recordResult(true, 42*time.Millisecond)
	snap := s.snapshot()
	if snap.MinMS != 42 {
		t.Fatalf("expected the first sample to seed min, got %v", snap.MinMS)
	}
}

func TestFunctionDeckBounded(t *testing.T) {
	s := newStats()
	for i := 0; i < functionDeckLength+5; i++ {
		s.recordFunction("fn")
	}
	snap := s.snapshot()
	if len(snap.FunctionDeck) != functionDeckLength {
		t.Fatalf("expected deck length %d, got %d", functionDeckLength, len(snap.FunctionDeck))
	}
}

func TestFunctionDeckMostRecentFirst(t *testing.T) {
	s := newStats()
	s.recordFunction("a")
	s.recordFunction("b")
	snap := s.snapshot()
	if snap.FunctionDeck[0] != "b" {
		t.Fatalf("expected most recent call first, got %v", snap.FunctionDeck)
	}
}
