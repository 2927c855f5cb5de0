package svc

import (
	"sync"
	"time"
)

// functionDeckLength bounds the recently-called-function history kept
// for the description/healthcheck handlers.
const functionDeckLength = 10

// stats tracks per-instance message counters and latency extremes.
// num_messages must always equal num_success+num_error, and once at
// least one message has been processed min<=avg<=max must hold — the
// first sample seeds min so it is never stuck at its zero value.
type stats struct {
	mu sync.Mutex

	numMessages int64
	numSuccess  int64
	numError    int64

	minMS float64
	maxMS float64
	lastMS float64
	avgMS  float64

	deck []string // most-recent-first, bounded to functionDeckLength
}

func newStats() *stats {
	return &stats{}
}

// recordFunction pushes fn to the front of the deck, evicting the
// oldest entry once the deck is full.
func (s *stats) recordFunction(fn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deck = append([]string{fn}, s.deck...)
	if len(s.deck) > functionDeckLength {
		s.deck = s.deck[:functionDeckLength]
	}
}

// recordResult updates the message counters and latency stats for one
// processed message.
func (s *stats) recordResult(success bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.numMessages++
	if success {
		s.numSuccess++
	} else {
		s.numError++
	}

	ms := float64(elapsed.Microseconds()) / 1000.0
	if s.numMessages == 1 {
		s.minMS = ms
		s.maxMS = ms
		s.avgMS = ms
	} else {
		if ms < s.minMS {
			s.minMS = ms
		}
		if ms > s.maxMS {
			s.maxMS = ms
		}
		s.avgMS = ((s.avgMS * float64(s.numMessages-1)) + ms) / float64(s.numMessages)
	}
	s.lastMS = ms
}

// snapshot is the read-only view served by the description/healthcheck
// handlers.
type snapshot struct {
	NumMessages int64    `json:"num_messages"`
	NumSuccess  int64    `json:"num_success"`
	NumError    int64    `json:"num_error"`
	MinMS       float64  `json:"min_ms"`
	MaxMS       float64  `json:"max_ms"`
	LastMS      float64  `json:"last_ms"`
	AvgMS       float64  `json:"avg_ms"`
	FunctionDeck []string `json:"function_deck"`
}

func (s *stats) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	deck := make([]string, len(s.deck))
	copy(deck, s.deck)
	return snapshot{
		NumMessages:  s.numMessages,
		NumSuccess:   s.numSuccess,
		NumError:     s.numError,
		MinMS:        s.minMS,
		MaxMS:        s.maxMS,
		LastMS:       s.lastMS,
		AvgMS:        s.avgMS,
		FunctionDeck: deck,
	}
}
