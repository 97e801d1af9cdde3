package ops

import (
	"math/rand/v2"
	"sync"
)

// Sampler keeps a configurable fraction of events per action.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
	random       func() float64
}

// NewSampler clamps defaultRate to [0, 1].
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[string]float64),
		random:       rand.Float64,
	}
}

// ShouldSample returns true if the event should be kept.
func (s *Sampler) ShouldSample(action string) bool {
	rate := s.rateFor(action)
	if rate >= 1 {
		return true
	}
	return s.random() < rate
}

// SetRate overrides the default for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[action] = clampRate(rate)
}

func (s *Sampler) rateFor(action string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rateByAction[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
