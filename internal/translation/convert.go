package translation

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/cosim/internal/transport"
)

// SpikeCounter turns event batches into per-source rates. It keeps at most
// the events that fell into the next window and the previous rate frame.
type SpikeCounter struct {
	width         float64
	sources       int
	normalization float64
	smoothing     float64

	carry []transport.Event
	prev  []float64
}

// NewSpikeCounter returns a counter for windows of width ms. With a single
// source every event counts for it, whatever its source id.
func NewSpikeCounter(width float64, sources int, normalization, smoothing float64) *SpikeCounter {
	if sources < 1 {
		sources = 1
	}
	if normalization <= 0 {
		normalization = 1
	}
	return &SpikeCounter{width: width, sources: sources, normalization: normalization, smoothing: smoothing}
}

// Rates converts the events received for the window starting at start.
// Events in [start+w, start+2w) are held for the next call; anything else
// outside the window is an error.
func (s *SpikeCounter) Rates(start float64, events []transport.Event) ([]float64, error) {
	end := start + s.width
	counts := make([]float64, s.sources)

	var next []transport.Event
	count := func(ev transport.Event) error {
		idx := ev.Source
		if s.sources == 1 {
			idx = 0
		}
		if idx < 0 || idx >= s.sources {
			return fmt.Errorf("event source %d outside [0, %d)", ev.Source, s.sources)
		}
		counts[idx]++
		return nil
	}

	for _, ev := range s.carry {
		if err := count(ev); err != nil {
			return nil, err
		}
	}
	s.carry = nil

	for _, ev := range events {
		switch {
		case math.IsNaN(ev.Time) || ev.Time < start || ev.Time >= end+s.width:
			return nil, fmt.Errorf("event at %v ms outside [%v, %v)", ev.Time, start, end+s.width)
		case ev.Time >= end:
			next = append(next, ev)
		default:
			if err := count(ev); err != nil {
				return nil, err
			}
		}
	}
	s.carry = next

	rates := make([]float64, s.sources)
	for i, c := range counts {
		rates[i] = c / (s.width / 1000) / s.normalization
	}
	return s.smooth(rates), nil
}

// Flush returns the rates of the carried-over events, or nil when none are held.
func (s *SpikeCounter) Flush() []float64 {
	if len(s.carry) == 0 {
		return nil
	}
	counts := make([]float64, s.sources)
	for _, ev := range s.carry {
		idx := ev.Source
		if s.sources == 1 {
			idx = 0
		}
		if idx >= 0 && idx < s.sources {
			counts[idx]++
		}
	}
	s.carry = nil
	rates := make([]float64, s.sources)
	for i, c := range counts {
		rates[i] = c / (s.width / 1000) / s.normalization
	}
	return s.smooth(rates)
}

// Pending reports how many events are carried into the next window.
func (s *SpikeCounter) Pending() int { return len(s.carry) }

func (s *SpikeCounter) smooth(rates []float64) []float64 {
	if s.smoothing > 0 && s.prev != nil {
		for i := range rates {
			rates[i] = (1-s.smoothing)*rates[i] + s.smoothing*s.prev[i]
		}
	}
	s.prev = append(s.prev[:0], rates...)
	return rates
}

// SpikeGenerator draws Poisson spike trains from rates.
type SpikeGenerator struct {
	width        float64
	multiplicity float64
	rng          *rand.Rand
}

// NewSpikeGenerator seeds a PCG source with (seed, stream) so every worker
// of a run draws an independent, reproducible sequence.
func NewSpikeGenerator(width, multiplicity float64, seed, stream uint64) *SpikeGenerator {
	if multiplicity <= 0 {
		multiplicity = 1
	}
	return &SpikeGenerator{
		width:        width,
		multiplicity: multiplicity,
		rng:          rand.New(rand.NewPCG(seed, stream)),
	}
}

// Events draws spikes for the window starting at start. The expected number
// of events of source i is rates[i]·multiplicity·width/1000. A zero rate
// yields no events.
func (g *SpikeGenerator) Events(start float64, rates []float64) ([]transport.Event, error) {
	var events []transport.Event
	end := start + g.width
	for i, r := range rates {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return nil, fmt.Errorf("source %d: invalid rate %v", i, r)
		}
		if r == 0 {
			continue
		}
		perMs := r * g.multiplicity / 1000
		for t := start + g.rng.ExpFloat64()/perMs; t < end; t += g.rng.ExpFloat64() / perMs {
			events = append(events, transport.Event{Source: i, Time: t})
		}
	}
	return events, nil
}
