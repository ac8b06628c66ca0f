package translation

import (
	"math"
	"testing"

	"github.com/nvandessel/cosim/internal/transport"
)

func TestSpikeCounter_Rates(t *testing.T) {
	c := NewSpikeCounter(10, 2, 1, 0)

	rates, err := c.Rates(0, []transport.Event{
		{Source: 0, Time: 1}, {Source: 0, Time: 2}, {Source: 1, Time: 9.9},
		{Source: 1, Time: 12}, // next window
	})
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if rates[0] != 200 || rates[1] != 100 {
		t.Errorf("expected [200 100], got %v", rates)
	}
	if c.Pending() != 1 {
		t.Errorf("expected 1 carried event, got %d", c.Pending())
	}

	rates, err = c.Rates(10, nil)
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if rates[0] != 0 || rates[1] != 100 {
		t.Errorf("expected carried event counted, got %v", rates)
	}
	if c.Flush() != nil {
		t.Error("expected nothing to flush")
	}
}

func TestSpikeCounter_SinglePopulationSource(t *testing.T) {
	c := NewSpikeCounter(5, 1, 100, 0)
	rates, err := c.Rates(0, []transport.Event{{Source: 17, Time: 1}, {Source: 942, Time: 4}})
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	// 2 spikes / 5 ms / 100 neurons
	if math.Abs(rates[0]-4) > 1e-9 {
		t.Errorf("expected 4 Hz, got %v", rates[0])
	}
}

func TestSpikeCounter_Smoothing(t *testing.T) {
	c := NewSpikeCounter(10, 1, 1, 0.5)
	first, _ := c.Rates(0, []transport.Event{{Time: 1}, {Time: 2}})
	if first[0] != 200 {
		t.Fatalf("expected unsmoothed first frame 200, got %v", first[0])
	}
	second, _ := c.Rates(10, nil)
	if second[0] != 100 {
		t.Errorf("expected 0.5*0 + 0.5*200 = 100, got %v", second[0])
	}
}

func TestSpikeCounter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		events []transport.Event
	}{
		{"before window", []transport.Event{{Source: 0, Time: 9}}},
		{"two windows ahead", []transport.Event{{Source: 0, Time: 30}}},
		{"source out of range", []transport.Event{{Source: 5, Time: 11}}},
		{"nan time", []transport.Event{{Source: 0, Time: math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewSpikeCounter(10, 2, 1, 0)
			if _, err := c.Rates(10, tt.events); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSpikeCounter_Flush(t *testing.T) {
	c := NewSpikeCounter(10, 1, 1, 0)
	if _, err := c.Rates(0, []transport.Event{{Time: 15}}); err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	rates := c.Flush()
	if len(rates) != 1 || rates[0] != 100 {
		t.Errorf("expected flushed [100], got %v", rates)
	}
	if c.Pending() != 0 {
		t.Error("expected carry cleared")
	}
}

func TestSpikeGenerator_ZeroRate(t *testing.T) {
	g := NewSpikeGenerator(10, 1, 42, 1)
	for k := 0; k < 100; k++ {
		events, err := g.Events(float64(k)*10, []float64{0, 0, 0})
		if err != nil {
			t.Fatalf("Events failed: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("expected no events for zero rate, got %d", len(events))
		}
	}
}

func TestSpikeGenerator_InvalidRate(t *testing.T) {
	g := NewSpikeGenerator(10, 1, 42, 1)
	for _, r := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := g.Events(0, []float64{r}); err == nil {
			t.Errorf("expected error for rate %v", r)
		}
	}
}

func TestSpikeGenerator_EventsInWindow(t *testing.T) {
	g := NewSpikeGenerator(5, 1, 7, 3)
	events, err := g.Events(20, []float64{2000, 500})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	for _, ev := range events {
		if ev.Time < 20 || ev.Time >= 25 {
			t.Errorf("event at %v outside [20, 25)", ev.Time)
		}
		if ev.Source != 0 && ev.Source != 1 {
			t.Errorf("unexpected source %d", ev.Source)
		}
	}
}

func TestSpikeGenerator_Deterministic(t *testing.T) {
	a, _ := NewSpikeGenerator(10, 1, 99, 2).Events(0, []float64{800})
	b, _ := NewSpikeGenerator(10, 1, 99, 2).Events(0, []float64{800})
	if len(a) != len(b) {
		t.Fatalf("expected identical draws, got %d and %d events", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

// A constant rate sent through spikes and counted back converges on the rate.
func TestRoundTrip_Converges(t *testing.T) {
	const (
		rate    = 50.0 // Hz
		width   = 10.0 // ms
		windows = 4000
		synapse = 20.0
	)
	g := NewSpikeGenerator(width, synapse, 2024, 1)
	c := NewSpikeCounter(width, 1, synapse, 0)

	var total float64
	var sum float64
	for k := 0; k < windows; k++ {
		start := float64(k) * width
		events, err := g.Events(start, []float64{rate})
		if err != nil {
			t.Fatalf("Events failed: %v", err)
		}
		total += float64(len(events))
		rates, err := c.Rates(start, events)
		if err != nil {
			t.Fatalf("Rates failed: %v", err)
		}
		sum += rates[0]
	}

	expected := rate * synapse * width / 1000 // 10 events per window
	mean := total / windows
	// Poisson: sd of the mean is sqrt(10/4000) = 0.05; allow 5 sd.
	if math.Abs(mean-expected) > 0.25 {
		t.Errorf("expected mean count %v, got %v", expected, mean)
	}
	if meanRate := sum / windows; math.Abs(meanRate-rate) > 2.5 {
		t.Errorf("expected mean rate %v Hz, got %v", rate, meanRate)
	}
}
