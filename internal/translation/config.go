// Package translation converts between the two simulators' data on a fixed
// synchronization cadence: spike events become per-source rates, and rates
// become Poisson spike trains.
//
// A Pipeline is one direction for one region. It is a small state machine,
// CONNECTING → STREAMING → DRAINING → CLOSED, that fails into FAILED.
package translation

import (
	"fmt"
	"time"

	"github.com/nvandessel/cosim/internal/params"
	"github.com/nvandessel/cosim/internal/utils"
)

// Direction names what a pipeline translates.
type Direction string

const (
	// NestToTVB turns spikes from the network into rates for the mean-field model.
	NestToTVB Direction = "nest_to_tvb"
	// TVBToNest turns mean-field rates into spike trains for the network.
	TVBToNest Direction = "tvb_to_nest"
	// NestRecord turns spikes into rates that are only recorded.
	NestRecord Direction = "nest_record"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case NestToTVB, TVBToNest, NestRecord:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q (valid: %s, %s, %s)", s, NestToTVB, TVBToNest, NestRecord)
}

// Section returns the parameter section configuring the direction.
func (d Direction) Section() string {
	switch d {
	case NestToTVB:
		return params.SectionNestToTVB
	case TVBToNest:
		return params.SectionTVBToNest
	default:
		return params.SectionRecordMPI
	}
}

// Roles returns the handshake roles a pipeline connects to. Upstream is the
// simulator it receives from; downstream is the one it sends to, empty for
// NestRecord.
func Roles(d Direction, region int) (upstream, downstream string) {
	switch d {
	case NestToTVB:
		return fmt.Sprintf("nest_spikes_out_%d", region), fmt.Sprintf("tvb_rates_in_%d", region)
	case TVBToNest:
		return fmt.Sprintf("tvb_rates_out_%d", region), fmt.Sprintf("nest_spikes_in_%d", region)
	default:
		return fmt.Sprintf("nest_spikes_out_%d", region), ""
	}
}

// ReadyRole is published by a worker once it starts connecting.
func ReadyRole(d Direction, region int) string {
	return fmt.Sprintf("%s_%d.ready", d, region)
}

// Config holds the settings of one pipeline.
type Config struct {
	Direction Direction
	Region    int

	// Window is the synchronization window in ms.
	Window float64

	// End stops streaming once the window start reaches it, in ms.
	End float64

	// Sources is the number of rate channels. Default: 1.
	Sources int

	// Normalization divides spike-count rates, typically the number of
	// neurons behind a source. Default: 1.
	Normalization float64

	// Smoothing mixes in the previous frame: r = (1-α)·r + α·r_prev. Default: 0.
	Smoothing float64

	// Multiplicity scales generated spike trains, typically the number of
	// synapses a rate drives. Default: 1.
	Multiplicity float64

	// Seed drives the spike generator; the region is the PCG stream.
	Seed uint64

	// ConnectTimeout bounds each handshake Connect.
	ConnectTimeout time.Duration
}

// ConfigFor reads the pipeline settings for d from a linked configuration.
func ConfigFor(cfg *params.Configuration, d Direction, region int) (Config, error) {
	sec, ok := cfg.Section(d.Section())
	if !ok {
		return Config{}, fmt.Errorf("missing section %s", d.Section())
	}

	c := Config{
		Direction:     d,
		Region:        region,
		Window:        utils.GetFloat64(sec, "synch", cfg.Synchronization()),
		End:           cfg.End(),
		Sources:       utils.GetInt(sec, "nb_sources", 1),
		Normalization: utils.GetFloat64(sec, "nb_neurons", 1),
		Smoothing:     utils.GetFloat64(sec, "smoothing", 0),
		Multiplicity:  utils.GetFloat64(sec, "nb_synapses", 1),
		Seed:          uint64(utils.GetInt(sec, "seed", 0)),
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", d.Section(), err)
	}
	return c, nil
}

// Validate checks the settings.
func (c Config) Validate() error {
	if _, err := ParseDirection(string(c.Direction)); err != nil {
		return err
	}
	if c.Window <= 0 {
		return fmt.Errorf("synchronization window must be positive, got %v", c.Window)
	}
	if c.End <= 0 {
		return fmt.Errorf("end must be positive, got %v", c.End)
	}
	if c.Sources < 1 {
		return fmt.Errorf("nb_sources must be at least 1, got %d", c.Sources)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("smoothing must be in [0, 1), got %v", c.Smoothing)
	}
	if c.Normalization <= 0 {
		return fmt.Errorf("nb_neurons must be positive, got %v", c.Normalization)
	}
	if c.Multiplicity <= 0 {
		return fmt.Errorf("nb_synapses must be positive, got %v", c.Multiplicity)
	}
	return nil
}

// Windows returns the number of windows streamed before DRAINING.
func (c Config) Windows() int {
	n := 0
	for start := 0.0; start < c.End; start = float64(n) * c.Window {
		n++
	}
	return n
}
