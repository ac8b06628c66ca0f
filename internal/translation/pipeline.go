package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/cosim/internal/handshake"
	"github.com/nvandessel/cosim/internal/metrics"
	"github.com/nvandessel/cosim/internal/recorder"
	"github.com/nvandessel/cosim/internal/transport"
)

// State is a pipeline lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrPipelineClosed is returned by Run once the pipeline has finished.
var ErrPipelineClosed = errors.New("pipeline closed")

// ErrPipelineRunning is returned by a second concurrent Run.
var ErrPipelineRunning = errors.New("pipeline already running")

// TranslationError reports a missing or malformed unit during STREAMING.
type TranslationError struct {
	Window int
	Err    error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation failed at window %d: %v", e.Window, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Peer is one end of the data channel. *transport.Conn implements it.
type Peer interface {
	Send(ctx context.Context, m transport.Message) error
	Receive(ctx context.Context) (transport.Message, error)
	Close() error
}

// DialFunc opens the data channel named by a handshake token.
type DialFunc func(ctx context.Context, token string) (Peer, error)

// DialTransport dials a websocket transport token.
func DialTransport(ctx context.Context, token string) (Peer, error) {
	conn, err := transport.Dial(ctx, token)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Pipeline translates one direction of one region.
type Pipeline struct {
	config  Config
	channel handshake.Channel
	dial    DialFunc
	logger  *slog.Logger
	metrics *metrics.Metrics
	rec     *recorder.Recorder
	onState func(State)

	mu      sync.Mutex
	state   State
	started bool
	windows int
}

// NewPipeline returns a pipeline in CONNECTING that has not started.
func NewPipeline(ch handshake.Channel, config Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		config:  config,
		channel: ch,
		dial:    DialTransport,
		logger:  logger.With("direction", string(config.Direction), "region", config.Region),
		state:   StateConnecting,
	}
}

// SetDialer replaces the data channel dialer.
func (p *Pipeline) SetDialer(d DialFunc) { p.dial = d }

// SetMetrics attaches instruments.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// SetRecorder taps every rate frame into r.
func (p *Pipeline) SetRecorder(r *recorder.Recorder) { p.rec = r }

// OnStateChange registers fn, called on every transition including the
// initial CONNECTING when Run starts.
func (p *Pipeline) OnStateChange(fn func(State)) { p.onState = fn }

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Windows returns the number of windows translated so far.
func (p *Pipeline) Windows() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.windows
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.logger.Debug("pipeline state", "state", s.String())
	if p.onState != nil {
		p.onState(s)
	}
}

// Run drives the pipeline to CLOSED, or to FAILED with the returned error.
// A pipeline runs once; later calls return ErrPipelineClosed.
func (p *Pipeline) Run(ctx context.Context) (retErr error) {
	p.mu.Lock()
	if p.started {
		terminal := p.state == StateClosed || p.state == StateFailed
		p.mu.Unlock()
		if terminal {
			return ErrPipelineClosed
		}
		return ErrPipelineRunning
	}
	p.started = true
	p.mu.Unlock()

	if err := p.config.Validate(); err != nil {
		p.setState(StateFailed)
		return err
	}

	var peers []Peer
	defer func() {
		for _, peer := range peers {
			peer.Close()
		}
		if retErr != nil {
			p.metrics.TranslationFailed(string(p.config.Direction))
			p.logger.Error("pipeline failed", "error", retErr)
			p.setState(StateFailed)
			return
		}
		p.setState(StateClosed)
	}()

	p.setState(StateConnecting)
	upRole, downRole := Roles(p.config.Direction, p.config.Region)
	up, err := p.connect(ctx, upRole)
	if err != nil {
		return err
	}
	peers = append(peers, up)
	var down Peer
	if downRole != "" {
		if down, err = p.connect(ctx, downRole); err != nil {
			return err
		}
		peers = append(peers, down)
	}

	p.setState(StateStreaming)
	var counter *SpikeCounter
	var generator *SpikeGenerator
	if p.config.Direction == TVBToNest {
		generator = NewSpikeGenerator(p.config.Window, p.config.Multiplicity, p.config.Seed, uint64(p.config.Region))
	} else {
		counter = NewSpikeCounter(p.config.Window, p.config.Sources, p.config.Normalization, p.config.Smoothing)
	}

	w := p.config.Window
	k := 0
	for start := 0.0; start < p.config.End; start = float64(k) * w {
		began := time.Now()
		msg, err := up.Receive(ctx)
		if err != nil {
			return &TranslationError{Window: k, Err: err}
		}

		var out transport.Message
		var events int
		if generator != nil {
			out, events, err = p.ratesToSpikes(generator, k, start, msg)
		} else {
			out, events, err = p.spikesToRates(counter, k, start, msg)
		}
		if err != nil {
			return &TranslationError{Window: k, Err: err}
		}
		if down != nil {
			if err := down.Send(ctx, out); err != nil {
				return &TranslationError{Window: k, Err: err}
			}
		}

		p.metrics.ObserveWindow(string(p.config.Direction), events, time.Since(began))
		k++
		p.mu.Lock()
		p.windows = k
		p.mu.Unlock()
	}

	p.setState(StateDraining)
	if counter != nil {
		if rates := counter.Flush(); rates != nil {
			frame := transport.Message{Kind: transport.KindSignal, Window: k, Start: float64(k) * w, Width: w, Rates: rates}
			if err := p.record(frame); err != nil {
				return &TranslationError{Window: k, Err: err}
			}
			if down != nil {
				if err := down.Send(ctx, frame); err != nil {
					return &TranslationError{Window: k, Err: err}
				}
			}
		}
	}
	end := transport.Message{Kind: transport.KindEnd, Window: k, Start: float64(k) * w, Width: w}
	for _, peer := range peers {
		if err := peer.Send(ctx, end); err != nil {
			p.logger.Debug("end message not delivered", "error", err)
		}
	}
	p.logger.Info("pipeline drained", "windows", k)
	return nil
}

func (p *Pipeline) connect(ctx context.Context, role string) (Peer, error) {
	began := time.Now()
	d, err := p.channel.Connect(ctx, role, p.config.ConnectTimeout)
	p.metrics.ObserveHandshake(role, time.Since(began))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", role, err)
	}
	peer, err := p.dial(ctx, d.Token)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", role, err)
	}
	p.logger.Debug("peer connected", "role", role)
	return peer, nil
}

func (p *Pipeline) spikesToRates(c *SpikeCounter, k int, start float64, msg transport.Message) (transport.Message, int, error) {
	if err := expect(msg, transport.KindEvents, k); err != nil {
		return transport.Message{}, 0, err
	}
	rates, err := c.Rates(start, msg.Events)
	if err != nil {
		return transport.Message{}, 0, err
	}
	out := transport.Message{Kind: transport.KindSignal, Window: k, Start: start, Width: p.config.Window, Rates: rates}
	if err := p.record(out); err != nil {
		return transport.Message{}, 0, err
	}
	return out, len(msg.Events), nil
}

func (p *Pipeline) ratesToSpikes(g *SpikeGenerator, k int, start float64, msg transport.Message) (transport.Message, int, error) {
	if err := expect(msg, transport.KindSignal, k); err != nil {
		return transport.Message{}, 0, err
	}
	if len(msg.Rates) != p.config.Sources {
		return transport.Message{}, 0, fmt.Errorf("expected %d rates, got %d", p.config.Sources, len(msg.Rates))
	}
	if err := p.record(msg); err != nil {
		return transport.Message{}, 0, err
	}
	events, err := g.Events(start, msg.Rates)
	if err != nil {
		return transport.Message{}, 0, err
	}
	out := transport.Message{Kind: transport.KindEvents, Window: k, Start: start, Width: p.config.Window, Events: events}
	return out, len(events), nil
}

func (p *Pipeline) record(m transport.Message) error {
	return p.rec.Record(recorder.Frame{Window: m.Window, Start: m.Start, Width: m.Width, Rates: m.Rates})
}

func expect(msg transport.Message, kind transport.Kind, window int) error {
	if msg.Kind == transport.KindEnd {
		return fmt.Errorf("peer ended the stream early")
	}
	if msg.Kind != kind {
		return fmt.Errorf("expected %s message, got %q", kind, msg.Kind)
	}
	if msg.Window != window {
		return fmt.Errorf("expected window %d, got %d", window, msg.Window)
	}
	return nil
}
