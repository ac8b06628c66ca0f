// Package transport is the data channel between a translator worker and a
// simulator: one framed JSON message per synchronization window over a
// websocket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Kind tags a message.
type Kind string

const (
	KindEvents Kind = "events"
	KindSignal Kind = "signal"
	KindEnd    Kind = "end"
)

// StreamPath is the HTTP path a listener serves.
const StreamPath = "/stream"

// Event is one spike of one source, time in ms.
type Event struct {
	Source int     `json:"source"`
	Time   float64 `json:"time"`
}

// Message is one unit exchanged per window.
type Message struct {
	Kind   Kind      `json:"kind"`
	Window int       `json:"window"`
	Start  float64   `json:"start"`
	Width  float64   `json:"width"`
	Events []Event   `json:"events,omitempty"`
	Rates  []float64 `json:"rates,omitempty"`
}

// ErrPeerTaken is returned to a second dialer of a listener.
var ErrPeerTaken = errors.New("listener already has a peer")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// Listener accepts exactly one peer.
type Listener struct {
	ln    net.Listener
	srv   *http.Server
	conns chan *websocket.Conn
	token string

	mu    sync.Mutex
	taken bool
}

// Listen starts serving on addr ("127.0.0.1:0" picks a free port).
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	l := &Listener{
		ln:    ln,
		conns: make(chan *websocket.Conn, 1),
		token: "ws://" + ln.Addr().String() + StreamPath,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, l.handle)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	if l.taken {
		l.mu.Unlock()
		http.Error(w, ErrPeerTaken.Error(), http.StatusConflict)
		return
	}
	l.taken = true
	l.mu.Unlock()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.mu.Lock()
		l.taken = false
		l.mu.Unlock()
		return
	}
	l.conns <- ws
}

// Token is the address handed to the peer through the handshake.
func (l *Listener) Token() string { return l.token }

// Accept waits for the peer.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case ws := <-l.conns:
		return &Conn{ws: ws}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting. Established connections stay open.
func (l *Listener) Close() error {
	return l.srv.Close()
}

// Dial connects to a listener token.
func Dial(ctx context.Context, token string) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, token, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, ErrPeerTaken
		}
		return nil, fmt.Errorf("dialing %s: %w", token, err)
	}
	return &Conn{ws: ws}, nil
}

// Conn sends and receives whole messages. Send and Receive may be called
// from different goroutines, but not concurrently with themselves.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Send writes one message. Cancelling ctx unblocks a write stuck on a full
// socket; the connection is unusable afterwards.
func (c *Conn) Send(ctx context.Context, m Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.WriteJSON(m); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("sending %s message: %w", m.Kind, err)
	}
	return nil
}

// Receive reads one message. Cancelling ctx unblocks the read; the
// connection is unusable afterwards.
func (c *Conn) Receive(ctx context.Context) (Message, error) {
	deadline, _ := ctx.Deadline()
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return Message{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	var m Message
	if err := c.ws.ReadJSON(&m); err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		return Message{}, fmt.Errorf("receiving message: %w", err)
	}
	return m, nil
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
