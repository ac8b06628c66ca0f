package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func pair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, l.Token())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	server, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestListen_Token(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer l.Close()
	if !strings.HasPrefix(l.Token(), "ws://127.0.0.1:") || !strings.HasSuffix(l.Token(), StreamPath) {
		t.Errorf("unexpected token %q", l.Token())
	}
}

func TestSendReceive(t *testing.T) {
	client, server := pair(t)
	ctx := context.Background()

	sent := Message{
		Kind:   KindEvents,
		Window: 3,
		Start:  10.5,
		Width:  3.5,
		Events: []Event{{Source: 0, Time: 11}, {Source: 1, Time: 12.25}},
	}
	if err := client.Send(ctx, sent); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got.Kind != KindEvents || got.Window != 3 || got.Start != 10.5 || got.Width != 3.5 {
		t.Errorf("unexpected header: %+v", got)
	}
	if len(got.Events) != 2 || got.Events[1].Time != 12.25 {
		t.Errorf("unexpected events: %+v", got.Events)
	}

	if err := server.Send(ctx, Message{Kind: KindSignal, Window: 3, Rates: []float64{1.5, 0}}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	back, err := client.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if back.Kind != KindSignal || len(back.Rates) != 2 || back.Rates[0] != 1.5 {
		t.Errorf("unexpected signal: %+v", back)
	}
}

func TestReceive_Cancelled(t *testing.T) {
	_, server := pair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := server.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestSend_CancelledWhileBlocked(t *testing.T) {
	client, _ := pair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The peer never reads, so the socket buffers eventually fill up.
	big := Message{Kind: KindSignal, Rates: make([]float64, 1<<17)}
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	var err error
	for err == nil && time.Since(start) < 10*time.Second {
		err = client.Send(ctx, big)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("expected cancellation to unblock Send, took %v", elapsed)
	}
}

func TestSend_AlreadyCancelled(t *testing.T) {
	client, _ := pair(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Send(ctx, Message{Kind: KindEnd}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReceive_PeerClosed(t *testing.T) {
	client, server := pair(t)
	client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := server.Receive(ctx); err == nil {
		t.Error("expected error after peer close")
	}
}

func TestDial_SecondPeerRejected(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := Dial(ctx, l.Token())
	if err != nil {
		t.Fatalf("first Dial failed: %v", err)
	}
	defer first.Close()

	if _, err := Dial(ctx, l.Token()); !errors.Is(err, ErrPeerTaken) {
		t.Errorf("expected ErrPeerTaken, got %v", err)
	}
}

func TestAccept_Cancelled(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer l.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Accept(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
