package internode

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, "10.0.0.5:9999", KindGossipSyn, []byte("payload")); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	dest, kind, body, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if dest != "10.0.0.5:9999" {
		t.Errorf("expected dest 10.0.0.5:9999, got %s", dest)
	}
	if kind != KindGossipSyn {
		t.Errorf("expected KindGossipSyn, got %v", kind)
	}
	if string(body) != "payload" {
		t.Errorf("expected body 'payload', got %s", body)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestLinkSendDeliversToHandler(t *testing.T) {
	addrA := freeAddr(t)
	addrB := freeAddr(t)

	a := New(addrA)
	b := New(addrB)

	var mu sync.Mutex
	received := make([]string, 0)
	done := make(chan struct{}, 1)

	b.Handle(KindQueryRequest, func(from string, body []byte) {
		mu.Lock()
		received = append(received, string(body))
		mu.Unlock()
		done <- struct{}{}
	})

	if err := a.Start(); err != nil {
		t.Fatalf("a.Start failed: %v", err)
	}
	defer a.Stop()
	if err := b.Start(); err != nil {
		t.Fatalf("b.Start failed: %v", err)
	}
	defer b.Stop()

	if err := a.Send(addrB, KindQueryRequest, []byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "hello" {
		t.Errorf("expected to receive 'hello', got %v", received)
	}
}
