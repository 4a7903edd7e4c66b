package liveness

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestICMPPingerLoopback(t *testing.T) {
	p := &ICMPPinger{}
	err := p.Ping(context.Background(), "127.0.0.1", time.Second)
	if errors.Is(err, ErrSocket) {
		t.Skipf("ICMP sockets unavailable here: %v", err)
	}
	if err != nil {
		t.Errorf("expected loopback echo reply, got %v", err)
	}
}

func TestICMPPingerBadAddress(t *testing.T) {
	p := &ICMPPinger{}
	if err := p.Ping(context.Background(), "not an address", 10*time.Millisecond); err == nil {
		t.Error("expected error for an unresolvable address")
	}
}
