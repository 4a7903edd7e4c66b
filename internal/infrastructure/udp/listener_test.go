package udp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestListenerDeliversCopies(t *testing.T) {
	packets := make(chan RawPacket, 4)
	l, err := NewListener("test", 0, packets)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	conn, err := net.Dial("udp4", fmt.Sprintf("127.0.0.1:%d", l.LocalAddr().Port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("first"))
	conn.Write([]byte("second!"))

	var got [][]byte
	for len(got) < 2 {
		select {
		case p := <-packets:
			got = append(got, p.Data)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %d packets", len(got))
		}
	}
	if !bytes.Equal(got[0], []byte("first")) || !bytes.Equal(got[1], []byte("second!")) {
		t.Errorf("unexpected packets %q", got)
	}
}

func TestDualStackListenerAcceptsIPv4(t *testing.T) {
	packets := make(chan RawPacket, 1)
	l, err := NewDualStackListener("test", 0, packets)
	if err != nil {
		t.Fatalf("NewDualStackListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	conn, err := net.Dial("udp4", fmt.Sprintf("127.0.0.1:%d", l.LocalAddr().Port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte{0x9c, 0xda})

	select {
	case p := <-packets:
		if !bytes.Equal(p.Data, []byte{0x9c, 0xda}) {
			t.Errorf("unexpected data %v", p.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for IPv4 datagram on dual-stack socket")
	}
}

func TestListenerStopsOnCancel(t *testing.T) {
	packets := make(chan RawPacket)
	l, err := NewListener("test", 0, packets)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := l.conn.WriteToUDP([]byte("x"), l.LocalAddr()); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected connection to be closed after cancel")
}
