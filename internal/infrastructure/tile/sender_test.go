package tile

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"betsyMixer/internal/domain/sign"
	domainTile "betsyMixer/internal/domain/tile"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func port(c *net.UDPConn) int { return c.LocalAddr().(*net.UDPAddr).Port }

func read(t *testing.T, c *net.UDPConn, wait time.Duration) ([]byte, bool) {
	t.Helper()
	buf := make([]byte, 4096)
	c.SetReadDeadline(time.Now().Add(wait))
	n, _, err := c.ReadFromUDP(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func newTestSender(t *testing.T, tiles int) (*Sender, *sign.State, *net.UDPConn, *net.UDPConn) {
	t.Helper()
	data, bcast := listen(t), listen(t)
	descs := make([]domainTile.Descriptor, tiles)
	for i := range descs {
		descs[i] = domainTile.Descriptor{Address: "127.0.0.1", X: i * domainTile.Width}
	}
	state := sign.NewState()
	s, err := NewSender(descs, Options{
		Port:      port(data),
		Broadcast: fmt.Sprintf("127.0.0.1:%d", port(bcast)),
		GainScale: 1,
	}, state)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, state, data, bcast
}

func TestDrawSendsTwoChunksPerTileThenSwap(t *testing.T) {
	s, state, data, bcast := newTestSender(t, 2)
	state.SetOnline(true)

	w, h := 2*domainTile.Width, domainTile.Height
	canvas := make([]byte, w*h*3)
	canvas[0] = 255
	s.Draw(canvas, w, h)

	for i := 0; i < 4; i++ {
		pkt, ok := read(t, data, 2*time.Second)
		if !ok {
			t.Fatalf("expected 4 data datagrams, got %d", i)
		}
		prefix := "dpc data 0 0;"
		size := len(prefix) + domainTile.FirstChunkSize
		if i%2 == 1 {
			prefix = "dpc data 0 1024;"
			size = len(prefix) + domainTile.PayloadSize - domainTile.FirstChunkSize
		}
		if !bytes.HasPrefix(pkt, []byte(prefix)) || len(pkt) != size {
			t.Errorf("datagram %d: expected %q + data (%d bytes), got %d bytes %q", i, prefix, size, len(pkt), pkt[:16])
		}
		if i == 0 {
			// Premier pixel : rouge 255 à gain 1 = 4064, petit-boutiste.
			p := pkt[len(prefix):]
			if p[0] != 0xE0 || p[1] != 0x0F {
				t.Errorf("expected 0x0FE0 little-endian, got % X", p[:2])
			}
		}
	}

	swap, ok := read(t, bcast, 2*time.Second)
	if !ok || string(swap) != domainTile.SwapCommand {
		t.Errorf("expected swap broadcast, got %q", swap)
	}
}

func TestDrawSkippedWhileOffline(t *testing.T) {
	s, _, data, bcast := newTestSender(t, 1)

	w, h := domainTile.Width, domainTile.Height
	s.Draw(make([]byte, w*h*3), w, h)

	if _, ok := read(t, data, 100*time.Millisecond); ok {
		t.Error("expected no data datagram while offline")
	}
	if _, ok := read(t, bcast, 100*time.Millisecond); ok {
		t.Error("expected no swap while offline")
	}
}

func TestAdminCommands(t *testing.T) {
	s, state, _, bcast := newTestSender(t, 1)

	if err := s.SetGain(42); err != nil {
		t.Fatalf("SetGain: %v", err)
	}
	if got, _ := read(t, bcast, 2*time.Second); string(got) != "dpc gain 42;" {
		t.Errorf("expected gain command, got %q", got)
	}
	if state.GainLevel() != 42 {
		t.Errorf("expected gain level recorded, got %d", state.GainLevel())
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got, _ := read(t, bcast, 2*time.Second); string(got) != "reset firmware;" {
		t.Errorf("expected reset command, got %q", got)
	}
}

func TestRebindKeepsSending(t *testing.T) {
	s, state, data, _ := newTestSender(t, 1)
	state.SetOnline(true)
	if err := s.Rebind(); err != nil {
		t.Fatalf("Rebind: %v", err)
	}

	w, h := domainTile.Width, domainTile.Height
	s.Draw(make([]byte, w*h*3), w, h)
	pkt, ok := read(t, data, 2*time.Second)
	if !ok || !strings.HasPrefix(string(pkt), "dpc data 0 0;") {
		t.Errorf("expected data after rebind, got %q", pkt)
	}
}

func TestGainScaleClamped(t *testing.T) {
	s, _, _, _ := newTestSender(t, 0)
	s.SetGainScale(3)
	if s.GainScale() != 1 {
		t.Errorf("expected 1, got %v", s.GainScale())
	}
	s.SetGainScale(-1)
	if s.GainScale() != 0 {
		t.Errorf("expected 0, got %v", s.GainScale())
	}
}
