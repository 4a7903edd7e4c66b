package liveness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"betsyMixer/internal/domain/sign"
	domainTile "betsyMixer/internal/domain/tile"
	"betsyMixer/internal/infrastructure/tile"
	"betsyMixer/internal/logging"
)

type fakePinger struct {
	mu   sync.Mutex
	down map[string]bool
	hits []string
}

func (f *fakePinger) Ping(ctx context.Context, addr string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, addr)
	if f.down[addr] {
		return errors.New("timeout")
	}
	return nil
}

func (f *fakePinger) set(addr string, down bool) {
	f.mu.Lock()
	f.down[addr] = down
	f.mu.Unlock()
}

type recordingResyncer struct {
	calls []string
}

func (r *recordingResyncer) Rebind() error { r.calls = append(r.calls, "rebind"); return nil }
func (r *recordingResyncer) Reset() error  { r.calls = append(r.calls, "reset"); return nil }
func (r *recordingResyncer) SetGain(level uint8) error {
	r.calls = append(r.calls, fmt.Sprintf("gain %d", level))
	return nil
}

func instant() Options {
	return Options{Interval: time.Millisecond, Timeout: time.Millisecond}
}

func TestOnlineTransitionResyncs(t *testing.T) {
	p := &fakePinger{down: map[string]bool{}}
	r := &recordingResyncer{}
	state := sign.NewState()
	state.SetGainLevel(77)
	m := NewMonitor("a", "b", p, r, state, instant())

	if !m.Check(context.Background()) {
		t.Fatal("expected online")
	}
	if !state.Online() {
		t.Error("expected state online")
	}
	want := []string{"rebind", "reset", "gain 77"}
	if fmt.Sprint(r.calls) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, r.calls)
	}

	// Déjà en ligne : pas de nouvelle resynchronisation.
	m.Check(context.Background())
	if len(r.calls) != 3 {
		t.Errorf("expected no resync while staying online, got %v", r.calls)
	}
}

func TestEitherFailureIsOffline(t *testing.T) {
	p := &fakePinger{down: map[string]bool{}}
	state := sign.NewState()
	m := NewMonitor("a", "b", p, &recordingResyncer{}, state, instant())
	m.Check(context.Background())

	p.set("b", true)
	if m.Check(context.Background()) {
		t.Error("expected offline when the last tile is silent")
	}
	if state.Online() {
		t.Error("expected state offline")
	}

	p.set("b", false)
	p.set("a", true)
	p.hits = nil
	m.Check(context.Background())
	if len(p.hits) != 1 {
		t.Errorf("expected a single ping when the first tile is silent, got %v", p.hits)
	}
}

type socketlessPinger struct{}

func (socketlessPinger) Ping(context.Context, string, time.Duration) error {
	return fmt.Errorf("%w: socket: permission denied", ErrSocket)
}

func TestMissingSocketIsReportedOnce(t *testing.T) {
	var buf bytes.Buffer
	logging.Setup("info", "text", &buf)
	defer logging.Set(nil)

	state := sign.NewState()
	m := NewMonitor("a", "b", socketlessPinger{}, &recordingResyncer{}, state, instant())
	for i := 0; i < 5; i++ {
		if m.Check(context.Background()) {
			t.Fatal("expected offline without an ICMP socket")
		}
	}
	if state.Online() {
		t.Error("expected state offline")
	}

	out := buf.String()
	if n := strings.Count(out, "level=ERROR"); n != 1 {
		t.Errorf("expected a single error line, got %d in %q", n, out)
	}
	if !strings.Contains(out, "liveness.privileged") || !strings.Contains(out, "ping_group_range") {
		t.Errorf("expected the remedy in the log, got %q", out)
	}
}

func TestCancelDuringGraceStaysOffline(t *testing.T) {
	p := &fakePinger{down: map[string]bool{}}
	r := &recordingResyncer{}
	state := sign.NewState()
	opts := instant()
	opts.Grace = time.Hour
	m := NewMonitor("a", "b", p, r, state, opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m.Check(ctx) {
		t.Error("expected no transition when cancelled")
	}
	if state.Online() || len(r.calls) != 0 {
		t.Errorf("expected untouched state, got online=%v calls=%v", state.Online(), r.calls)
	}
}

func TestFailingChecksStopTransmission(t *testing.T) {
	data, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer data.Close()
	bcast, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer bcast.Close()

	state := sign.NewState()
	tiles := []domainTile.Descriptor{{Address: "127.0.0.1"}}
	sender, err := tile.NewSender(tiles, tile.Options{
		Port:      data.LocalAddr().(*net.UDPAddr).Port,
		Broadcast: bcast.LocalAddr().String(),
		GainScale: 1,
	}, state)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	p := &fakePinger{down: map[string]bool{}}
	m := NewMonitor("127.0.0.1", "127.0.0.1", p, sender, state, instant())
	if !m.Check(context.Background()) {
		t.Fatal("expected online")
	}

	p.set("127.0.0.1", true)
	m.Check(context.Background())
	m.Check(context.Background())
	if state.Online() {
		t.Fatal("expected offline after failing checks")
	}

	// Vider ce que la resynchronisation a pu envoyer.
	drain(data)
	canvas := make([]byte, domainTile.Width*domainTile.Height*3)
	sender.Draw(canvas, domainTile.Width, domainTile.Height)

	data.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if n, _, err := data.ReadFromUDP(make([]byte, 4096)); err == nil {
		t.Errorf("expected no tile datagram while offline, got %d bytes", n)
	}
}

func drain(c *net.UDPConn) {
	buf := make([]byte, 4096)
	for {
		c.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		if _, _, err := c.ReadFromUDP(buf); err != nil {
			return
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	p := &fakePinger{down: map[string]bool{"a": true}}
	m := NewMonitor("a", "b", p, &recordingResyncer{}, sign.NewState(), instant())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Errorf("expected nil on cancel, got %v", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.hits) == 0 {
		t.Error("expected at least one check")
	}
}
