// Package liveness surveille la présence du panneau et le resynchronise
// quand il revient.
package liveness

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"betsyMixer/internal/domain/sign"
	"betsyMixer/internal/logging"
)

const (
	DefaultInterval = time.Second
	DefaultTimeout  = 120 * time.Millisecond
	DefaultGrace    = 3 * time.Second
	DefaultSettle   = 500 * time.Millisecond
)

type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) error
}

// Resyncer remet les dalles dans un état connu après une coupure.
type Resyncer interface {
	Rebind() error
	Reset() error
	SetGain(level uint8) error
}

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// Grace est l'attente entre le retour du panneau et la réouverture des
	// sockets, Settle celle entre le reset et le gain.
	Grace  time.Duration
	Settle time.Duration
}

func DefaultOptions() Options {
	return Options{
		Interval: DefaultInterval,
		Timeout:  DefaultTimeout,
		Grace:    DefaultGrace,
		Settle:   DefaultSettle,
	}
}

// Monitor interroge la première et la dernière dalle. Il est le seul à
// modifier l'état en ligne du panneau.
type Monitor struct {
	first  string
	last   string
	pinger Pinger
	sync   Resyncer
	state  *sign.State
	opts   Options

	// Vrai tant que le socket ICMP reste indisponible, pour ne prévenir
	// qu'une fois.
	noSocket atomic.Bool
}

func NewMonitor(first, last string, pinger Pinger, sync Resyncer, state *sign.State, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Monitor{first: first, last: last, pinger: pinger, sync: sync, state: state, opts: opts}
}

// Run vérifie la présence à chaque intervalle. Le minuteur reste désarmé
// pendant une vérification, resynchronisation comprise.
func (m *Monitor) Run(ctx context.Context) error {
	logging.L().Info("Liveness: surveillance démarrée", "premiere", m.first, "derniere", m.last,
		"intervalle", m.opts.Interval)

	timer := time.NewTimer(m.opts.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			m.Check(ctx)
			timer.Reset(m.opts.Interval)
		}
	}
}

// Check renvoie l'état observé. Un seul échec suffit à passer hors ligne.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.reachable(ctx)
	if online == m.state.Online() {
		return online
	}

	if !online {
		logging.L().Info("Liveness: panneau hors ligne")
		m.state.SetOnline(false)
		return false
	}

	logging.L().Info("Liveness: panneau disponible, resynchronisation")
	if !m.resync(ctx) {
		return false
	}
	m.state.SetOnline(true)
	logging.L().Info("Liveness: panneau en ligne", "gain", m.state.GainLevel())
	return true
}

func (m *Monitor) reachable(ctx context.Context) bool {
	for _, addr := range []string{m.first, m.last} {
		err := m.pinger.Ping(ctx, addr, m.opts.Timeout)
		if errors.Is(err, ErrSocket) {
			if !m.noSocket.Swap(true) {
				logging.L().Error("Liveness: ping impossible, le panneau restera hors ligne. "+
					"Activer liveness.privileged ou élargir net.ipv4.ping_group_range", "err", err)
			}
			return false
		}
		if err != nil {
			logging.L().Debug("Liveness: pas de réponse", "adresse", addr, "err", err)
			return false
		}
	}
	m.noSocket.Store(false)
	return true
}

// resync renvoie false si le contexte est annulé en cours de route.
func (m *Monitor) resync(ctx context.Context) bool {
	if !sleep(ctx, m.opts.Grace) {
		return false
	}
	if err := m.sync.Rebind(); err != nil {
		logging.L().Warn("Liveness: réouverture des sockets impossible", "err", err)
	}
	if err := m.sync.Reset(); err != nil {
		logging.L().Warn("Liveness: reset impossible", "err", err)
	}
	if !sleep(ctx, m.opts.Settle) {
		return false
	}
	if err := m.sync.SetGain(m.state.GainLevel()); err != nil {
		logging.L().Warn("Liveness: gain non appliqué", "err", err)
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
