// Package tile envoie le canevas aux dalles du panneau, une connexion UDP
// par dalle plus une pour les commandes diffusées.
package tile

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"betsyMixer/internal/domain/sign"
	domainTile "betsyMixer/internal/domain/tile"
	"betsyMixer/internal/logging"
)

const DefaultGainScale = 0.2

// errLogInterval espace les journaux d'erreurs d'écriture.
const errLogInterval = time.Second

type Options struct {
	Port int
	// Broadcast est une adresse ("ff02::1%eth0") ou adresse:port.
	Broadcast string
	// Bind est l'adresse locale des sockets, vide pour laisser le système choisir.
	Bind      string
	GainScale float64
}

type Sender struct {
	tiles []domainTile.Descriptor
	opts  Options
	state *sign.State

	mu    sync.Mutex
	conns []*net.UDPConn
	bcast *net.UDPConn

	gainBits atomic.Uint64
	table    atomic.Pointer[[256]uint16]

	// Utilisés uniquement par la boucle de dessin.
	payload    []byte
	lastErrLog time.Time
	writeErrs  int
}

func NewSender(tiles []domainTile.Descriptor, opts Options, state *sign.State) (*Sender, error) {
	if opts.Port == 0 {
		opts.Port = domainTile.DefaultPort
	}
	if opts.Broadcast == "" {
		opts.Broadcast = domainTile.DefaultBroadcast
	}
	s := &Sender{
		tiles:   tiles,
		opts:    opts,
		state:   state,
		payload: make([]byte, domainTile.PayloadSize),
	}
	s.SetGainScale(opts.GainScale)

	logging.L().Info("Tile Sender: ouverture des connexions", "dalles", len(tiles), "port", opts.Port)
	conns, bcast, err := s.dialAll()
	if err != nil {
		return nil, err
	}
	s.conns, s.bcast = conns, bcast
	return s, nil
}

func (s *Sender) Tiles() []domainTile.Descriptor { return s.tiles }

// SetGainScale borne g dans [0,1] et recalcule la table gamma.
func (s *Sender) SetGainScale(g float64) {
	g = domainTile.ClampGain(g)
	s.gainBits.Store(math.Float64bits(g))
	s.table.Store(domainTile.GammaTable(g))
}

func (s *Sender) GainScale() float64 {
	return math.Float64frombits(s.gainBits.Load())
}

func (s *Sender) remote(host string, defaultPort int) (*net.UDPAddr, error) {
	hostport := net.JoinHostPort(host, strconv.Itoa(defaultPort))
	if h, p, err := net.SplitHostPort(host); err == nil {
		hostport = net.JoinHostPort(h, p)
	}
	return net.ResolveUDPAddr("udp", hostport)
}

func (s *Sender) dial(host string) (*net.UDPConn, error) {
	raddr, err := s.remote(host, s.opts.Port)
	if err != nil {
		return nil, fmt.Errorf("adresse %q invalide: %w", host, err)
	}
	var laddr *net.UDPAddr
	if s.opts.Bind != "" {
		laddr, err = net.ResolveUDPAddr("udp", net.JoinHostPort(s.opts.Bind, "0"))
		if err != nil {
			return nil, fmt.Errorf("adresse locale %q invalide: %w", s.opts.Bind, err)
		}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("connexion vers %s impossible: %w", raddr, err)
	}
	return conn, nil
}

// dialAll ouvre une connexion par dalle et celle de diffusion. Une diffusion
// injoignable n'est pas fatale : les commandes diffusées sont alors perdues.
func (s *Sender) dialAll() ([]*net.UDPConn, *net.UDPConn, error) {
	conns := make([]*net.UDPConn, 0, len(s.tiles))
	for _, d := range s.tiles {
		conn, err := s.dial(d.Address)
		if err != nil {
			closeAll(conns, nil)
			return nil, nil, fmt.Errorf("dalle %s: %w", d.Address, err)
		}
		conns = append(conns, conn)
	}

	bcast, err := s.dial(s.opts.Broadcast)
	if err != nil {
		logging.L().Warn("Tile Sender: diffusion indisponible", "adresse", s.opts.Broadcast, "err", err)
		bcast = nil
	}
	return conns, bcast, nil
}

// Rebind rouvre toutes les connexions puis remplace les anciennes.
func (s *Sender) Rebind() error {
	conns, bcast, err := s.dialAll()
	if err != nil {
		return fmt.Errorf("rebind: %w", err)
	}

	s.mu.Lock()
	oldConns, oldBcast := s.conns, s.bcast
	s.conns, s.bcast = conns, bcast
	s.mu.Unlock()

	closeAll(oldConns, oldBcast)
	logging.L().Info("Tile Sender: connexions rouvertes", "dalles", len(conns))
	return nil
}

func (s *Sender) snapshot() ([]*net.UDPConn, *net.UDPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns, s.bcast
}

// Draw envoie le canevas à toutes les dalles puis diffuse l'ordre
// d'affichage. Rien n'est envoyé tant que le panneau est hors ligne.
func (s *Sender) Draw(canvas []byte, width, height int) {
	if !s.state.Online() {
		return
	}
	conns, bcast := s.snapshot()
	table := s.table.Load()

	var firstErr error
	failed := 0
	for i, d := range s.tiles {
		if i >= len(conns) {
			break
		}
		domainTile.Encode(s.payload, canvas, width, height, d, table)
		for _, pkt := range domainTile.Chunks(s.payload) {
			if _, err := conns[i].Write(pkt); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("dalle %s: %w", d.Address, err)
				}
				failed++
				break
			}
		}
	}
	if bcast != nil {
		if _, err := bcast.Write([]byte(domainTile.SwapCommand)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("diffusion: %w", err)
			failed++
		}
	}
	if firstErr != nil {
		s.reportWriteErrors(failed, firstErr)
	}
}

func (s *Sender) reportWriteErrors(n int, err error) {
	s.writeErrs += n
	now := time.Now()
	if now.Sub(s.lastErrLog) < errLogInterval {
		return
	}
	logging.L().Warn("Tile Sender: erreurs d'écriture", "erreurs", s.writeErrs, "err", err)
	s.lastErrLog = now
	s.writeErrs = 0
}

func (s *Sender) broadcast(cmd string) error {
	_, bcast := s.snapshot()
	if bcast == nil {
		return fmt.Errorf("commande %q: diffusion indisponible", cmd)
	}
	if _, err := bcast.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("commande %q: %w", cmd, err)
	}
	return nil
}

// SetGain diffuse le gain matériel et le mémorise pour les reconnexions.
func (s *Sender) SetGain(level uint8) error {
	s.state.SetGainLevel(level)
	return s.broadcast(domainTile.GainCommand(level))
}

func (s *Sender) Reset() error {
	return s.broadcast(domainTile.ResetCommand)
}

func (s *Sender) Close() error {
	s.mu.Lock()
	conns, bcast := s.conns, s.bcast
	s.conns, s.bcast = nil, nil
	s.mu.Unlock()
	return closeAll(conns, bcast)
}

func closeAll(conns []*net.UDPConn, bcast *net.UDPConn) error {
	var errs []error
	for _, c := range conns {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	if bcast != nil {
		errs = append(errs, bcast.Close())
	}
	return errors.Join(errs...)
}
