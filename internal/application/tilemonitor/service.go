// Package tilemonitor joue le rôle des dalles : il reçoit le trafic du
// moteur, reconstitue les images et compte les commandes.
package tilemonitor

import (
	"context"
	"sort"
	"sync"
	"time"

	domainTile "betsyMixer/internal/domain/tile"
	"betsyMixer/internal/infrastructure/udp"
	"betsyMixer/internal/logging"
)

// Source résume le trafic de données d'un émetteur (adresse:port).
type Source struct {
	Address    string
	Frames     uint64
	Chunks     uint64
	Incomplete uint64
	LastSeen   time.Time

	// Niveaux du premier pixel de la dernière image complète.
	Level [3]uint16
}

type Report struct {
	Sources []Source
	Swaps   uint64
	Resets  uint64
	Gain    int // -1 tant qu'aucun gain n'a été reçu
	Invalid uint64
}

type assembly struct {
	Source
	payload  []byte
	received int
}

// Service applique chaque swap diffusé à toutes les sources, comme le
// firmware : une source dont la charge utile est complète compte une image.
type Service struct {
	rawPacketIn <-chan udp.RawPacket
	now         func() time.Time

	mu      sync.Mutex
	sources map[string]*assembly
	swaps   uint64
	resets  uint64
	gain    int
	invalid uint64
}

func NewService(rawPacketIn <-chan udp.RawPacket) *Service {
	return &Service{
		rawPacketIn: rawPacketIn,
		now:         time.Now,
		sources:     make(map[string]*assembly),
		gain:        -1,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.Run(ctx)
}

func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.rawPacketIn:
			if !ok {
				return
			}
			s.Handle(raw)
		}
	}
}

// Handle traite un datagramme. Renvoie false s'il n'est pas reconnu.
func (s *Service) Handle(raw udp.RawPacket) bool {
	cmd, err := domainTile.ParseCommand(raw.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.invalid++
		logging.L().Debug("Tile Monitor: datagramme ignoré", "source", raw.From, "err", err)
		return false
	}

	switch cmd.Kind {
	case domainTile.CommandData:
		a := s.source(raw.From.String())
		n := copy(a.payload[cmd.Offset:], cmd.Data)
		a.received += n
		a.Chunks++
		a.LastSeen = s.now()
	case domainTile.CommandSwap:
		s.swaps++
		for _, a := range s.sources {
			switch {
			case a.received >= domainTile.PayloadSize:
				a.Frames++
				a.Level = domainTile.Level(a.payload, 0, 0)
			case a.received > 0:
				a.Incomplete++
			}
			a.received = 0
		}
	case domainTile.CommandGain:
		s.gain = int(cmd.Gain)
		logging.L().Info("Tile Monitor: gain reçu", "gain", cmd.Gain, "source", raw.From)
	case domainTile.CommandReset:
		s.resets++
		logging.L().Info("Tile Monitor: reset reçu", "source", raw.From)
	}
	return true
}

func (s *Service) source(addr string) *assembly {
	a, ok := s.sources[addr]
	if !ok {
		a = &assembly{Source: Source{Address: addr}, payload: make([]byte, domainTile.PayloadSize)}
		s.sources[addr] = a
		logging.L().Info("Tile Monitor: nouvelle source", "source", addr)
	}
	return a
}

// Report renvoie une copie des compteurs, sources triées par adresse.
func (s *Service) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{Swaps: s.swaps, Resets: s.resets, Gain: s.gain, Invalid: s.invalid}
	for _, a := range s.sources {
		r.Sources = append(r.Sources, a.Source)
	}
	sort.Slice(r.Sources, func(i, j int) bool { return r.Sources[i].Address < r.Sources[j].Address })
	return r
}
