package tpm2

import (
	"context"
	"time"

	"betsyMixer/internal/domain/layer"
	"betsyMixer/internal/infrastructure/udp"
	"betsyMixer/internal/logging"
)

// Seuls les premiers paquets sont journalisés, valides ou non.
const logWarmup = 5

type FrameNotifier interface {
	FrameAvailable()
}

type Service struct {
	rawPacketChan <-chan udp.RawPacket
	decoder       *Decoder
	writer        *layer.Writer
	notify        FrameNotifier
	now           func() time.Time

	packets uint64
}

func NewService(rawPacketChan <-chan udp.RawPacket, l *layer.Layer, opts Options, notify FrameNotifier) *Service {
	return &Service{
		rawPacketChan: rawPacketChan,
		decoder:       NewDecoder(opts),
		writer:        layer.NewWriter(l),
		notify:        notify,
		now:           time.Now,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.Run(ctx)
}

func (s *Service) Run(ctx context.Context) {
	o := s.decoder.Options()
	logging.L().Info("TPM2: service démarré",
		"largeur", s.writer.Width(), "hauteur", s.writer.Height(),
		"mode", o.Mode.String(), "ordre", o.ChannelOrder.String(), "decalage", o.HorizontalShift)

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-s.rawPacketChan:
			if !ok {
				return
			}
			s.Handle(pkt)
		}
	}
}

func (s *Service) Handle(pkt udp.RawPacket) bool {
	warm := s.packets < logWarmup
	s.packets++

	f, err := s.decoder.Decode(pkt.Data, s.writer)
	if warm {
		src := "inconnue"
		if pkt.From != nil {
			src = pkt.From.String()
		}
		logging.L().Info("TPM2: paquet reçu", "source", src, "octets", len(pkt.Data),
			"entete", f.Header, "longueur", f.Declared, "dispo", f.Avail, "attendu", f.Expected, "err", err)
	}
	if err != nil {
		return false
	}

	s.writer.Commit(s.now())
	if s.notify != nil {
		s.notify.FrameAvailable()
	}
	return true
}
