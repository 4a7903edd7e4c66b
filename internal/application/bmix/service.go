package bmix

import (
	"context"
	"time"

	"betsyMixer/internal/domain/layer"
	"betsyMixer/internal/infrastructure/udp"
	"betsyMixer/internal/logging"
)

// FrameNotifier est prévenu à chaque image décodée.
type FrameNotifier interface {
	FrameAvailable()
}

// Service consomme les datagrammes d'un seul port et alimente un seul calque.
type Service struct {
	rawPacketChan <-chan udp.RawPacket
	writer        *layer.Writer
	notify        FrameNotifier
	now           func() time.Time

	decoded uint64
	dropped uint64
}

func NewService(rawPacketChan <-chan udp.RawPacket, l *layer.Layer, notify FrameNotifier) *Service {
	return &Service{
		rawPacketChan: rawPacketChan,
		writer:        layer.NewWriter(l),
		notify:        notify,
		now:           time.Now,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run boucle jusqu'à l'annulation du contexte ou la fermeture du canal.
func (s *Service) Run(ctx context.Context) {
	log := logging.L().With("composant", "bmix", "calque", s.writer.Layer().Name())
	log.Info("BMIX: service démarré")

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-s.rawPacketChan:
			if !ok {
				return
			}
			s.Handle(pkt.Data)
		}
	}
}

// Handle décode un datagramme. Un paquet invalide est simplement ignoré.
func (s *Service) Handle(packet []byte) bool {
	h, err := Decode(packet, s.writer)
	if err != nil {
		s.dropped++
		logging.L().Debug("BMIX: paquet ignoré", "calque", s.writer.Layer().Name(), "err", err)
		return false
	}
	s.writer.Commit(s.now())
	s.decoded++
	if s.decoded == 1 {
		logging.L().Info("BMIX: première image", "calque", s.writer.Layer().Name(),
			"largeur", h.Width, "hauteur", h.Height, "canaux", h.Channels)
	}
	if s.notify != nil {
		s.notify.FrameAvailable()
	}
	return true
}

// Stats n'est sûr qu'après l'arrêt de Run ou depuis sa goroutine.
func (s *Service) Stats() (decoded, dropped uint64) {
	return s.decoded, s.dropped
}
