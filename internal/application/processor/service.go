// Package processor porte la boucle de dessin : composition, persistance et
// envoi, toujours depuis une seule goroutine.
package processor

import (
	"context"
	"sync/atomic"
	"time"

	"betsyMixer/internal/application/compositor"
	"betsyMixer/internal/application/persistence"
	"betsyMixer/internal/domain/layer"
	"betsyMixer/internal/logging"
)

const DefaultFallbackInterval = 25 * time.Millisecond

// Output reçoit chaque image finale.
type Output interface {
	Draw(canvas []byte, width, height int)
}

// Publisher reçoit une copie de l'image envoyée (aperçu).
type Publisher interface {
	Publish(canvas []byte, width, height int)
}

// Filler produit le contenu de secours quand aucune source n'est active.
type Filler interface {
	Generate(now time.Time, dst []byte)
}

type Options struct {
	FallbackInterval time.Duration
	Filler           Filler
	Preview          Publisher
}

// Service consomme les signaux « image disponible ». Une rafale de signaux
// pendant un cycle ne donne qu'un seul cycle de plus.
type Service struct {
	layers     []*layer.Layer
	comp       *compositor.Compositor
	ring       *persistence.Ring
	out        Output
	preview    Publisher
	filler     Filler
	fillWriter *layer.Writer
	fallback   time.Duration
	now        func() time.Time

	trigger   chan struct{}
	cycles    atomic.Uint64
	coalesced atomic.Uint64
}

// NewService : layers[0] est le calque de secours, les suivants sont les
// sources, du plus bas au plus haut.
func NewService(layers []*layer.Layer, comp *compositor.Compositor, ring *persistence.Ring, out Output, opts Options) *Service {
	if opts.FallbackInterval <= 0 {
		opts.FallbackInterval = DefaultFallbackInterval
	}
	s := &Service{
		layers:   layers,
		comp:     comp,
		ring:     ring,
		out:      out,
		preview:  opts.Preview,
		filler:   opts.Filler,
		fallback: opts.FallbackInterval,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
	if s.filler != nil && len(layers) > 0 {
		s.fillWriter = layer.NewWriter(layers[0])
	}
	return s
}

// FrameAvailable ne bloque jamais.
func (s *Service) FrameAvailable() {
	select {
	case s.trigger <- struct{}{}:
	default:
		s.coalesced.Add(1)
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run traite les signaux et le minuteur de secours jusqu'à l'annulation du
// contexte. Le minuteur n'est réarmé qu'après son traitement.
func (s *Service) Run(ctx context.Context) error {
	logging.L().Info("Processor: boucle de dessin démarrée",
		"calques", len(s.layers), "secours", s.fallback)

	timer := time.NewTimer(s.fallback)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.L().Info("Processor: arrêt", "cycles", s.cycles.Load(), "fusionnes", s.coalesced.Load())
			return nil
		case <-s.trigger:
			s.DrawOnce(s.now())
		case <-timer.C:
			s.Tick(s.now())
			timer.Reset(s.fallback)
		}
	}
}

// Tick : le calque de secours n'est visible que si aucune source n'est
// fraîche, et dans ce cas on le régénère puis on dessine.
func (s *Service) Tick(now time.Time) bool {
	if len(s.layers) == 0 {
		return false
	}
	hasData := s.comp.AnyFresh(s.layers[1:], now)
	s.layers[0].SetHidden(hasData)
	if hasData {
		return false
	}
	if s.fillWriter != nil {
		s.filler.Generate(now, s.fillWriter.Pix())
		s.fillWriter.Commit(now)
	}
	s.DrawOnce(now)
	return true
}

// DrawOnce exécute un cycle complet.
func (s *Service) DrawOnce(now time.Time) {
	canvas := s.comp.Compose(s.layers, now)
	frame := s.ring.Process(canvas)
	w, h := s.comp.Width(), s.comp.Height()

	s.out.Draw(frame, w, h)
	if s.preview != nil {
		s.preview.Publish(frame, w, h)
	}
	s.cycles.Add(1)
}

func (s *Service) Cycles() uint64    { return s.cycles.Load() }
func (s *Service) Coalesced() uint64 { return s.coalesced.Load() }
