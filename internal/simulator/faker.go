// internal/simulator/faker.go
package simulator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"betsyMixer/internal/domain/layer"
	"betsyMixer/internal/logging"
)

const fakerInterval = 40 * time.Millisecond // ~25 FPS

// FrameNotifier est prévenu après chaque image livrée.
type FrameNotifier interface {
	FrameAvailable()
}

// Faker alimente un calque avec des mires de test, par le même point
// d'entrée qu'un lecteur vidéo.
type Faker struct {
	target *layer.Layer
	notify FrameNotifier

	mu              sync.Mutex
	cancelCurrentOp context.CancelFunc
	wg              sync.WaitGroup
}

func NewFaker(target *layer.Layer, notify FrameNotifier) *Faker {
	logging.L().Info("Faker: initialisé", "calque", target.Name(),
		"largeur", target.Width(), "hauteur", target.Height())
	return &Faker{target: target, notify: notify}
}

// Patterns liste les mires reconnues par SendTestPattern.
var Patterns = []string{"white", "red", "green", "blue", "black", "off", "gradient", "animation", "stop"}

// SendTestPattern remplace la mire en cours.
func (f *Faker) SendTestPattern(command string) error {
	w, h := f.target.Width(), f.target.Height()
	switch command {
	case "white":
		f.loop(func(float64) []byte { return SolidFrame(w, h, 255, 255, 255) })
	case "red":
		f.loop(func(float64) []byte { return SolidFrame(w, h, 30, 0, 0) })
	case "green":
		f.loop(func(float64) []byte { return SolidFrame(w, h, 0, 30, 0) })
	case "blue":
		f.loop(func(float64) []byte { return SolidFrame(w, h, 0, 0, 30) })
	case "black", "off":
		f.loop(func(float64) []byte { return SolidFrame(w, h, 0, 0, 0) })
	case "gradient":
		f.loop(func(float64) []byte { return GradientFrame(w, h, [3]byte{255, 0, 0}, [3]byte{0, 0, 255}) })
	case "animation":
		f.loop(func(pos float64) []byte { return WaveFrame(w, h, pos, 0.3, [3]byte{255, 100, 0}) })
	case "stop":
		f.Stop()
	default:
		return fmt.Errorf("mire inconnue %q", command)
	}
	return nil
}

// loop livre frame(position) à chaque tick jusqu'à la prochaine commande.
// position parcourt [0,1] par pas de 0.02.
func (f *Faker) loop(frame func(position float64) []byte) {
	f.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.cancelCurrentOp = cancel
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(fakerInterval)
		defer ticker.Stop()

		position := 0.0
		for {
			f.deliver(frame(position))
			position += 0.02
			if position > 1.0 {
				position = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (f *Faker) deliver(pix []byte) {
	if err := f.target.Deliver(pix, time.Now()); err != nil {
		logging.L().Warn("Faker: image refusée", "err", err)
		return
	}
	if f.notify != nil {
		f.notify.FrameAvailable()
	}
}

// Stop arrête la mire en cours et attend la fin de sa goroutine.
func (f *Faker) Stop() {
	f.mu.Lock()
	cancel := f.cancelCurrentOp
	f.cancelCurrentOp = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
		logging.L().Info("Faker: opération précédente arrêtée")
	}
	f.wg.Wait()
}

func SolidFrame(w, h int, r, g, b byte) []byte {
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return pix
}

// GradientFrame va de start (colonne 0) à end (dernière colonne).
func GradientFrame(w, h int, start, end [3]byte) []byte {
	pix := make([]byte, w*h*3)
	for x := 0; x < w; x++ {
		progress := 0.0
		if w > 1 {
			progress = float64(x) / float64(w-1)
		}
		var c [3]byte
		for k := range c {
			c[k] = byte(float64(start[k]) + progress*float64(int(end[k])-int(start[k])))
		}
		for y := 0; y < h; y++ {
			i := (y*w + x) * 3
			pix[i], pix[i+1], pix[i+2] = c[0], c[1], c[2]
		}
	}
	return pix
}

// WaveFrame dessine une bande verticale centrée sur position (0..1) dont
// l'intensité décroît linéairement sur width/2 de chaque côté.
func WaveFrame(w, h int, position, width float64, color [3]byte) []byte {
	pix := make([]byte, w*h*3)
	for x := 0; x < w; x++ {
		pos := 0.0
		if w > 1 {
			pos = float64(x) / float64(w-1)
		}
		distance := math.Abs(pos - position)
		var intensity float64
		if distance <= width/2 {
			intensity = 1.0 - distance/(width/2)
		}
		r := byte(float64(color[0]) * intensity)
		g := byte(float64(color[1]) * intensity)
		b := byte(float64(color[2]) * intensity)
		for y := 0; y < h; y++ {
			i := (y*w + x) * 3
			pix[i], pix[i+1], pix[i+2] = r, g, b
		}
	}
	return pix
}
