// Package compositor fusionne les calques actifs en une seule image.
package compositor

import (
	"time"

	"betsyMixer/internal/domain/layer"
)

// DefaultFreshness est la durée au-delà de laquelle un calque muet est ignoré.
const DefaultFreshness = 5 * time.Second

// Compositor possède le canevas. Il n'est pas sûr en concurrence : seule la
// boucle de dessin l'utilise.
type Compositor struct {
	width     int
	height    int
	freshness time.Duration
	canvas    []byte
}

func New(width, height int, freshness time.Duration) *Compositor {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Compositor{
		width:     width,
		height:    height,
		freshness: freshness,
		canvas:    make([]byte, width*height*3),
	}
}

func (c *Compositor) Width() int               { return c.width }
func (c *Compositor) Height() int              { return c.height }
func (c *Compositor) Freshness() time.Duration { return c.freshness }
func (c *Compositor) Canvas() []byte           { return c.canvas }

// Compose efface le canevas puis applique les calques du plus bas au plus
// haut. Un calque opaque recouvre tout ; un calque alpha ne recouvre que ses
// pixels non noirs. Les calques cachés ou périmés sont sautés.
//
// Le canevas renvoyé reste valable jusqu'au prochain appel.
func (c *Compositor) Compose(layers []*layer.Layer, now time.Time) []byte {
	clear(c.canvas)

	for _, l := range layers {
		if l.Hidden() || !l.Fresh(now, c.freshness) {
			continue
		}
		if l.Size() != len(c.canvas) {
			continue
		}
		alpha := l.Alpha()
		l.View(func(pix []byte) {
			if !alpha {
				copy(c.canvas, pix)
				return
			}
			for i := 0; i+2 < len(pix); i += 3 {
				if pix[i]|pix[i+1]|pix[i+2] != 0 {
					c.canvas[i] = pix[i]
					c.canvas[i+1] = pix[i+1]
					c.canvas[i+2] = pix[i+2]
				}
			}
		})
	}
	return c.canvas
}

// AnyFresh indique si un des calques a reçu une image récemment.
func (c *Compositor) AnyFresh(layers []*layer.Layer, now time.Time) bool {
	for _, l := range layers {
		if l.Fresh(now, c.freshness) {
			return true
		}
	}
	return false
}
