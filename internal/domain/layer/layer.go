// Package layer décrit un plan d'image alimenté par une seule source.
package layer

import (
	"fmt"
	"sync"
	"time"
)

// Layer est une grille W×H×3 (R,G,B), rangée ligne par ligne : l'octet du
// pixel (x,y) commence à (y*W+x)*3.
//
// Un seul écrivain (son récepteur ou producteur) et un seul lecteur (le
// compositeur). Le verrou n'est tenu que pendant les copies.
type Layer struct {
	name   string
	width  int
	height int

	mu          sync.RWMutex
	pix         []byte
	lastUpdated time.Time
	alpha       bool
	hidden      bool
}

// New crée un calque noir, jamais mis à jour.
func New(name string, width, height int, alpha bool) *Layer {
	return &Layer{
		name:   name,
		width:  width,
		height: height,
		pix:    make([]byte, width*height*3),
		alpha:  alpha,
	}
}

func (l *Layer) Name() string { return l.name }
func (l *Layer) Width() int   { return l.width }
func (l *Layer) Height() int  { return l.height }

// Size renvoie la taille attendue d'une grille complète, en octets.
func (l *Layer) Size() int { return l.width * l.height * 3 }

// Deliver est le point d'entrée des producteurs externes (lecture de
// fichier, caméra, remplissage génératif) : pix doit déjà être à la taille
// du panneau.
func (l *Layer) Deliver(pix []byte, ts time.Time) error {
	if len(pix) != l.Size() {
		return fmt.Errorf("calque %s: grille de %d octets, %d attendus", l.name, len(pix), l.Size())
	}
	l.mu.Lock()
	copy(l.pix, pix)
	l.lastUpdated = ts
	l.mu.Unlock()
	return nil
}

// View donne au lecteur un accès en lecture seule à la grille courante.
// pix ne doit pas être conservé après le retour de fn.
func (l *Layer) View(fn func(pix []byte)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.pix)
}

// Snapshot copie la grille courante dans dst (alloué si trop petit).
func (l *Layer) Snapshot(dst []byte) []byte {
	if len(dst) < l.Size() {
		dst = make([]byte, l.Size())
	}
	l.View(func(pix []byte) { copy(dst, pix) })
	return dst[:l.Size()]
}

func (l *Layer) LastUpdated() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdated
}

// Fresh indique si le calque a reçu une image depuis moins de ttl.
func (l *Layer) Fresh(now time.Time, ttl time.Duration) bool {
	last := l.LastUpdated()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) <= ttl
}

func (l *Layer) Alpha() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.alpha
}

func (l *Layer) SetAlpha(alpha bool) {
	l.mu.Lock()
	l.alpha = alpha
	l.mu.Unlock()
}

func (l *Layer) Hidden() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hidden
}

func (l *Layer) SetHidden(hidden bool) {
	l.mu.Lock()
	l.hidden = hidden
	l.mu.Unlock()
}
