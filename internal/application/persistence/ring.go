// Package persistence implémente l'effet de balayage décalé : chaque groupe
// de lignes affiche une image plus ancienne que celui du dessus.
package persistence

import "sync"

const (
	// ChangeThreshold est l'écart de somme R+G+B à partir duquel un pixel
	// compte comme changé.
	ChangeThreshold = 100
	// SceneCutPixels est le nombre de pixels changés qui déclenche un
	// remplissage complet de l'anneau.
	SceneCutPixels = 3000
)

// Ring garde les dernières images composées. Les réglages peuvent changer
// depuis une autre goroutine ; Process n'est appelé que par la boucle de
// dessin.
type Ring struct {
	mu            sync.Mutex
	width         int
	height        int
	slots         [][]byte
	cursor        int
	linesPerGroup int
	enabled       bool
	intelligent   bool
	prev          []byte
	out           []byte
}

// NewRing crée un anneau de capacity images (hauteur du panneau si ≤ 0).
func NewRing(width, height, capacity int) *Ring {
	if capacity <= 0 {
		capacity = height
	}
	size := width * height * 3
	slots := make([][]byte, capacity)
	for i := range slots {
		slots[i] = make([]byte, size)
	}
	return &Ring{
		width:         width,
		height:        height,
		slots:         slots,
		cursor:        -1,
		linesPerGroup: 1,
		prev:          make([]byte, size),
		out:           make([]byte, size),
	}
}

func (r *Ring) Capacity() int { return len(r.slots) }

func (r *Ring) SetEnabled(v bool) {
	r.mu.Lock()
	r.enabled = v
	r.mu.Unlock()
}

func (r *Ring) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Ring) SetIntelligent(v bool) {
	r.mu.Lock()
	r.intelligent = v
	r.mu.Unlock()
}

func (r *Ring) Intelligent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intelligent
}

// SetLinesPerGroup ramène n à au moins 1.
func (r *Ring) SetLinesPerGroup(n int) {
	r.mu.Lock()
	r.linesPerGroup = max(1, n)
	r.mu.Unlock()
}

func (r *Ring) LinesPerGroup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linesPerGroup
}

// Process range canvas dans l'anneau et renvoie l'image reconstruite.
// Désactivé, canvas est renvoyé tel quel et l'anneau n'est pas touché.
// Le tampon renvoyé reste valable jusqu'au prochain appel.
func (r *Ring) Process(canvas []byte) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || len(canvas) != len(r.out) {
		return canvas
	}

	r.cursor = (r.cursor + 1) % len(r.slots)
	copy(r.slots[r.cursor], canvas)

	if r.intelligent {
		if changedPixels(r.prev, canvas) > SceneCutPixels {
			r.fill(canvas)
		}
		copy(r.prev, canvas)
	}

	r.reconstruct()
	return r.out
}

// Fill recopie canvas dans toutes les cases.
func (r *Ring) Fill(canvas []byte) {
	r.mu.Lock()
	r.fill(canvas)
	r.mu.Unlock()
}

func (r *Ring) fill(canvas []byte) {
	for _, s := range r.slots {
		copy(s, canvas)
	}
}

// reconstruct : la ligne y vient de la case (cursor - y/linesPerGroup).
func (r *Ring) reconstruct() {
	stride := r.width * 3
	n := len(r.slots)
	for y := 0; y < r.height; y++ {
		slot := ((r.cursor-y/r.linesPerGroup)%n + n) % n
		off := y * stride
		copy(r.out[off:off+stride], r.slots[slot][off:off+stride])
	}
}

func changedPixels(a, b []byte) int {
	count := 0
	for i := 0; i+2 < len(a) && i+2 < len(b); i += 3 {
		sa := int(a[i]) + int(a[i+1]) + int(a[i+2])
		sb := int(b[i]) + int(b[i+1]) + int(b[i+2])
		d := sa - sb
		if d < 0 {
			d = -d
		}
		if d > ChangeThreshold {
			count++
		}
	}
	return count
}
