package layer

import "time"

// Writer est le tampon arrière privé d'un récepteur. Le décodeur peint dans
// Pix() sans verrou, puis Commit publie la grille entière d'un coup.
//
// Le tampon garde la dernière image écrite : les pixels que le décodeur ne
// touche pas restent ceux de l'image précédente.
type Writer struct {
	layer *Layer
	back  []byte
}

func NewWriter(l *Layer) *Writer {
	return &Writer{layer: l, back: l.Snapshot(nil)}
}

func (w *Writer) Layer() *Layer { return w.layer }
func (w *Writer) Width() int    { return w.layer.width }
func (w *Writer) Height() int   { return w.layer.height }

func (w *Writer) Pix() []byte { return w.back }

// Commit recopie le tampon arrière dans le calque et horodate la mise à jour.
func (w *Writer) Commit(ts time.Time) {
	l := w.layer
	l.mu.Lock()
	copy(l.pix, w.back)
	l.lastUpdated = ts
	l.mu.Unlock()
}
