// Package tpm2 reçoit du TPM2.NET et le plaque sur un calque, quelle que soit
// la taille annoncée par l'émetteur.
package tpm2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"betsyMixer/internal/domain/layer"
)

var (
	ErrTooShort     = errors.New("tpm2: datagramme trop court")
	ErrBadMagic     = errors.New("tpm2: signature invalide")
	ErrNoPayload    = errors.New("tpm2: pas de données")
	ErrSizeMismatch = errors.New("tpm2: taille inattendue")
)

const (
	magic0 = 0x9C
	magic1 = 0xDA
)

// Frame décrit ce que le décodeur a compris d'un datagramme.
type Frame struct {
	Declared int // longueur annoncée (octets 2-3)
	Header   int
	Avail    int
	Expected int
	SrcW     int
	SrcH     int
}

// HeaderLength devine la taille de l'en-tête : 4 ou 6 selon les émetteurs.
func HeaderLength(n, declared int) int {
	h := max(4, n-declared)
	if h != 4 && h != 6 {
		if n >= 6 {
			return 6
		}
		return 4
	}
	return h
}

// InferSize retrouve les dimensions source d'une image de n pixels pour un
// calque w×h : même largeur, sinon même hauteur, sinon à peu près carré.
func InferSize(n, w, h int) (sw, sh int) {
	sw = w
	sh = n / max(1, sw)
	if sw*sh == n {
		return sw, sh
	}
	sh = h
	sw = n / max(1, sh)
	if sw*sh == n {
		return sw, sh
	}
	sw = int(math.Round(math.Sqrt(float64(n))))
	if sw <= 0 {
		sw = w
	}
	return sw, max(1, n/sw)
}

type Decoder struct {
	opts Options
}

func NewDecoder(opts Options) *Decoder {
	return &Decoder{opts: opts}
}

func (d *Decoder) Options() Options { return d.opts }

// Decode peint le datagramme dans le tampon du writer. Les pixels non
// couverts (mode crop) gardent leur valeur précédente.
func (d *Decoder) Decode(packet []byte, w *layer.Writer) (Frame, error) {
	var f Frame
	if len(packet) < 4 {
		return f, fmt.Errorf("%w (%d octets)", ErrTooShort, len(packet))
	}
	if packet[0] != magic0 || packet[1] != magic1 {
		return f, fmt.Errorf("%w: 0x%02X 0x%02X", ErrBadMagic, packet[0], packet[1])
	}

	f.Declared = int(binary.BigEndian.Uint16(packet[2:4]))
	f.Header = HeaderLength(len(packet), f.Declared)
	f.Avail = max(0, len(packet)-f.Header)
	f.Expected = w.Width() * w.Height() * 3
	if f.Avail <= 0 {
		return f, ErrNoPayload
	}
	payload := packet[f.Header:]
	p := painter{opts: &d.opts, dst: w.Pix(), w: w.Width()}

	if f.Avail == f.Expected {
		f.SrcW, f.SrcH = w.Width(), w.Height()
		p.copyPixels(payload, w.Width()*w.Height())
		return f, nil
	}

	switch d.opts.Mode {
	case Strict:
		return f, fmt.Errorf("%w: %d octets, %d attendus", ErrSizeMismatch, f.Avail, f.Expected)
	case CropTopLeft:
		n := min(f.Avail/3, w.Width()*w.Height())
		if n <= 0 {
			return f, ErrNoPayload
		}
		p.copyPixels(payload, n)
	default:
		n := f.Avail / 3
		if n <= 0 {
			return f, ErrNoPayload
		}
		f.SrcW, f.SrcH = InferSize(n, w.Width(), w.Height())
		p.scale(payload, f.SrcW, f.SrcH, w.Height())
	}
	return f, nil
}

type painter struct {
	opts *Options
	dst  []byte
	w    int
}

// copyPixels écrit les n premiers pixels de src, ligne par ligne.
func (p *painter) copyPixels(src []byte, n int) {
	for i := 0; i < n; i++ {
		s := i * 3
		p.put(i%p.w, i/p.w, src[s], src[s+1], src[s+2])
	}
}

func (p *painter) scale(src []byte, sw, sh, h int) {
	for y := 0; y < h; y++ {
		sy := y * sh / h
		for x := 0; x < p.w; x++ {
			sx := x * sw / p.w
			s := (sy*sw + sx) * 3
			p.put(x, y, at(src, s), at(src, s+1), at(src, s+2))
		}
	}
}

// at lit un octet, zéro hors limites.
func at(b []byte, i int) byte {
	if i >= 0 && i < len(b) {
		return b[i]
	}
	return 0
}

func (p *painter) put(x, y int, r, g, b byte) {
	if p.opts.AlphaOverlay && p.transparent(r, g, b) {
		r, g, b = 0, 0, 0
	} else {
		switch p.opts.ChannelOrder {
		case BGR:
			r, b = b, r
		case GRB:
			r, g = g, r
		}
	}

	d := (y*p.w + p.shift(x)) * 3
	p.dst[d] = r
	p.dst[d+1] = g
	p.dst[d+2] = b
}

func (p *painter) shift(x int) int {
	s := p.opts.HorizontalShift
	if s == 0 {
		return x
	}
	return ((x+s)%p.w + p.w) % p.w
}

// transparent s'applique aux octets tels que reçus, avant réordonnancement.
func (p *painter) transparent(r, g, b byte) bool {
	if p.opts.LumaThreshold > 0 {
		luma := (int(r)*54 + int(g)*183 + int(b)*19) >> 8
		return luma <= int(p.opts.LumaThreshold)
	}
	tol := int(p.opts.KeyTolerance)
	return absDiff(r, p.opts.Key[0]) <= tol &&
		absDiff(g, p.opts.Key[1]) <= tol &&
		absDiff(b, p.opts.Key[2]) <= tol
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
