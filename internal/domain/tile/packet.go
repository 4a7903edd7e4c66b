package tile

import (
	"fmt"
	"math"
)

const (
	SwapCommand  = "dpc upload 0;"
	ResetCommand = "reset firmware;"
)

// MaxLevel est gamma(255) à gain 1.0.
const MaxLevel = 4064

// DataCommand est le préfixe ASCII d'un morceau de données à l'offset donné.
func DataCommand(offset int) string {
	return fmt.Sprintf("dpc data 0 %d;", offset)
}

func GainCommand(level uint8) string {
	return fmt.Sprintf("dpc gain %d;", level)
}

// ClampGain ramène un gain logiciel dans [0,1].
func ClampGain(g float64) float64 {
	if math.IsNaN(g) || g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}

// Gamma passe un canal 8 bits en niveau 12 bits par une loi carrée en
// virgule fixe : floor(((raw*16)² / 4096) * gain).
func Gamma(raw byte, gain float64) uint16 {
	v := float64(int(raw) * 16)
	return uint16(math.Floor(v * v / 4096 * ClampGain(gain)))
}

// GammaTable précalcule Gamma pour les 256 valeurs d'un canal.
func GammaTable(gain float64) *[256]uint16 {
	var t [256]uint16
	for i := range t {
		t[i] = Gamma(byte(i), gain)
	}
	return &t
}

// Encode découpe la fenêtre de la dalle d dans canvas (W×H×3) et la code dans
// dst (PayloadSize octets). Les pixels hors du canevas sont noirs.
func Encode(dst []byte, canvas []byte, canvasW, canvasH int, d Descriptor, table *[256]uint16) {
	_ = dst[PayloadSize-1]
	for y := 0; y < Height; y++ {
		cy := y + d.Y
		for x := 0; x < Width; x++ {
			cx := x + d.X
			p := (y*Width + x) * BytesPerPixel

			var r, g, b byte
			if cx >= 0 && cx < canvasW && cy >= 0 && cy < canvasH {
				i := (cy*canvasW + cx) * 3
				if i+2 < len(canvas) {
					r, g, b = canvas[i], canvas[i+1], canvas[i+2]
				}
			}

			R, G, B := table[r], table[g], table[b]
			dst[p+0] = byte(R)
			dst[p+1] = byte(R >> 8)
			dst[p+2] = byte(G)
			dst[p+3] = byte(G >> 8)
			dst[p+4] = byte(B)
			dst[p+5] = byte(B >> 8)
		}
	}
}

// Chunks construit les deux datagrammes d'une dalle : commande ASCII suivie
// immédiatement des données, sans séparateur.
func Chunks(payload []byte) [2][]byte {
	first := DataCommand(0)
	second := DataCommand(FirstChunkSize)

	a := make([]byte, 0, len(first)+FirstChunkSize)
	a = append(a, first...)
	a = append(a, payload[:FirstChunkSize]...)

	b := make([]byte, 0, len(second)+len(payload)-FirstChunkSize)
	b = append(b, second...)
	b = append(b, payload[FirstChunkSize:]...)

	return [2][]byte{a, b}
}
