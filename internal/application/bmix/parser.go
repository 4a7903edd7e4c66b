// Package bmix décode le protocole BMIX : une image brute par datagramme,
// destinée à un calque fixe choisi par le port d'écoute.
package bmix

import (
	"encoding/binary"
	"errors"
	"fmt"

	"betsyMixer/internal/domain/layer"
)

const HeaderSize = 12

var Magic = [4]byte{0x23, 0x54, 0x26, 0x66}

var (
	ErrTooShort  = errors.New("bmix: datagramme trop court")
	ErrBadMagic  = errors.New("bmix: signature invalide")
	ErrChannels  = errors.New("bmix: nombre de canaux non supporté")
	ErrTruncated = errors.New("bmix: image tronquée")
)

// Header est l'en-tête de 12 octets, champs en gros-boutiste.
type Header struct {
	Height   int
	Width    int
	Channels int
	MaxVal   int
}

func ParseHeader(packet []byte) (Header, error) {
	if len(packet) < HeaderSize {
		return Header{}, fmt.Errorf("%w (%d octets)", ErrTooShort, len(packet))
	}
	if [4]byte(packet[0:4]) != Magic {
		return Header{}, ErrBadMagic
	}
	h := Header{
		Height:   int(binary.BigEndian.Uint16(packet[4:6])),
		Width:    int(binary.BigEndian.Uint16(packet[6:8])),
		Channels: int(binary.BigEndian.Uint16(packet[8:10])),
		MaxVal:   int(binary.BigEndian.Uint16(packet[10:12])),
	}
	if h.Channels != 1 && h.Channels != 3 {
		return h, fmt.Errorf("%w: %d", ErrChannels, h.Channels)
	}
	if need := HeaderSize + h.Width*h.Height*h.Channels; len(packet) < need {
		return h, fmt.Errorf("%w: %d octets, %d attendus", ErrTruncated, len(packet), need)
	}
	return h, nil
}

// Decode peint le datagramme dans le tampon du writer. Les pixels sources
// hors du calque sont ignorés, ceux du calque non couverts par l'image
// gardent leur valeur précédente. Une image à un canal donne (v,0,0).
func Decode(packet []byte, w *layer.Writer) (Header, error) {
	h, err := ParseHeader(packet)
	if err != nil {
		return h, err
	}

	dst := w.Pix()
	dw, dh := w.Width(), w.Height()
	src := packet[HeaderSize:]

	for y := 0; y < h.Height && y < dh; y++ {
		for x := 0; x < h.Width && x < dw; x++ {
			s := (y*h.Width + x) * h.Channels
			d := (y*dw + x) * 3
			if h.Channels == 3 {
				dst[d] = src[s]
				dst[d+1] = src[s+1]
				dst[d+2] = src[s+2]
			} else {
				dst[d] = src[s]
				dst[d+1] = 0
				dst[d+2] = 0
			}
		}
	}
	return h, nil
}
