package tpm2

import (
	"fmt"
	"strings"
)

const (
	DefaultPort            = 65506
	DefaultHorizontalShift = 34
	DefaultKeyTolerance    = 6
)

// SizeMode dit quoi faire d'une charge utile qui ne fait pas W×H×3 octets.
type SizeMode int

const (
	ScaleNearest SizeMode = iota
	CropTopLeft
	Strict
)

func (m SizeMode) String() string {
	switch m {
	case Strict:
		return "strict"
	case CropTopLeft:
		return "crop_top_left"
	default:
		return "scale_nearest"
	}
}

func ParseSizeMode(s string) (SizeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scale_nearest", "scale", "scalenearest":
		return ScaleNearest, nil
	case "crop_top_left", "crop", "croptopleft":
		return CropTopLeft, nil
	case "strict":
		return Strict, nil
	}
	return ScaleNearest, fmt.Errorf("mode de taille TPM2 inconnu: %q", s)
}

// ChannelOrder est l'ordre des octets dans la charge utile.
type ChannelOrder int

const (
	RGB ChannelOrder = iota
	BGR
	GRB
)

func (o ChannelOrder) String() string {
	switch o {
	case BGR:
		return "BGR"
	case GRB:
		return "GRB"
	default:
		return "RGB"
	}
}

func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "RGB":
		return RGB, nil
	case "BGR":
		return BGR, nil
	case "GRB":
		return GRB, nil
	}
	return RGB, fmt.Errorf("ordre de canaux TPM2 inconnu: %q", s)
}

type Options struct {
	Mode         SizeMode
	ChannelOrder ChannelOrder
	// Décalage circulaire de chaque ligne, en pixels. Positif vers la droite.
	HorizontalShift int

	// Transparence : luminance si LumaThreshold > 0, sinon clé de couleur.
	AlphaOverlay  bool
	LumaThreshold uint8
	Key           [3]byte
	KeyTolerance  uint8
}

func DefaultOptions() Options {
	return Options{
		Mode:            ScaleNearest,
		ChannelOrder:    RGB,
		HorizontalShift: DefaultHorizontalShift,
		AlphaOverlay:    true,
		KeyTolerance:    DefaultKeyTolerance,
	}
}
