package simulator

import (
	"image"
	"image/draw"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Plasma est le contenu de secours : un plasma sinusoïdal à mi-intensité,
// l'heure en haut à droite.
type Plasma struct {
	width  int
	height int
	start  time.Time
	clock  bool

	mask    *image.Alpha
	outline *image.Alpha
}

func NewPlasma(width, height int, start time.Time) *Plasma {
	r := image.Rect(0, 0, width, height)
	return &Plasma{
		width:   width,
		height:  height,
		start:   start,
		clock:   true,
		mask:    image.NewAlpha(r),
		outline: image.NewAlpha(r),
	}
}

// SetClock active ou non l'affichage de l'heure.
func (p *Plasma) SetClock(on bool) { p.clock = on }

// Generate remplit dst (W×H×3).
func (p *Plasma) Generate(now time.Time, dst []byte) {
	const end = 90.0
	t := now.Sub(p.start).Seconds()
	o1 := (4 - (end - t)) / 4
	o2 := (end - t) / 4
	o3 := t

	w, h := float64(p.width), float64(p.height)
	for y := 0; y < p.height; y++ {
		yv := float64(y)/h - 0.5
		for x := 0; x < p.width; x++ {
			xv := float64(x)/w - 0.5
			i := (y*p.width + x) * 3
			if i+2 >= len(dst) {
				return
			}
			dst[i] = byte(float64(plasmaValue(xv, yv, o1/3)) * 0.5)
			dst[i+1] = byte(float64(plasmaValue(xv, yv, o2/3)) * 0.5)
			dst[i+2] = byte(float64(plasmaValue(xv, yv, o3/3)) * 0.5)
		}
	}

	if p.clock && len(dst) >= p.width*p.height*3 {
		p.drawClock(now.Format("15:04:05"), dst)
	}
}

func plasmaValue(xv, yv, offset float64) int {
	od3 := offset / 3
	cy := yv + 0.5*math.Cos(od3)
	cx := xv + 0.5*math.Sin(offset/5)
	v1 := math.Sin(xv*10 + offset)
	v2 := math.Sin(10*(xv*math.Sin(offset/2)+yv*math.Cos(od3)) + offset)
	v3 := math.Sin(math.Hypot(cx, cy)*10 + offset)
	v := (v1 + v2 + v3) * math.Pi / 2
	return int(127.5*math.Sin(v) + 127.5)
}

// drawClock écrit le texte en blanc cerné de noir, calé en haut à droite.
func (p *Plasma) drawClock(text string, dst []byte) {
	face := basicfont.Face7x13
	adv := font.MeasureString(face, text).Ceil()
	x := p.width - adv - 2
	y := face.Ascent + 1

	draw.Draw(p.mask, p.mask.Rect, image.Transparent, image.Point{}, draw.Src)
	draw.Draw(p.outline, p.outline.Rect, image.Transparent, image.Point{}, draw.Src)

	for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		drawText(p.outline, face, x+d[0], y+d[1], text)
	}
	drawText(p.mask, face, x, y, text)

	for py := 0; py < p.height; py++ {
		for px := 0; px < p.width; px++ {
			i := (py*p.width + px) * 3
			switch {
			case p.mask.AlphaAt(px, py).A > 0:
				dst[i], dst[i+1], dst[i+2] = 255, 255, 255
			case p.outline.AlphaAt(px, py).A > 0:
				dst[i], dst[i+1], dst[i+2] = 0, 0, 0
			}
		}
	}
}

func drawText(dst draw.Image, face font.Face, x, y int, s string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
