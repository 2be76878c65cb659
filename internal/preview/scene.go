// Package preview derives what the lamp looks like for a given color.
package preview

import (
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/dokzlo13/lampd/internal/color"
)

// Scene constants. The shade is a translucent cylinder in front of a grey backdrop.
const (
	ShadeOpacity   = 0.7
	LightIntensity = 10.0
)

// Backdrop is the wall behind the lamp.
var Backdrop = color.Color{R: 0x77, G: 0x77, B: 0x77}

// baseMaterial is the unlit color of the lamp base.
var baseMaterial = color.Color{R: 0x3a, G: 0x32, B: 0x2c}

// Scene is everything the preview paints for one color.
type Scene struct {
	Light     color.Color `json:"light"`
	Ambient   color.Color `json:"ambient"`
	Shade     color.Color `json:"shade"`
	Base      color.Color `json:"base"`
	Backdrop  color.Color `json:"backdrop"`
	Opacity   float64     `json:"opacity"`
	Intensity float64     `json:"intensity"`
	// Label is black or white, whichever reads better on Shade.
	Label color.Color `json:"label"`
}

// NewScene computes the scene lit by c.
func NewScene(c color.Color) Scene {
	light := toColorful(c)
	shade := toColorful(Backdrop).BlendRgb(light, ShadeOpacity).Clamped()
	base := toColorful(baseMaterial).BlendLab(light, 0.15).Clamped()

	return Scene{
		Light:     c,
		Ambient:   c,
		Shade:     fromColorful(shade),
		Base:      fromColorful(base),
		Backdrop:  Backdrop,
		Opacity:   ShadeOpacity,
		Intensity: LightIntensity,
		Label:     contrast(shade),
	}
}

func contrast(bg colorful.Color) color.Color {
	l, _, _ := bg.Lab()
	if l > 0.6 {
		return color.Color{}
	}
	return color.Color{R: 255, G: 255, B: 255}
}

func toColorful(c color.Color) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

func fromColorful(c colorful.Color) color.Color {
	r, g, b := c.RGB255()
	return color.Color{R: r, G: g, B: b}
}
