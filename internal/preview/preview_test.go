package preview

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dokzlo13/lampd/internal/color"
)

func TestNewScene(t *testing.T) {
	tests := []struct {
		name  string
		in    color.Color
		shade color.Color
		label color.Color
	}{
		{"black", color.Color{}, color.Color{R: 0x24, G: 0x24, B: 0x24}, color.Color{R: 255, G: 255, B: 255}},
		{"white", color.Color{R: 255, G: 255, B: 255}, color.Color{R: 0xd6, G: 0xd6, B: 0xd6}, color.Color{}},
		{"backdrop", Backdrop, Backdrop, color.Color{R: 255, G: 255, B: 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScene(tt.in)
			if s.Light != tt.in || s.Ambient != tt.in {
				t.Errorf("light/ambient = %v/%v, want %v", s.Light, s.Ambient, tt.in)
			}
			if s.Shade != tt.shade {
				t.Errorf("shade = %s, want %s", s.Shade.Hex(), tt.shade.Hex())
			}
			if s.Label != tt.label {
				t.Errorf("label = %s, want %s", s.Label.Hex(), tt.label.Hex())
			}
			if s.Opacity != ShadeOpacity || s.Backdrop != Backdrop {
				t.Errorf("constants not carried: %+v", s)
			}
		})
	}
}

func TestShadeFollowsLight(t *testing.T) {
	red := NewScene(color.Color{R: 255})
	if red.Shade.R <= red.Shade.G || red.Shade.R <= red.Shade.B {
		t.Errorf("red light gave shade %s", red.Shade.Hex())
	}
}

func TestConsoleShow(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf).Show(color.Color{R: 10, G: 20, B: 30})

	out := buf.String()
	if !strings.Contains(out, "#0a141e") || !strings.Contains(out, "10,20,30") {
		t.Errorf("swatch %q does not name the color", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("swatch is not a full line")
	}
}
