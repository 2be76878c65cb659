// Package color defines the lamp color and its two wire representations:
// "#rrggbb" for pickers and "r,g,b" for the cloud property.
package color

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an 8-bit RGB triple. Values are comparable with ==.
type Color struct {
	R, G, B uint8
}

// ParseHex parses "#rrggbb" or "rrggbb" (either case) into a Color.
func ParseHex(s string) (Color, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(raw) != 6 {
		return Color{}, fmt.Errorf("invalid hex color %q: must be 6 hex digits", s)
	}
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// ParseDecimal parses the cloud wire format "r,g,b".
func ParseDecimal(s string) (Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Color{}, fmt.Errorf("invalid color triple %q: want 3 components, got %d", s, len(parts))
	}

	var out [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return Color{}, fmt.Errorf("invalid color triple %q: component %d: %w", s, i, err)
		}
		out[i] = uint8(v)
	}
	return Color{R: out[0], G: out[1], B: out[2]}, nil
}

// MustParseHex is ParseHex for constants; it panics on bad input.
func MustParseHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex returns "#rrggbb", lowercase and zero padded.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Decimal returns "r,g,b".
func (c Color) Decimal() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// String implements fmt.Stringer.
func (c Color) String() string {
	return c.Hex()
}

// MarshalText encodes the color as hex so it can be used in JSON and YAML.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText accepts either the hex or the decimal form.
func (c *Color) UnmarshalText(text []byte) error {
	s := string(text)
	var (
		parsed Color
		err    error
	)
	if strings.Contains(s, ",") {
		parsed, err = ParseDecimal(s)
	} else {
		parsed, err = ParseHex(s)
	}
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
