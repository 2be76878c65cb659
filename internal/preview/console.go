package preview

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/dokzlo13/lampd/internal/color"
)

// Console prints a swatch line for every color it is shown.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a Console writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Show prints the swatch for c
func (c *Console) Show(col color.Color) {
	line := Swatch(NewScene(col))

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// Swatch renders a scene as a single styled terminal line.
func Swatch(s Scene) string {
	shade := lipgloss.NewStyle().
		Background(lipgloss.Color(s.Shade.Hex())).
		Foreground(lipgloss.Color(s.Label.Hex())).
		Bold(true).
		Padding(0, 2)
	base := lipgloss.NewStyle().
		Background(lipgloss.Color(s.Base.Hex())).
		Padding(0, 1)

	return lipgloss.JoinHorizontal(lipgloss.Center,
		shade.Render(fmt.Sprintf("lamp %s  %s", s.Light.Hex(), s.Light.Decimal())),
		base.Render(" "),
	)
}
