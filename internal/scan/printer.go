package scan

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/hm-remote/internal/ui"
)

// Printer writes classified events as tagged lines.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes one event, e.g. "[NEW] AA:BB:CC:DD:EE:FF HM-10".
func (p *Printer) Print(c Classified) {
	body := c.Display
	if c.Kind == KindAdvertised {
		body = c.Address.String()
	}
	tag := tagStyle(c.Kind).Render("[" + c.Kind.String() + "]")
	fmt.Fprintf(p.w, "%s %s\n", tag, body)
}

func tagStyle(k Kind) lipgloss.Style {
	switch k {
	case KindAdvertised:
		return ui.Advertised
	case KindLost:
		return ui.Lost
	case KindUpdated:
		return ui.Updated
	default:
		return ui.New
	}
}
