// Package console prints the coloured progress banners a developer sees
// while a run moves through its phases.
package console

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Printer renders banners to a writer. The zero value discards output.
type Printer struct {
	w       io.Writer
	info    lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

// New returns a Printer for w. Colours are dropped automatically when w
// is not a terminal.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		info:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// Info announces the start of a phase.
func (p *Printer) Info(format string, args ...any) {
	if p == nil {
		return
	}
	p.print(p.info, format, args...)
}

// Success announces a phase that completed.
func (p *Printer) Success(format string, args ...any) {
	if p == nil {
		return
	}
	p.print(p.success, format, args...)
}

// Failure announces a fatal problem.
func (p *Printer) Failure(format string, args ...any) {
	if p == nil {
		return
	}
	p.print(p.failure, format, args...)
}

func (p *Printer) print(style lipgloss.Style, format string, args ...any) {
	if p.w == nil {
		return
	}
	fmt.Fprintf(p.w, "\n%s\n\n", style.Render(fmt.Sprintf(format, args...)))
}
