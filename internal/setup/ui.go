package setup

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().Bold(true)
)

// printer writes wizard progress. Quiet drops step and success lines; warnings and failures always print.
type printer struct {
	w     io.Writer
	quiet bool
}

func (p printer) banner(title string, lines ...string) {
	if p.quiet {
		return
	}
	body := titleStyle.Render(title)
	for _, l := range lines {
		body += "\n" + l
	}
	fmt.Fprintln(p.w, bannerStyle.Render(body))
}

func (p printer) step(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.w, "\n"+stepStyle.Render(fmt.Sprintf(format, args...)))
}

func (p printer) ok(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.w, okStyle.Render("  ✓ "+fmt.Sprintf(format, args...)))
}

func (p printer) warn(format string, args ...any) {
	fmt.Fprintln(p.w, warnStyle.Render("  ! "+fmt.Sprintf(format, args...)))
}

func (p printer) fail(format string, args ...any) {
	fmt.Fprintln(p.w, failStyle.Render("  ✗ "+fmt.Sprintf(format, args...)))
}

func (p printer) plain(s string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.w, s)
}
