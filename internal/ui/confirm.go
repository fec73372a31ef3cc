package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm prints a warning box and asks a yes/no question on in. Anything
// but "y" or "yes" declines, as does EOF.
func (p *Printer) Confirm(in io.Reader, title, question string, warnings ...string) bool {
	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)), ""}
	for _, w := range warnings {
		lines = append(lines, lipgloss.NewStyle().Foreground(TextColor).Render("   • "+w))
	}
	lines = append(lines, "")
	p.Println(boxStyle(p.width, lipgloss.DoubleBorder(), WarningColor).Render(strings.Join(lines, "\n")))
	p.Newline()

	p.Printf("%s ", WarningTitleStyle.Render(question+" [y/N]:"))

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		p.Newline()
		return false
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	}
	p.Println(StepPendingStyle.Render("  Operation cancelled."))
	return false
}

// ConfirmOverwrite asks before replacing an existing file
func (p *Printer) ConfirmOverwrite(in io.Reader, path string) bool {
	return p.Confirm(in, "File exists", fmt.Sprintf("Overwrite %s?", path),
		"The existing file will be replaced",
	)
}
