/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/allbin/serialdevice/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle  = lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colors.Green).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(colors.Red).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colors.Overlay0)
)

func info(mark, format string, args ...any) {
	fmt.Printf("%s %s\n", infoStyle.Render(mark), fmt.Sprintf(format, args...))
}

func ok(format string, args ...any) {
	fmt.Printf("%s %s\n", okStyle.Render("✓"), fmt.Sprintf(format, args...))
}

func fail(format string, args ...any) {
	fmt.Printf("%s %s\n", failStyle.Render("✗"), fmt.Sprintf(format, args...))
}

// parseHexString decodes "48656c6c6f", "48 65 6C" or "0x48 0x65" style input.
func parseHexString(s string) (string, error) {
	s = strings.NewReplacer(" ", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// preview returns the first 50 bytes of data with non-printable bytes replaced
func preview(data []byte) string {
	s := string(data)
	if len(s) > 50 {
		s = s[:50] + "..."
	}
	return strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, s)
}
