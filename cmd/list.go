/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List the serial ports reported by the selected backend.

By default only ports matching the port pattern are shown, which are the
candidates connect would try in this order. Use --all to list every port and
mark the ones that match.

Example usage:
  serialdevice list
  serialdevice list --all --table
  serialdevice list --pattern '^/dev/ttyACM\d+$' --filter usb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, err := regexp.Compile(cfg.PortPattern)
		if err != nil {
			return fmt.Errorf("%w: %v", serialdevice.ErrInvalidPattern, err)
		}

		ports, err := newTransport(cfg).Enumerate(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		showAll, _ := cmd.Flags().GetBool("all")

		ports = filterPorts(ports, filterType)
		if !showAll {
			ports = matchingPorts(ports, pattern)
		}

		if len(ports) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return nil
		}

		if tableFormat {
			renderTable(ports, pattern)
		} else {
			renderSimple(ports, pattern, showAll)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().BoolP("all", "a", false, "Show ports that do not match the pattern")
}

func matchingPorts(ports []serialdevice.PortDescriptor, pattern *regexp.Regexp) []serialdevice.PortDescriptor {
	var out []serialdevice.PortDescriptor
	for _, p := range ports {
		if pattern.MatchString(p.Path) {
			out = append(out, p)
		}
	}
	return out
}

// filterPorts filters the port list based on the specified filter type
func filterPorts(ports []serialdevice.PortDescriptor, filterType string) []serialdevice.PortDescriptor {
	if filterType == "" || filterType == "all" {
		return ports
	}

	var filtered []serialdevice.PortDescriptor
	for _, port := range ports {
		name := strings.ToLower(portName(port.Path))
		switch strings.ToLower(filterType) {
		case "usb":
			if port.VendorID != "" || strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm") ||
				strings.HasPrefix(name, "cu.usb") {
				filtered = append(filtered, port)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") {
				filtered = append(filtered, port)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, port)
			}
		}
	}
	return filtered
}

func portName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

const (
	columnKeyPort    = "port"
	columnKeyType    = "type"
	columnKeyUSB     = "usb"
	columnKeyDesc    = "desc"
	columnKeyMatches = "match"
)

// renderTable renders the port list as a static bubble-table
func renderTable(ports []serialdevice.PortDescriptor, pattern *regexp.Regexp) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))

	columns := []table.Column{
		table.NewColumn(columnKeyPort, "Port", 20),
		table.NewColumn(columnKeyType, "Type", 16),
		table.NewColumn(columnKeyUSB, "VID:PID", 10),
		table.NewColumn(columnKeyDesc, "Description", 30),
		table.NewColumn(columnKeyMatches, "Match", 6),
	}

	matchStyle := okStyle

	rows := make([]table.Row, 0, len(ports))
	for _, port := range ports {
		usb := ""
		if port.VendorID != "" {
			usb = port.VendorID + ":" + port.ProductID
		}
		match := table.NewStyledCell("", lipgloss.NewStyle())
		if pattern.MatchString(port.Path) {
			match = table.NewStyledCell("✓", matchStyle)
		}
		rows = append(rows, table.NewRow(table.RowData{
			columnKeyPort:    port.Path,
			columnKeyType:    getPortType(portName(port.Path)),
			columnKeyUSB:     usb,
			columnKeyDesc:    port.Description,
			columnKeyMatches: match,
		}))
	}

	t := table.New(columns).
		WithRows(rows).
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(colors.Surface2))

	fmt.Println(t.View())
}

// renderSimple prints one path per line, marking matches when every port is shown
func renderSimple(ports []serialdevice.PortDescriptor, pattern *regexp.Regexp, mark bool) {
	for _, port := range ports {
		if mark && pattern.MatchString(port.Path) {
			fmt.Printf("%s *\n", port.Path)
			continue
		}
		fmt.Println(port.Path)
	}
}

// getPortType returns a more specific type classification for the port
func getPortType(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "ttyusb"), strings.HasPrefix(name, "cu.usbserial"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"), strings.HasPrefix(name, "cu.usbmodem"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial"
	case strings.HasPrefix(name, "ttysac"):
		return "Samsung Serial"
	case strings.HasPrefix(name, "ttyths"):
		return "Tegra Serial"
	case strings.HasPrefix(name, "ttyo"):
		return "OMAP Serial"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	default:
		return "Serial Port"
	}
}
