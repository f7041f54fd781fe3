/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"regexp"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/internal/config"
	"github.com/allbin/serialdevice/termios"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata,
and whether connect would consider it under the current port pattern.

Examples:
  serialdevice info /dev/ttyUSB0
  serialdevice info /dev/ttyACM0 --backend bugst

With the termios backend USB metadata is read from sysfs and includes
interface, bus and device numbers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]

		if cfg.Backend == config.BackendTermios {
			info, err := termios.GetPortInfo(portPath)
			if err != nil {
				return fmt.Errorf("getting port info: %w", err)
			}
			printDescriptor(info.Descriptor())
			printUSBDetails(info)
			return nil
		}

		ports, err := newTransport(cfg).Enumerate(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}
		for _, p := range ports {
			if p.Path == portPath {
				printDescriptor(p)
				return nil
			}
		}
		return fmt.Errorf("%s: port not found", portPath)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printDescriptor(p serialdevice.PortDescriptor) {
	fmt.Printf("Port Information: %s\n\n", p.Path)
	fmt.Printf("  Name:        %s\n", portName(p.Path))
	fmt.Printf("  Type:        %s\n", getPortType(portName(p.Path)))
	fmt.Printf("  Description: %s\n", p.Description)

	match := "no"
	if re, err := regexp.Compile(cfg.PortPattern); err == nil && re.MatchString(p.Path) {
		match = "yes"
	}
	fmt.Printf("  Candidate:   %s (pattern %s)\n", match, cfg.PortPattern)

	if p.VendorID != "" || p.ProductID != "" || p.SerialNumber != "" {
		fmt.Println("\nUSB Device Information:")
		if p.VendorID != "" {
			fmt.Printf("  Vendor ID:    %s\n", p.VendorID)
		}
		if p.ProductID != "" {
			fmt.Printf("  Product ID:   %s\n", p.ProductID)
		}
		if p.SerialNumber != "" {
			fmt.Printf("  Serial:       %s\n", p.SerialNumber)
		}
	}
}

func printUSBDetails(info *termios.PortInfo) {
	if !info.IsUSB() {
		return
	}
	if info.InterfaceNumber != "" {
		fmt.Printf("  Interface:    %s\n", info.InterfaceNumber)
	}
	if info.BusNumber != "" {
		fmt.Printf("  Bus:          %s\n", info.BusNumber)
	}
	if info.DeviceNumber != "" {
		fmt.Printf("  Device:       %s\n", info.DeviceNumber)
	}
	if info.Manufacturer != "" {
		fmt.Printf("  Manufacturer: %s\n", info.Manufacturer)
	}
	if info.Product != "" {
		fmt.Printf("  Product:      %s\n", info.Product)
	}
}
