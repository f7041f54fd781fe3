package termios

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// devDir and sysfsRoot are variables so tests can point them at a fake tree
var (
	devDir    = "/dev"
	sysfsRoot = "/sys"
)

// Regular expressions for different types of serial devices
var serialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
	regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
	regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
	regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
	regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
	regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
	regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
	regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
}

// Exclude patterns for virtual terminals and other non-serial devices
var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^tty\d+$`),
	regexp.MustCompile(`^console$`),
	regexp.MustCompile(`^ptmx$`),
	regexp.MustCompile(`^pty.*$`),
	regexp.MustCompile(`^pts/.*$`),
}

func isSerialName(name string) bool {
	for _, p := range excludePatterns {
		if p.MatchString(name) {
			return false
		}
	}
	for _, p := range serialPatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// ListPorts returns the serial ports on the system, sorted by path.
// Virtual terminals and pseudo-terminals are excluded.
func ListPorts() ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		name := entry.Name()
		if !isSerialName(name) {
			continue
		}

		fullPath := filepath.Join(devDir, name)
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}

	sort.Strings(ports)
	return ports, nil
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo describes a serial port. The USB fields are empty for ports that
// are not behind a USB adapter.
type PortInfo struct {
	Name            string
	Path            string
	Description     string
	VendorID        string
	ProductID       string
	SerialNumber    string
	Manufacturer    string
	Product         string
	InterfaceNumber string
	BusNumber       string
	DeviceNumber    string
}

// IsUSB reports whether USB metadata was found for the port
func (p *PortInfo) IsUSB() bool {
	return p.VendorID != "" || p.ProductID != ""
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}

	name := filepath.Base(portPath)
	info := &PortInfo{
		Name:        name,
		Path:        portPath,
		Description: getPortDescription(name),
	}

	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		enrichUSBInfo(info)
		if info.Product != "" {
			info.Description = info.Product
		}
	}

	return info, nil
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo fills the USB fields from sysfs. The tty's device link points
// at the USB interface directory; the device attributes live one level up.
// Missing files leave fields empty.
func enrichUSBInfo(info *PortInfo) {
	devicePath := filepath.Join(sysfsRoot, "class", "tty", info.Name, "device")
	resolvedPath, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		return
	}

	// ttyUSB devices have an extra ttyUSBn directory below the interface
	interfacePath := resolvedPath
	if filepath.Base(resolvedPath) == info.Name {
		interfacePath = filepath.Dir(resolvedPath)
	}
	info.InterfaceNumber = readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber"))

	usbDevicePath := filepath.Dir(interfacePath)
	info.VendorID = readSysfsFile(filepath.Join(usbDevicePath, "idVendor"))
	info.ProductID = readSysfsFile(filepath.Join(usbDevicePath, "idProduct"))
	info.SerialNumber = readSysfsFile(filepath.Join(usbDevicePath, "serial"))
	info.Manufacturer = readSysfsFile(filepath.Join(usbDevicePath, "manufacturer"))
	info.Product = readSysfsFile(filepath.Join(usbDevicePath, "product"))
	info.BusNumber = readSysfsFile(filepath.Join(usbDevicePath, "busnum"))
	info.DeviceNumber = readSysfsFile(filepath.Join(usbDevicePath, "devnum"))
}

// readSysfsFile returns the trimmed content of a sysfs attribute, or "" if
// it cannot be read
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
