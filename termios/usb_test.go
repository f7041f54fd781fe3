package termios

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadSysfsFile(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		expected string
		setup    func(string) error
	}{
		{
			name:     "normal file",
			expected: "1234",
			setup: func(path string) error {
				return os.WriteFile(path, []byte("1234\n"), 0644)
			},
		},
		{
			name:     "file with spaces",
			expected: "test value",
			setup: func(path string) error {
				return os.WriteFile(path, []byte("  test value  \n"), 0644)
			},
		},
		{
			name:     "nonexistent file",
			expected: "",
			setup:    func(path string) error { return nil },
		},
		{
			name:     "empty file",
			expected: "",
			setup: func(path string) error {
				return os.WriteFile(path, []byte(""), 0644)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testFile := filepath.Join(tmpDir, tt.name)
			if err := tt.setup(testFile); err != nil {
				t.Fatalf("Setup failed: %v", err)
			}

			result := readSysfsFile(testFile)
			if result != tt.expected {
				t.Errorf("readSysfsFile() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

// fakeSysfs builds a sysfs tree with a USB serial device and points
// sysfsRoot at it:
//
//	class/tty/<name>/device -> devices/usb5/5-2.3.1/5-2.3.1:1.0[/<name>]
func fakeSysfs(t *testing.T, name string, nested bool) {
	t.Helper()
	root := t.TempDir()

	devicePath := filepath.Join(root, "devices", "usb5", "5-2.3.1")
	interfacePath := filepath.Join(devicePath, "5-2.3.1:1.0")
	target := interfacePath
	if nested {
		target = filepath.Join(interfacePath, name)
	}
	classTtyPath := filepath.Join(root, "class", "tty", name)

	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatalf("Failed to create directory structure: %v", err)
	}
	if err := os.MkdirAll(classTtyPath, 0755); err != nil {
		t.Fatalf("Failed to create class/tty directory: %v", err)
	}

	deviceFiles := map[string]string{
		"idVendor":     "0403",
		"idProduct":    "6010",
		"serial":       "FT123456",
		"manufacturer": "FTDI",
		"product":      "FT2232C Dual USB-UART",
		"busnum":       "5",
		"devnum":       "7",
	}
	for filename, content := range deviceFiles {
		path := filepath.Join(devicePath, filename)
		if err := os.WriteFile(path, []byte(content+"\n"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", filename, err)
		}
	}
	if err := os.WriteFile(filepath.Join(interfacePath, "bInterfaceNumber"), []byte("00\n"), 0644); err != nil {
		t.Fatalf("Failed to write interface number: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(classTtyPath, "device")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	old := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() { sysfsRoot = old })
}

func TestEnrichUSBInfo(t *testing.T) {
	cases := []struct {
		name   string
		nested bool
	}{
		{"ttyUSB0", true},
		{"ttyACM0", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fakeSysfs(t, c.name, c.nested)

			info := &PortInfo{Name: c.name, Path: "/dev/" + c.name}
			enrichUSBInfo(info)

			tests := []struct {
				name     string
				got      string
				expected string
			}{
				{"VendorID", info.VendorID, "0403"},
				{"ProductID", info.ProductID, "6010"},
				{"SerialNumber", info.SerialNumber, "FT123456"},
				{"InterfaceNumber", info.InterfaceNumber, "00"},
				{"BusNumber", info.BusNumber, "5"},
				{"DeviceNumber", info.DeviceNumber, "7"},
				{"Manufacturer", info.Manufacturer, "FTDI"},
				{"Product", info.Product, "FT2232C Dual USB-UART"},
			}
			for _, tt := range tests {
				if tt.got != tt.expected {
					t.Errorf("%s = %q, expected %q", tt.name, tt.got, tt.expected)
				}
			}
			if !info.IsUSB() {
				t.Error("IsUSB should be true")
			}

			desc := info.Descriptor()
			if desc.VendorID != "0403" || desc.ProductID != "6010" || desc.SerialNumber != "FT123456" {
				t.Errorf("Descriptor lost USB fields: %+v", desc)
			}
		})
	}
}

func TestEnrichUSBInfoGracefulFailure(t *testing.T) {
	old := sysfsRoot
	sysfsRoot = t.TempDir()
	defer func() { sysfsRoot = old }()

	info := &PortInfo{Name: "ttyUSB999", Path: "/dev/ttyUSB999"}
	enrichUSBInfo(info)

	if info.VendorID != "" {
		t.Errorf("VendorID should be empty, got %q", info.VendorID)
	}
	if info.ProductID != "" {
		t.Errorf("ProductID should be empty, got %q", info.ProductID)
	}
	if info.SerialNumber != "" {
		t.Errorf("SerialNumber should be empty, got %q", info.SerialNumber)
	}
	if info.IsUSB() {
		t.Error("IsUSB should be false")
	}
}
