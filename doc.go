// Package serialdevice is the communication core for instruments attached over
// a USB-to-serial link.
//
// It finds and opens the right port among several candidates, turns the
// incoming byte stream into application packets through a pluggable
// Extractor, and manages the connection lifecycle (open, bitrate change,
// close) while keeping a bounded hex trace for diagnostics.
//
// # Basic Usage
//
// Pick a transport backend and hand it to a Controller:
//
//	tr := termios.NewTransport(logger)
//	dev, err := serialdevice.New(tr,
//	    serialdevice.WithPortPattern(`^/dev/ttyUSB\d+$`),
//	    serialdevice.WithBitrate(9600),
//	    serialdevice.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close(context.Background())
//
//	conn, err := dev.Connect(ctx, extract.Lines())
//
// # Packets
//
// Every receive event appends to the buffer and then runs the extractor until
// it reports no packet, so one event may yield many packets and a packet may
// span many events:
//
//	for dev.HasAvailablePacket() {
//	    pkt, _ := dev.NextPacket()
//	    handle(pkt.([]byte))
//	}
//
// Without an extractor bytes stay in the buffer for ReadSerial.
//
// # Reading and Writing
//
//	n, err := dev.WriteSerial(ctx, []byte("ID?\r\n"))
//	reply, err := dev.ReadSerial(ctx, 16, 500*time.Millisecond)
//
// ReadSerial returns early once enough bytes are buffered and returns what it
// has when the timeout expires. Running out of time is not an error.
//
// # Port Selection
//
// Connect enumerates ports, keeps those matching the pattern, and tries them
// one at a time in enumeration order. A port that fails to open is added to
// the skip set and never tried again by the same Controller:
//
//	fmt.Println(dev.Manager().SkipList())
//
// # Bitrate Changes
//
//	ok, err := dev.ChangeBitRate(ctx, 115200)
//
// The port is closed, the settle delay elapses, and the same path is opened at
// the new rate. If the reopen fails the Controller is left disconnected.
//
// # Error Handling
//
// Errors are sentinel values checked with errors.Is:
//
//	if errors.Is(err, serialdevice.ErrPortUnavailable) {
//	    // nothing matching the pattern could be opened
//	}
//
// # Backends
//
//   - termios: Linux, direct termios ioctls, USB metadata from sysfs
//   - bugst: portable, built on go.bug.st/serial
//
// # Default Configuration
//
//   - PortPattern: ^/dev/(cu\.usb.+|ttyUSB\d+|ttyACM\d+)$
//   - Bitrate: 9600
//   - SendTimeout: 250ms
//   - SettleDelay: 500ms
//   - Trace: enabled, 400 lines, 1s debounce
package serialdevice
