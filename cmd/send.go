/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data]",
	Short: "Send data to the first matching serial port",
	Long: `Connect to the first port matching the pattern and send data to it.

Data can be provided as:
- Command line argument: send "ID?"
- From stdin (pipe): echo "ID?" | serialdevice send
- Interactive mode: serialdevice send (prompts for input)

With --read the command waits for a reply of that many bytes, returning what
arrived when --wait expires.

Example usage:
  serialdevice send "AT+GMR" --newline
  serialdevice send --hex "02 06 00 03" --read 8 --wait 500ms
  echo "test" | serialdevice send --pattern '^/dev/ttyACM0$'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data string

		if len(args) == 0 {
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading from stdin: %w", err)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		} else {
			data = args[0]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		readN, _ := cmd.Flags().GetInt("read")
		wait, _ := cmd.Flags().GetDuration("wait")
		dumpTrace, _ := cmd.Flags().GetBool("dump-trace")

		if hexMode {
			processedData, err := parseHexString(data)
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			data = processedData
		}

		if addNewline && !hexMode {
			data += "\n"
		}

		return sendData(cmd.Context(), []byte(data), timeout, readN, wait, dumpTrace)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().DurationP("timeout", "t", 5*time.Second, "Timeout for connecting and sending")
	sendCmd.Flags().IntP("read", "r", 0, "Number of reply bytes to wait for")
	sendCmd.Flags().DurationP("wait", "w", time.Second, "How long to wait for the reply")
	sendCmd.Flags().Bool("dump-trace", false, "Log the hex trace before exiting")
}

func promptForData() string {
	fmt.Print(infoStyle.Render("Enter data to send: "))
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func sendData(parent context.Context, data []byte, timeout time.Duration, readN int, wait time.Duration, dumpTrace bool) error {
	info("⚡", "Looking for %s...", cfg.PortPattern)

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	dev, err := newController(cfg)
	if err != nil {
		return err
	}
	defer dev.Close(context.Background())

	// no extractor: the reply stays in the buffer for ReadSerial
	conn, err := dev.Connect(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w (skipped %v)", err, dev.Manager().SkipList())
	}
	if dumpTrace {
		defer dev.EmitLog(true)
	}
	ok("Connected to %s at %d baud", conn.Port.Path, conn.Bitrate)

	n, err := dev.WriteSerial(ctx, data)
	if err != nil {
		return fmt.Errorf("sending %d bytes: %w", len(data), err)
	}
	ok("Sent %d bytes: %s", n, preview(data))

	if readN <= 0 {
		return nil
	}

	reply, err := dev.ReadSerial(parent, readN, wait)
	if err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}
	if len(reply) < readN {
		fail("Got %d of %d bytes before %s", len(reply), readN, wait)
	}
	info("📥", "% X", reply)
	info("📋", "%s", preview(reply))
	return nil
}
