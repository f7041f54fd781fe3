/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/internal/config"
	"github.com/spf13/cobra"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <output-file>",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

Connects to the first port matching the pattern and writes what it receives to
the output file until interrupted (Ctrl+C). With a framing other than "none"
each extracted packet is written on its own line, as hex with --hex.

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  serialdevice capture data.log
  serialdevice capture output.txt --bitrate 115200 --framing none
  serialdevice capture frames.log --framing stx --hex --console`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showConsole, _ := cmd.Flags().GetBool("console")
		hexOut, _ := cmd.Flags().GetBool("hex")
		poll, _ := cmd.Flags().GetDuration("poll")
		return runCapture(cmd.Context(), args[0], poll, hexOut, showConsole)
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
	captureCmd.Flags().Bool("hex", false, "Write packets as hex")
	captureCmd.Flags().Duration("poll", 100*time.Millisecond, "How often buffered data is written out")
}

func runCapture(parent context.Context, outputPath string, poll time.Duration, hexOut, showConsole bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, conn, err := connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer dev.Close(context.Background())

	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	var out io.Writer = file
	if showConsole {
		out = io.MultiWriter(file, os.Stdout)
	}

	fmt.Fprintf(os.Stderr, "Capturing data from %s (%d baud, framing %s) to %s\n",
		conn.Port.Path, conn.Bitrate, cfg.Framing, outputPath)
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	framed := cfg.Framing != config.FramingNone && cfg.Framing != ""
	bytesWritten := int64(0)
	packets := 0
	startTime := time.Now()

	for {
		var err error
		if framed {
			var n, count int
			n, count, err = writePackets(out, dev, hexOut)
			bytesWritten += int64(n)
			packets += count
		} else {
			var data []byte
			// wait for up to a poll interval, then take whatever arrived
			data, err = dev.ReadSerial(ctx, 4096, poll)
			if err == nil && len(data) > 0 {
				var n int
				n, err = out.Write(data)
				bytesWritten += int64(n)
			}
		}

		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes, %d packets written in %v\n",
				bytesWritten, packets, time.Since(startTime).Round(time.Millisecond))
			return nil
		}
		if err != nil {
			return fmt.Errorf("write error: %w", err)
		}

		if framed {
			select {
			case <-ctx.Done():
			case <-time.After(poll):
			}
		}
	}
}

// writePackets drains the packet queue to w, one packet per line
func writePackets(w io.Writer, dev *serialdevice.Controller, hexOut bool) (int, int, error) {
	total, count := 0, 0
	for {
		pkt, ok := dev.NextPacket()
		if !ok {
			return total, count, nil
		}
		data, _ := pkt.([]byte)

		var n int
		var err error
		if hexOut {
			n, err = fmt.Fprintf(w, "% X\n", data)
		} else {
			n, err = fmt.Fprintf(w, "%s\n", data)
		}
		total += n
		count++
		if err != nil {
			return total, count, err
		}
	}
}
