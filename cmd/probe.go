/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <query>",
	Short: "Find the bitrate an instrument answers on",
	Long: `Connect to the first matching port and send a query at each bitrate in turn,
reporting which rates got a reply.

The port is reopened between rates with the configured settle delay, so the
instrument sees a clean line at each new rate.

Example usage:
  serialdevice probe "ID?" --newline
  serialdevice probe --hex "02 06 00 03 00 00 00 99" --rates 9600,115200 --read 8
  serialdevice probe "ID?" --stop`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]

		rates, _ := cmd.Flags().GetIntSlice("rates")
		hexMode, _ := cmd.Flags().GetBool("hex")
		addNewline, _ := cmd.Flags().GetBool("newline")
		readN, _ := cmd.Flags().GetInt("read")
		wait, _ := cmd.Flags().GetDuration("wait")
		stopOnReply, _ := cmd.Flags().GetBool("stop")

		if len(rates) == 0 {
			return fmt.Errorf("%w: no rates given", serialdevice.ErrInvalidBaudRate)
		}
		if hexMode {
			parsed, err := parseHexString(query)
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			query = parsed
		} else if addNewline {
			query += "\n"
		}

		return runProbe(cmd.Context(), []byte(query), rates, readN, wait, stopOnReply)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().IntSlice("rates", []int{9600, 19200, 38400, 57600, 115200}, "Bitrates to try, in order")
	probeCmd.Flags().BoolP("hex", "x", false, "Interpret the query as hexadecimal")
	probeCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of the query")
	probeCmd.Flags().IntP("read", "r", 64, "Reply bytes to wait for at each rate")
	probeCmd.Flags().DurationP("wait", "w", 500*time.Millisecond, "How long to wait for a reply at each rate")
	probeCmd.Flags().Bool("stop", false, "Stop at the first rate that gets a reply")
}

type probeResult struct {
	rate  int
	reply []byte
	err   error
}

func runProbe(ctx context.Context, query []byte, rates []int, readN int, wait time.Duration, stopOnReply bool) error {
	dev, err := newController(cfg)
	if err != nil {
		return err
	}
	defer dev.Close(context.Background())

	if err := dev.SetBitrate(rates[0]); err != nil {
		return err
	}
	conn, err := dev.Connect(ctx, nil)
	if err != nil {
		return err
	}
	info("⚡", "Probing %s\n", conn.Port.Path)

	var results []probeResult
	for i, rate := range rates {
		if i > 0 {
			ok, err := dev.ChangeBitRate(ctx, rate)
			if err != nil {
				return fmt.Errorf("reopen at %d: %w", rate, err)
			}
			if !ok {
				return serialdevice.ErrNotConnected
			}
		}

		res := probeResult{rate: rate}
		if _, err := dev.WriteSerial(ctx, query); err != nil {
			res.err = err
		} else {
			res.reply, res.err = dev.ReadSerial(ctx, readN, wait)
		}
		printProbeResult(res)
		results = append(results, res)

		if errors.Is(res.err, context.Canceled) {
			return res.err
		}
		if stopOnReply && len(res.reply) > 0 {
			break
		}
	}

	for _, r := range results {
		if len(r.reply) > 0 {
			return nil
		}
	}
	dev.EmitLog(false)
	return fmt.Errorf("no reply at any of %v", rates)
}

func printProbeResult(r probeResult) {
	rateStyle := lipgloss.NewStyle().Bold(true).Width(8)

	rate := rateStyle.Render(fmt.Sprintf("%d", r.rate))
	switch {
	case r.err != nil:
		fmt.Printf("%s %s %v\n", rate, failStyle.Render("✗"), r.err)
	case len(r.reply) == 0:
		fmt.Printf("%s %s no reply\n", rate, failStyle.Render("✗"))
	default:
		fmt.Printf("%s %s % X  %s\n", rate, okStyle.Render("✓"), r.reply, mutedStyle.Render(preview(r.reply)))
	}
}
