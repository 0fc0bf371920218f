package main

import (
	"fmt"
	"io"

	"github.com/ebfe/scard"
	"github.com/google/logger"
	"github.com/spf13/cobra"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
)

var readerFlag int

var relayCmd = &cobra.Command{
	Use:   "relay <apdu>...",
	Short: "Send hex APDUs to a physical card and to the simulator side by side",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmds, err := parseAPDUs(args)
		if err != nil {
			return err
		}

		proc, err := cfg.buildCard()
		if err != nil {
			return err
		}

		ctx, card, err := connectToCard(cmd.OutOrStdout(), readerFlag)
		if err != nil {
			return err
		}
		defer func() {
			if err := card.Disconnect(scard.LeaveCard); err != nil {
				logger.Warningf("failed to disconnect card: %v", err)
			}
			if err := ctx.Release(); err != nil {
				logger.Warningf("failed to release context: %v", err)
			}
		}()

		physical := iso7816.NewClient(card)
		simulated := iso7816.NewClient(proc)
		w := cmd.OutOrStdout()

		for i, c := range cmds {
			fmt.Fprintf(w, "\n============ APDU %d/%d: %s ============\n", i+1, len(cmds), c)

			fmt.Fprintln(w, "--- physical card ---")
			if err := exchange(w, physical, cmds[i:i+1]); err != nil {
				fmt.Fprintf(w, "(!) %v\n", err)
			}

			fmt.Fprintln(w, "--- simulator ---")
			if err := exchange(w, simulated, cmds[i:i+1]); err != nil {
				fmt.Fprintf(w, "(!) %v\n", err)
			}
		}
		return nil
	},
}

func init() {
	relayCmd.Flags().IntVarP(&readerFlag, "reader", "r", 0, "index of the PC/SC reader")
}

// connectToCard establishes the PC/SC context and connects to the card in
// the reader at index.
func connectToCard(w io.Writer, index int) (*scard.Context, *scard.Card, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, fmt.Errorf("error establishing context: %w", err)
	}

	release := func() {
		if err := ctx.Release(); err != nil {
			logger.Warningf("failed to release context during error handling: %v", err)
		}
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("error listing readers: %w", err)
	}
	if index < 0 || index >= len(readers) {
		release()
		return nil, nil, fmt.Errorf("reader %d not found (%d available)", index, len(readers))
	}

	fmt.Fprintf(w, ">> Using reader: %s\n", readers[index])

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
	card, err := ctx.Connect(readers[index], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("error connecting to card: %w", err)
	}
	return ctx, card, nil
}
