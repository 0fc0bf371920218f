package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
)

var connectFlag string

var sendCmd = &cobra.Command{
	Use:   "send <apdu>...",
	Short: "Send hex APDUs to the simulated card and print the traces",
	Long: `Send hex APDUs to a card built from the profile, in-process, or to a
running simulator with --connect. 61XX and 6CXX answers are handled like a
terminal would.`,
	Example: `  eidsim send "00 A4 04 0C 09 E8 07 04 00 7F 00 07 03 02" "00 B0 9C 00 00"
  eidsim send --connect localhost:9876 00A4000C023F00`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmds, err := parseAPDUs(args)
		if err != nil {
			return err
		}

		var card iso7816.Transmitter
		if connectFlag != "" {
			remote, err := dialSimulator(connectFlag)
			if err != nil {
				return err
			}
			defer remote.Close()
			card = remote
		} else {
			proc, err := cfg.buildCard()
			if err != nil {
				return err
			}
			card = proc
		}

		return exchange(cmd.OutOrStdout(), iso7816.NewClient(card), cmds)
	},
}

func init() {
	sendCmd.Flags().StringVarP(&connectFlag, "connect", "c", "", "address of a running simulator")
}

// remoteCard is the terminal side of the line protocol of the simulator.
type remoteCard struct {
	conn net.Conn
	r    *bufio.Reader
}

var _ iso7816.Transmitter = (*remoteCard)(nil)

func dialSimulator(addr string) (*remoteCard, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &remoteCard{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *remoteCard) Transmit(cmd []byte) ([]byte, error) {
	if _, err := fmt.Fprintf(c.conn, "%X\n", cmd); err != nil {
		return nil, err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSpace(line)
	if msg, ok := strings.CutPrefix(line, "ERROR "); ok {
		return nil, fmt.Errorf("simulator: %s", msg)
	}
	return hex.DecodeString(line)
}

func (c *remoteCard) Close() error {
	return c.conn.Close()
}
