// Command eidsim runs a simulated eID card: it serves the card to terminals
// over TCP, sends APDUs to it in-process or replays them against a
// physical card for comparison.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
