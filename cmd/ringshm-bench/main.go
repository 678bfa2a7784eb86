// Command ringshm-bench drives a ringshm.RingBufferShm across two
// processes: `serve` owns the shared region and writes synthetic video
// packets into it, `tail` attaches as a reader and drains them. It exists
// to exercise the package end to end the way a real producer/consumer pair
// would, and as a throughput/latency smoke test during development.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ringshm-bench",
	Short: "Exercise a shared-memory ring buffer across a writer and readers",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
