// Command busctl benchmarks the event bus and inspects its fault journal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "busctl:", err)
		os.Exit(1)
	}
}
