// modemlink brings up and supervises the FMT and RFS modem IPC
// channels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"modemlink/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "modemlink: %v\n", err)
		os.Exit(1)
	}
}
