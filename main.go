// Command signcore renders, signs and verifies PDF documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/esignkit/signcore/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Main(ctx, os.Args[1:], version, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "signcore: %v\n", err)
		stop()
		os.Exit(1)
	}
}
