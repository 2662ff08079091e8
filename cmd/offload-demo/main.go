// Command offload-demo counts sheep on an event loop while a blocking
// "native" sleep runs on a Dispatcher worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "offload-demo",
		Usage: "Offload blocking calls without stalling the event loop",
		Commands: []*cli.Command{
			runCommand(),
			opsCommand(),
		},
	}
}
