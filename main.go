// The main package for the satscraper executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/cfdi-sat-scraper/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
