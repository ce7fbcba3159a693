// Command dcppd is the process entrypoint: it loads a settings document,
// builds a core.Core from it, and runs until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/airdcpp-web/dcppcore/config"
	"github.com/airdcpp-web/dcppcore/core"
	"github.com/airdcpp-web/dcppcore/internal/severity"
)

var flagConfig = flag.String("config", "dcppd.json", "path to the settings document")

func main() {
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("dcppd: %v", err)
	}

	lg := severity.New(nil)

	c, err := core.New(cfg, lg)
	if err != nil {
		log.Fatalf("dcppd: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("dcppd: %v", err)
	}

	<-ctx.Done()
	lg.Logf(severity.Info, "dcppd: shutting down")
	if err := c.Close(); err != nil {
		log.Printf("dcppd: close: %v", err)
	}
}
