package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lherron/crmq/internal/cli"
)

func main() {
	addr := flag.String("addr", "", "Listen address (default from CRMQ_LISTEN_ADDR or :8080)")
	token := flag.String("token", os.Getenv("CRMQD_TOKEN"), "Shared bearer token for clients")
	dsn := flag.String("db", "", "Overlay database DSN override (defaults to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cli.DaemonOptions{
		Addr:  *addr,
		Token: *token,
		DSN:   *dsn,
	}

	if err := cli.ServeDaemon(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
