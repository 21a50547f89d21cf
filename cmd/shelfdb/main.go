package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/cli"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/config"
)

func main() {
	cfg, err := config.Load(".env", os.Environ())
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand(cfg).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
