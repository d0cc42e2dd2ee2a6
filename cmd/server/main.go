package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"quickstrike/server/internal/app"
)

func main() {
	var configPath, addr, clientDir string
	flag.StringVar(&configPath, "config", "", "path to the TOML config file")
	flag.StringVar(&addr, "addr", "", "listen address override")
	flag.StringVar(&clientDir, "client", "", "static client directory to serve at /")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{
		ConfigPath: configPath,
		Addr:       addr,
		ClientDir:  clientDir,
	}); err != nil {
		log.Fatalf("%v", err)
	}
}
