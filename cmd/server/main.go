package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, syncLog, err := logging.New(logging.Config{Level: cfg.LogLevel, DevMode: cfg.DevMode()})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer syncLog()

	app, cleanup, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		return
	}
	defer cleanup()

	app.Run(ctx)

}
