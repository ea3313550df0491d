package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docchat/app/server"
	"docchat/config"
	"docchat/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}

	l := logger.New(cfg.App.LogFilePath, cfg.App.IsProd())
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.NewServer(cfg, l).Run(ctx); err != nil {
		l.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}
