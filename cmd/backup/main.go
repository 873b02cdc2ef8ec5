// cmd/backup/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/semmidev/dumpgram/internal/app"
	"github.com/semmidev/dumpgram/internal/config"
	"github.com/semmidev/dumpgram/internal/infrastructure/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single backup and exit, even if a schedule or trigger is configured")
	gdriveAuth := flag.String("gdrive-auth", "", "serve the Google Drive OAuth helper on this address (e.g. :8085)")
	clientSecret := flag.String("client-secret", "client_secret.json", "OAuth client secret used by -gdrive-auth")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *gdriveAuth != "" {
		return runDriveAuth(ctx, *gdriveAuth, *clientSecret)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	return application.Run(ctx, *once)
}

func runDriveAuth(ctx context.Context, addr, clientSecret string) error {
	l, err := logger.New(logger.Options{Level: "info"})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer l.Close()

	auth, err := app.NewDriveAuth(l, clientSecret)
	if err != nil {
		return fmt.Errorf("initialize drive auth: %w", err)
	}
	return auth.Serve(ctx, addr)
}
