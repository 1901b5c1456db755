package main

import (
	"flag"
	"log"
	"os"

	"github.com/mack4pf/telegram-automated-signal/internal/di"
	"github.com/mack4pf/telegram-automated-signal/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults and env only when empty)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s strategy=%s store=%s journal=%s", cfg.Environment, cfg.Webhook.DefaultStrategy, cfg.Redis.Backend, cfg.Journal.Backend)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
