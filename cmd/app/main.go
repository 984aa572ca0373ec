package main

import (
	"flag"
	"log"
	"os"

	"MetalPulse/internal/di"
	"MetalPulse/pkg/config"
)

func main() {
	defaultPath := "config/config.yaml"
	if p := os.Getenv("METALPULSE_CONFIG"); p != "" {
		defaultPath = p
	}
	configPath := flag.String("config", defaultPath, "config file path (or METALPULSE_CONFIG)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("load %s: %v", *configPath, err)
	}
	log.Printf("metalpulse env=%s storage=%s providers=%v narrative=%s every=%s",
		cfg.Environment, cfg.Storage.Type, cfg.Source.Providers, cfg.Narrative.Provider, cfg.Pipeline.RefreshInterval)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("wire metalpulse: %v", err)
	}

	// Blocks until SIGINT/SIGTERM, then drains the scheduler and servers.
	if err := app.Run(); err != nil {
		log.Printf("shutdown: %v", err)
		os.Exit(1)
	}
}
