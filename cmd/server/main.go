package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/crystal-mush/thingmud/pkg/logger"
	"github.com/crystal-mush/thingmud/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("THINGMUD_CONF", ""), "Path to YAML config file (env: THINGMUD_CONF)")
	boltPath := flag.String("bolt", envDefault("THINGMUD_BOLT", ""), "Path to bbolt world database (env: THINGMUD_BOLT)")
	journalPath := flag.String("journal", envDefault("THINGMUD_JOURNAL", ""), "Path to SQLite output journal (env: THINGMUD_JOURNAL)")
	manifest := flag.String("manifest", envDefault("THINGMUD_MANIFEST", ""), "Path to command manifest YAML (env: THINGMUD_MANIFEST)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: THINGMUD_PORT)")
	webAddr := flag.String("web", envDefault("THINGMUD_WEB", ""), "WebSocket/metrics listen address, overrides config (env: THINGMUD_WEB)")
	tlsDomain := flag.String("tls-domain", envDefault("THINGMUD_TLS_DOMAIN", ""), "Let's Encrypt domain for the web listener (env: THINGMUD_TLS_DOMAIN)")
	certDir := flag.String("cert-dir", envDefault("THINGMUD_CERT_DIR", ""), "Directory for self-signed and autocert certificates (env: THINGMUD_CERT_DIR)")
	flag.Parse()

	cfg := server.DefaultConfig()
	if *confFile != "" {
		loaded, err := server.LoadConfig(*confFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *port == 0 {
		if envPort := os.Getenv("THINGMUD_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *webAddr != "" {
		cfg.WebAddr = *webAddr
	}
	if *boltPath != "" {
		cfg.BoltPath = *boltPath
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}
	if *manifest != "" {
		cfg.ManifestPath = *manifest
	}
	if *tlsDomain != "" {
		cfg.TLSDomain = *tlsDomain
	}
	if *certDir != "" {
		cfg.CertDir = *certDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	engine, err := server.NewEngine(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("engine setup failed")
	}
	srv := server.NewServer(engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		log.Info("shutdown signal received")
		srv.Stop()
	}()

	log.Infof("Starting %s on port %d...", cfg.Name, cfg.Port)
	if err := srv.Start(ctx); err != nil {
		log.WithError(err).Fatal("server error")
	}
	<-stopped
	log.Info("server exited")
}
