package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/internal/config"
	"github.com/cwbudde/algo-soundmatch/server"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml)")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	root := flag.String("root", "", "Only serve GET targets below this directory")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		die("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	gin.SetMode(gin.ReleaseMode)

	m, err := cfg.Matcher(log)
	if err != nil {
		die("failed to set up matcher: %v", err)
	}
	opts := []server.Option{server.WithLogger(log)}
	if *root != "" {
		opts = append(opts, server.WithRoot(*root))
	}
	srv := server.New(m, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		log.WithError(err).Error("server stopped")
		stop()
		os.Exit(1)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
