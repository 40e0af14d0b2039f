package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashgrove/questforge/internal/action"
	"github.com/ashgrove/questforge/internal/bridge"
	"github.com/ashgrove/questforge/internal/command"
	"github.com/ashgrove/questforge/internal/condition"
	"github.com/ashgrove/questforge/internal/config"
	"github.com/ashgrove/questforge/internal/engine"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/items"
	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/match"
	"github.com/ashgrove/questforge/internal/party"
	"github.com/ashgrove/questforge/internal/placeholder"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/ashgrove/questforge/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	configFile := flag.String("config", "data/questforge.yaml", "Path to config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	hashAdmin := flag.String("hash-admin", "", "Print a bcrypt hash for an admin token and exit")
	flag.Parse()

	if *hashAdmin != "" {
		handleHashAdmin(*hashAdmin)
		return
	}

	logConfig, _ := logger.LoadConfig(*loggingConfig)
	logger.Initialize(logConfig)

	logger.Info("Starting QuestForge")

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Warning("Config load failed, using defaults", "path", *configFile, "error", err)
	}

	// Quest definitions.
	registry := quest.NewRegistry()
	if err := registry.LoadDirectory(cfg.Quests.Directory); err != nil {
		log.Fatalf("Failed to load quest definitions: %v", err)
	}
	logger.Info("Quest definitions loaded", "count", registry.Count(), "dir", cfg.Quests.Directory)

	// Persistence: the configured backend behind the write-behind cache.
	backend, err := store.Open(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open progress store: %v", err)
	}
	cache := store.NewCached(backend, cfg.Storage.FlushInterval())
	cache.Start()

	// Main loop: quest side effects run single threaded on this.
	loop := host.NewMainLoop()

	// The bridge is the player directory, broadcaster and command
	// runner; it needs the engine and handler attached before start.
	b := bridge.New(cfg.Bridge, cache)

	expander := placeholder.New(registry, cache, cfg.Engine.PlaceholderTTL())
	conditions := condition.New(cfg.Engine.ConditionTTL(), expander)

	matchers := match.NewRegistry()
	registerMatchers(matchers, registry)

	itemResolver := items.NewResolver(items.NewRegistry())
	actions := action.New(loop, b, b, itemResolver, nil, expander)

	eng := engine.New(engine.Options{
		Registry:    registry,
		Store:       cache,
		Matchers:    matchers,
		Conditions:  conditions,
		Actions:     actions,
		Scheduler:   loop,
		Party:       party.Solo{},
		Players:     b,
		Workers:     cfg.Engine.Workers,
		DedupWindow: cfg.Engine.DedupWindow(),
	})
	eng.ValidateBindings()

	handler := command.NewHandler(eng, registry, cache, b, cfg.Quests.Directory)
	b.Attach(eng, handler)

	go func() {
		if err := b.Start(); err != nil {
			logger.Error("Bridge listener failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Stop(ctx); err != nil {
		logger.Error("Bridge shutdown failed", "error", err)
	}
	eng.Shutdown()
	loop.Stop()
	if err := cache.Close(); err != nil {
		logger.Error("Final progress flush failed", "error", err)
	}

	logger.Info("Stopped")
}

// registerMatchers installs the standard subject matcher for every
// trigger event the loaded definitions use. Dynamic event classes get
// theirs when an extractor is registered.
func registerMatchers(matchers *match.Registry, registry *quest.Registry) {
	for _, def := range registry.All() {
		matchers.RegisterDefault(def.Event, match.SubjectEquals)
	}
}

// handleHashAdmin prints a bcrypt hash for the admin token so it can be
// pasted into the config file.
func handleHashAdmin(token string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
