package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/katakuxiko/assistgw/internal/api"
	"github.com/katakuxiko/assistgw/internal/config"
	"github.com/katakuxiko/assistgw/internal/service"
	"github.com/katakuxiko/assistgw/internal/store"
	"github.com/katakuxiko/assistgw/internal/util"
)

func main() {
	// config
	cfg := config.Load()
	util.SetDebug(cfg.LogDebug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// assistants + org provider settings
	configDB, err := store.OpenConfigDB(cfg.ConfigDBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer configDB.Close()
	resolver := service.NewResolver(configDB, cfg.Providers)

	if cfg.ConfigSeedFile != "" {
		watcher, err := store.NewSeedWatcher(cfg.ConfigSeedFile, configDB, resolver.Invalidate)
		if err != nil {
			log.Fatal(err)
		}
		defer watcher.Stop()
		if err := watcher.Reload(ctx); err != nil {
			log.Fatalf("seed import: %v", err)
		}
		if err := watcher.Watch(ctx); err != nil {
			log.Printf("[WARN] seed hot reload disabled: %v", err)
		}
	}

	// knowledge base
	knowledge, closeKnowledge := openKnowledge(cfg)
	defer closeKnowledge()

	orch := service.NewOrchestrator(service.Deps{
		Assistants:       configDB,
		Resolver:         resolver,
		Engine:           service.NewEngine(cfg.ProviderTimeout),
		Knowledge:        knowledge,
		Optimizer:        service.NewLLMClient(cfg.OptimizerBaseURL, cfg.OptimizerAPIKey, "", cfg.OptimizerModel),
		Connectors:       service.DefaultConnectors(cfg.ProviderTimeout),
		KnowledgeTimeout: cfg.KnowledgeTimeout,
		OptimizerTimeout: cfg.OptimizerTimeout,
	})

	// api
	app := fiber.New()
	api.RegisterRoutes(app, api.NewHandler(orch))

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Printf("[WARN] shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Server started at %s (knowledge=%s, optimizer=%t)", cfg.ServerAddr, cfg.KnowledgeBackend, cfg.OptimizerModel != "")
	if err := app.Listen(cfg.ServerAddr); err != nil {
		log.Fatal(err)
	}
}

// openKnowledge выбирает бэкенд базы знаний; nil значит поиск выключен
func openKnowledge(cfg *config.Config) (service.KnowledgeStore, func()) {
	embedder := service.NewLLMClient(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, "")
	switch cfg.KnowledgeBackend {
	case "postgres":
		pg, err := store.NewPgStore(cfg.PgConn, cfg.EmbedDim)
		if err != nil {
			log.Fatal(err)
		}
		return service.NewKnowledgeService(pg, embedder), func() { pg.Close() }
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			log.Fatal(err)
		}
		return service.NewKnowledgeService(s, embedder), func() { s.Close() }
	case "none", "":
		return nil, func() {}
	}
	log.Fatalf("unknown KNOWLEDGE_BACKEND %q (postgres|sqlite|none)", cfg.KnowledgeBackend)
	return nil, nil
}
