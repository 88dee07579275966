package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/choraleia/threadwriter/pkg/config"
	"github.com/choraleia/threadwriter/pkg/db"
	"github.com/choraleia/threadwriter/pkg/event"
	"github.com/choraleia/threadwriter/pkg/service"
	"github.com/choraleia/threadwriter/pkg/utils"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml (default ~/.threadwriter/config.yaml)")
	flag.Parse()

	cfg, cfgPath, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	// Initialize logging system
	utils.InitLogger(cfg.LogLevel(), cfg.LogFormat())
	logger := utils.GetLogger()
	logger.Info("Config loaded", "path", cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.AppConfig, string, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, path, err
	}
	if _, err := config.EnsureDefaultConfig(); err != nil {
		return nil, "", err
	}
	return config.Load()
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	logger := utils.GetLogger()

	gdb, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}

	emitter := event.NewEmitter()
	var publisher event.Publisher = event.LocalPublisher{Emitter: emitter}
	if addr := cfg.RedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword(),
			DB:       cfg.RedisDB(),
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis %s: %w", addr, err)
		}
		bridge := event.NewRedisBridge(client, cfg.RedisChannel(), emitter)
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("Redis stream bridge stopped", "error", err)
			}
		}()
	}

	modelService := service.NewModelService(cfg.ModelsFile())
	runs := db.NewRunStore(gdb)
	sender := service.NewLLMSender(modelService, modelService.CreateChatModel, publisher).WithRunRecorder(runs)

	documents := service.NewDocumentService(db.NewDocumentStore(gdb), emitter, service.DocumentServiceOptions{
		RequireComposer:   cfg.RequireComposer(),
		ObjectStoreScheme: cfg.ObjectStoreScheme(),
		Sender:            sender,
		Stopper:           sender,
		Catalog:           modelService,
	})
	// Streams end before documents close, so their last state is saved.
	defer documents.Shutdown()
	defer sender.Shutdown()

	server := NewServer(cfg.Host(), cfg.Port(), Services{
		Documents: documents,
		Models:    modelService,
		Emitter:   emitter,
		Publisher: publisher,
		Runs:      runs,

		PresetsFile: cfg.PresetsFile(),
	})
	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}
