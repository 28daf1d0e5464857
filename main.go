package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/vennietweek/llm-chat/internal/config"
	"github.com/vennietweek/llm-chat/internal/history"
	"github.com/vennietweek/llm-chat/internal/llm"
	"github.com/vennietweek/llm-chat/internal/redis"
	"github.com/vennietweek/llm-chat/internal/storage"
	"github.com/vennietweek/llm-chat/internal/tokens"
	"github.com/vennietweek/llm-chat/internal/web"
	"github.com/vennietweek/llm-chat/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("LLMCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("LLMCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	store := storage.NewMessageStore(db)

	// Each run starts a fresh conversation.
	if err := store.Clear(context.Background()); err != nil {
		log.Fatalf("clear previous messages: %v", err)
	}
	log.Printf("[db] cleared all previous messages for fresh start")

	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	client, err := llm.NewClient(context.Background(), cfg.LLM)
	if err != nil {
		log.Fatalf("init llm client: %v", err)
	}
	capacity := llm.NewCapacityProvider(cfg.LLM.BaseURL, cfg.LLM.Model, rdb, cfg.CapacityCacheTTL())
	capacity.Invalidate(context.Background())
	budgeter := history.NewBudgeter(tokens.NewEstimator())

	pipeline := worker.NewPipeline(store, client, capacity, budgeter,
		cfg.BasicConfig.SystemPrompt, cfg.History.RecentLimit)
	dispatcher := worker.NewDispatcher(pipeline, worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})

	handlers := web.NewHandler(store, dispatcher, cfg.LLMTimeout())
	router := gin.Default()
	handlers.RegisterRoutes(router)

	if err := router.Run(cfg.BasicConfig.ServerAddress); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
