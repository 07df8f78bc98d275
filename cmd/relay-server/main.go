package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LiveTranslateRelay/internal/config"
	"LiveTranslateRelay/internal/logger"
	"LiveTranslateRelay/internal/relayserver"
	"LiveTranslateRelay/internal/store"
)

// 生产入口：配置文件 + 热重载 + PostgreSQL快照存储（配置了DSN时）。
func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	logger.InitLogger()

	watcher, err := config.LoadAndWatch(*configPath)
	if err != nil {
		// 没有配置文件也能跑：退回默认值+环境变量
		log.Printf("Load config %s failed (%v), using defaults", *configPath, err)
		cfg, loadErr := config.Load("")
		if loadErr != nil {
			log.Fatalf("Load default config failed: %v", loadErr)
		}
		run(cfg)
		return
	}

	run(watcher.Get())
}

func run(cfg *config.Config) {
	var sessionStore store.SessionStore
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgStore, err := store.NewPgxStore(ctx, cfg.Database.DSN)
		cancel()
		if err != nil {
			log.Fatalf("Connect session store failed: %v", err)
		}
		sessionStore = pgStore
	} else {
		log.Printf("No database DSN configured, snapshots will not survive restarts")
		sessionStore = store.NewMemoryStore()
	}
	defer sessionStore.Close()

	serverConfig := relayserver.DefaultServerConfig(cfg.Server.Addr)
	serverConfig.MaxConnections = cfg.Server.MaxConnections
	serverConfig.SendQueueSize = cfg.Server.SendQueueSize
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout

	server := relayserver.New(serverConfig, sessionStore)
	if err := server.Start(); err != nil {
		log.Fatalf("Start relay server failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown failed: %v", err)
	}
}
