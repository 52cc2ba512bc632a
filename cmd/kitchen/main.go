package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pdvlite/go-pos-sync.git/internal/config"
	kafkax "github.com/pdvlite/go-pos-sync.git/internal/kafka"
	"github.com/pdvlite/go-pos-sync.git/internal/kitchen"
	"github.com/pdvlite/go-pos-sync.git/internal/pos"
	"github.com/pdvlite/go-pos-sync.git/internal/redisx"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Service
	svc := kitchen.New(rdb, cfg.ServiceName+"-kitchen")

	// Consumer: the board follows the full order lifecycle
	group := getenv("KITCHEN_GROUP", "kitchen-board")
	workers := mustAtoi(os.Getenv("KITCHEN_WORKERS"), "4")
	topics := []string{pos.TopicOrderCreated, pos.TopicOrderCancelled, pos.TopicKitchenStatus}
	cons := kafkax.NewGroupConsumer(cfg.KafkaBrokers, group, topics, workers)

	go func() {
		log.Printf("kitchen consumer started: group=%s topics=%v workers=%d", group, topics, workers)
		if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
