package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pdvlite/go-pos-sync.git/internal/cache"
	"github.com/pdvlite/go-pos-sync.git/internal/config"
	"github.com/pdvlite/go-pos-sync.git/internal/httpx"
	kafkax "github.com/pdvlite/go-pos-sync.git/internal/kafka"
	"github.com/pdvlite/go-pos-sync.git/internal/loyalty"
	"github.com/pdvlite/go-pos-sync.git/internal/postgres"
	"github.com/pdvlite/go-pos-sync.git/internal/redisx"
	"github.com/pdvlite/go-pos-sync.git/internal/remote"
	"github.com/pdvlite/go-pos-sync.git/internal/service"
	"github.com/pdvlite/go-pos-sync.git/internal/syncx"
	"github.com/pdvlite/go-pos-sync.git/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Remote store. An unreachable Postgres at boot is not fatal: the
	// terminal comes up on its cache and syncs when the store answers.
	var store remote.Store
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Printf("db connect failed, starting degraded: %v", err)
	} else {
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("db schema: %v", err)
		}
	}
	if db != nil {
		store = &remote.PG{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Local cache
	local, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Fatalf("cache open: %v", err)
	}
	defer local.Close()

	// Kafka lifecycle event bus
	bus := kafkax.NewBus(cfg.KafkaBrokers, 1024)
	bus.Start(ctx)

	// Sync coordinator
	coord := syncx.New(store, local, rdb, cfg.PollInterval)
	coord.Load(ctx)
	coord.Start(ctx)
	defer coord.Stop()

	// Push hub for UI surfaces
	hub := ws.NewHub()
	go hub.Run()
	coord.OnUpdate(func(snap syncx.Snapshot) {
		msg, err := json.Marshal(map[string]any{
			"type":   "snapshot",
			"state":  coord.State().String(),
			"orders": snap.Orders,
		})
		if err != nil {
			return
		}
		select {
		case hub.Broadcast <- msg:
		default: // never block the coordinator on a slow client
		}
	})

	// Services & handler
	svc := &service.OrderService{
		Coord:  coord,
		Store:  store,
		Ledger: loyalty.NewLedger(store),
		Bus:    bus,
		Redis:  rdb,
		Name:   cfg.ServiceName,
	}
	router := httpx.NewRouter()
	ph := &httpx.PosHandler{Svc: svc, Coord: coord, Hub: hub}
	ph.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	coord.Stop()
	bus.Close()
	bus.WaitClosed()
}
