package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/config"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/mysql"
	engineredis "auction-engine/internal/infrastructure/redis"
	ws "auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction engine", "instance_id", cfg.Instance.ID)

	// Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Error("Failed to open MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping MySQL", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to MySQL")

	// Stores
	auctionStore := mysql.NewMySQLAuctionStore(db)
	bidStore := mysql.NewMySQLBidStore(db)
	userStore := mysql.NewMySQLUserStore(db)

	// Events: every engine mutation publishes onto Redis; the websocket
	// side subscribes and pushes to live watchers.
	emitter := services.NewFanoutEmitter(log, engineredis.NewEventPublisher(rdb))

	// Services
	machine := services.NewStateMachine(auctionStore, bidStore, emitter, log)
	ledger := services.NewBidLedger(auctionStore, bidStore, userStore, machine, emitter,
		services.AntiSnipePolicy{
			Enabled: cfg.Engine.AntiSnipeEnabled,
			Window:  cfg.Engine.AntiSnipeWindow,
		}, log)
	ledger.SetRetryBudget(cfg.Engine.BidRetryAttempts)
	settlement := services.NewSettlementTracker(auctionStore, machine, log)
	listings := services.NewListingService(auctionStore, bidStore, log)

	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL)
	sweeper := services.NewClosingSweeper(auctionStore, machine, leaderElection,
		cfg.Instance.ID, cfg.Engine.SweepInterval, log)

	// Websocket fan-out
	connManager := ws.NewConnectionManager(log)
	broadcaster := ws.NewBroadcaster(connManager, log)
	subscriber := engineredis.NewEventSubscriber(rdb, log)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	go func() {
		if err := subscriber.Subscribe(rootCtx, broadcaster.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event subscriber exited", "error", err)
		}
	}()

	// HTTP API
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	auctionHandler := handlers.NewAuctionHandler(listings, ledger, machine, settlement, sweeper, log)
	auctionHandler.Register(e.Group("/api/v1"))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-engine",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Websocket server
	wsHandler := ws.NewHandler(ledger, auctionStore, connManager, log)
	wsRouter := mux.NewRouter()
	wsRouter.HandleFunc("/ws/auctions/{auctionID}", wsHandler.HandleConnection)

	wsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.WSPort),
		Handler: wsRouter,
	}

	// Background: sweeper and leadership loop
	if err := sweeper.Start(rootCtx); err != nil {
		log.Error("Failed to start sweeper", "error", err)
		os.Exit(1)
	}

	go func() {
		for {
			select {
			case <-rootCtx.Done():
				return
			default:
			}
			became, err := leaderElection.BecomeLeader(rootCtx, cfg.Instance.ID)
			if err != nil {
				log.Error("Failed to attempt leadership", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}
			if became {
				log.Info("Became sweep leader", "instance_id", cfg.Instance.ID)
			}
			time.Sleep(10 * time.Second)
		}
	}()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("Starting API server", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("API server failed", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		log.Info("Starting websocket server", "address", wsServer.Addr)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Websocket server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction engine...")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sweeper.Stop(); err != nil {
		log.Error("Failed to stop sweeper", "error", err)
	}
	if err := leaderElection.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
		log.Error("Failed to release leadership", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Websocket server forced to shutdown", "error", err)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("API server forced to shutdown", "error", err)
	}

	log.Info("Auction engine stopped")
}
