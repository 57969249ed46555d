package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/handlers"
	"github.com/ruralpay/ledger/internal/hsm"
	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/ruralpay/ledger/internal/store/postgres"
)

// @title ATM Ledger API
// @version 1.0
// @description Account ledger with deposits, withdrawals and transfers
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	redisClient := database.InitRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	st := postgres.New(db)
	hasher := hsm.NewPINHasher(cfg.Argon2)
	audit := hsm.NewAuditLogger(log.New(os.Stdout, "", log.LstdFlags))
	activity := services.NewActivityRecorder(st.Activity(), time.Now)
	guard := services.NewLockoutGuard(st, hasher, activity, cfg.Policy, time.Now)
	limiter := services.NewRateLimiter(cfg.Policy)
	engine := services.NewEngine(st, limiter, activity, audit, cfg.Policy, time.Now)
	authService := services.NewAuthService(st, guard, hasher, activity, cfg.Policy, time.Now)

	tokens := mW.NewTokenManager(cfg.JWT)
	revoker := mW.NewTokenRevoker(redisClient)

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:           handlers.NewAuthHandler(authService, tokens, revoker),
		Account:        handlers.NewAccountHandler(engine, authService, activity),
		Admin:          handlers.NewAdminHandler(authService),
		Tokens:         tokens,
		Revoker:        revoker,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Health:         db.PingContext,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
