package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hivestore/backend/internal/advisor"
	"hivestore/backend/internal/cache"
	"hivestore/backend/internal/config"
	"hivestore/backend/internal/gateway"
	"hivestore/backend/internal/gateway/memory"
	pggateway "hivestore/backend/internal/gateway/postgres"
	"hivestore/backend/internal/httpapi"
	"hivestore/backend/internal/storefront"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var remote gateway.Remote
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pggateway.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		remote = pg
		closers = append(closers, pg.Close)
		log.Println("gateway: postgres")
	} else {
		remote = memory.NewSeeded()
		log.Println("gateway: in-memory")
	}

	var sessionCache cache.Store
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Fatalf("redis unavailable (%v) and REDIS_ADDR is set", err)
		}
		sessionCache = redisCache
		closers = append(closers, redisCache.Close)
		log.Println("cache: redis")
	} else {
		fileCache, err := cache.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("cache directory %s unusable: %v", cfg.DataDir, err)
		}
		sessionCache = fileCache
		log.Printf("cache: files under %s", cfg.DataDir)
	}

	sync := storefront.New(remote, sessionCache)
	sync.Hydrate(ctx)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, remote)
	adv := advisor.New(cfg.AdvisorEndpoint, cfg.AdvisorAPIKey, cfg.AdvisorModel)
	api := httpapi.New(sync, adv, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("storefront backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
