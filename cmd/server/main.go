package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trgiang/fulfillment/internal/adapter/handler"
	"github.com/trgiang/fulfillment/internal/adapter/payment"
	"github.com/trgiang/fulfillment/internal/adapter/storage"
	"github.com/trgiang/fulfillment/internal/core/service"
	"github.com/trgiang/fulfillment/internal/metrics"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	httpAddr := getenv("HTTP_ADDR", ":8080")
	mysqlDSN := getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/fulfillment?parseTime=true")
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	gatewayURL := getenv("GATEWAY_URL", "http://localhost:9090")
	gatewayKey := os.Getenv("GATEWAY_KEY")
	currency := getenv("CURRENCY", "USD")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping mysql", zap.Error(err))
	}
	log.Info("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	log.Info("connected to redis")

	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	gateway := payment.NewGatewayClient(gatewayURL, gatewayKey, 10*time.Second)
	fulfillmentMetrics := metrics.NewFulfillmentMetrics()

	cartService := service.NewCartService(mysqlAdapter, log)
	fulfillmentService := service.NewFulfillmentService(
		mysqlAdapter, // carts
		mysqlAdapter, // orders
		redisAdapter, // inventory ledger
		mysqlAdapter, // prices
		gateway,
		redisAdapter, // idempotency
		currency,
		log,
		fulfillmentMetrics,
	)

	mux := http.NewServeMux()
	handler.NewHTTPHandler(fulfillmentService, cartService).Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")

	rdb.Close()
	db.Close()
	log.Info("connections closed")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
