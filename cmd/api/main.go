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

	"club-ticketing/internal/cartlock"
	"club-ticketing/internal/client"
	"club-ticketing/internal/config"
	"club-ticketing/internal/fees"
	"club-ticketing/internal/pricing"
	"club-ticketing/internal/repository"
	"club-ticketing/internal/server"
	"club-ticketing/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	db := client.InitSqliteClient(cfg.DatabaseDSN)
	gateway := client.NewPaymentGateway(&cfg.Gateway)

	venueTZ := time.FixedZone("venue", cfg.Venue.UTCOffsetMinutes*60)

	lockTTL := time.Duration(cfg.Lock.TTLMinutes) * time.Minute
	var locks cartlock.Store
	if cfg.Lock.RedisAddr != "" {
		locks = cartlock.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
		}), lockTTL)
	} else {
		locks = cartlock.NewMemoryStore(lockTTL, time.Duration(cfg.Lock.SweepMinutes)*time.Minute)
	}
	defer locks.Close()

	pricingEngine := pricing.NewEngine(
		time.Duration(cfg.Pricing.GraceMinutes)*time.Minute,
		cfg.Pricing.GraceSurchargePct,
	)
	feeEngine := fees.NewEngine(fees.Rates{
		GeneralTicketPct: cfg.Fees.GeneralTicketRatePct,
		EventTicketPct:   cfg.Fees.EventTicketRatePct,
		MenuPct:          cfg.Fees.MenuRatePct,
		GatewayVarPct:    cfg.Fees.GatewayVariablePct,
		GatewayFixed:     cfg.Fees.GatewayFixedCents,
		GatewayTaxPct:    cfg.Fees.GatewayTaxPct,
	})

	cartRepo := repository.NewCartRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)

	cartService := service.NewCartService(cartRepo, catalogRepo, locks, pricingEngine, venueTZ, cfg.Checkout.HorizonDays)
	fulfillment := service.NewFulfillmentProcessor(
		db, txRepo, cartRepo, purchaseRepo, catalogRepo,
		pricingEngine, feeEngine, cfg.Checkout.QRSecret,
		service.LogNotifier{}, venueTZ,
	)
	checkoutService := service.NewCheckoutService(
		cartRepo, txRepo, catalogRepo, locks, gateway,
		pricingEngine, feeEngine, fulfillment,
		service.CheckoutConfig{
			MinTotalCents:   cfg.Checkout.MinTotalCents,
			Currency:        cfg.Venue.Currency,
			Provider:        cfg.Checkout.PaymentProvider,
			IntegritySecret: cfg.Gateway.IntegritySecret,
		},
		venueTZ,
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(cartService, checkoutService, cfg.Auth.JWTSecret)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	_, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}
