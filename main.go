package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/skumar2006/x402-payments-router/internal/db"
	"github.com/skumar2006/x402-payments-router/internal/handler"
	"github.com/skumar2006/x402-payments-router/internal/ledger"
	"github.com/skumar2006/x402-payments-router/internal/models"
	"github.com/skumar2006/x402-payments-router/internal/scanner"
	"github.com/skumar2006/x402-payments-router/internal/services"
)

type Config struct {
	MySQL struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
	} `mapstructure:"mysql"`
	Ledger struct {
		TimeoutSeconds  int               `mapstructure:"timeout_seconds"`
		Merchant        string            `mapstructure:"merchant"`
		Confirmer       string            `mapstructure:"confirmer"`
		OpTimeoutSecs   int               `mapstructure:"op_timeout_seconds"`
		InitialBalances map[string]uint64 `mapstructure:"initial_balances"`
	} `mapstructure:"ledger"`
	Scanner struct {
		IntervalSeconds int    `mapstructure:"interval_seconds"`
		LookbackBlocks  uint64 `mapstructure:"lookback_blocks"`
		MaxRetries      int    `mapstructure:"max_retries"`
	} `mapstructure:"scanner"`
	App struct {
		Port         int    `mapstructure:"port"`
		ConfirmToken string `mapstructure:"confirm_token"`
	} `mapstructure:"app"`
}

func main() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("failed to read config:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal("failed to parse config:", err)
	}
	if cfg.Ledger.Merchant == "" || cfg.Ledger.Confirmer == "" {
		log.Fatal("ledger.merchant and ledger.confirmer must be configured")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
	dbConn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to MySQL:", err)
	}
	if err := dbConn.AutoMigrate(&models.SettlementRecord{}, &models.RefundRecord{}, &models.ScanCheckpoint{}); err != nil {
		log.Fatal("failed to migrate tables:", err)
	}
	db.DB = dbConn
	fmt.Println("database initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	balances := make(map[ledger.Identity]uint64, len(cfg.Ledger.InitialBalances))
	for id, amount := range cfg.Ledger.InitialBalances {
		balances[ledger.Identity(id)] = amount
	}
	l := ledger.New(ledger.Config{
		Merchant:        ledger.Identity(cfg.Ledger.Merchant),
		Confirmer:       ledger.Identity(cfg.Ledger.Confirmer),
		Timeout:         time.Duration(cfg.Ledger.TimeoutSeconds) * time.Second,
		InitialBalances: balances,
	})
	defer l.Close()
	log.Printf("escrow ledger provisioned: merchant=%s timeout=%s funded_payers=%d",
		l.Merchant(), l.Timeout(), len(balances))

	client := services.NewClient(l, time.Duration(cfg.Ledger.OpTimeoutSecs)*time.Second)
	coordinator := services.NewCoordinator(client, ledger.Identity(cfg.Ledger.Confirmer), dbConn)

	sc := scanner.New(client, db.NewStore(dbConn), scanner.Config{
		Interval:   time.Duration(cfg.Scanner.IntervalSeconds) * time.Second,
		Lookback:   cfg.Scanner.LookbackBlocks,
		MaxRetries: cfg.Scanner.MaxRetries,
	})
	go sc.Run(ctx)

	r := gin.Default()
	handler.RegisterRoutes(r, &handler.Handler{
		Client:       client,
		Coordinator:  coordinator,
		Scanner:      sc,
		ConfirmToken: cfg.App.ConfirmToken,
	})

	port := fmt.Sprintf(":%d", cfg.App.Port)
	fmt.Printf("server listening on %s\n", port)
	if err := r.Run(port); err != nil {
		log.Fatal("gin server failed:", err)
	}
}
