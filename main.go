package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"evm-contract-indexer/chain"
	"evm-contract-indexer/config"
	"evm-contract-indexer/database"
	"evm-contract-indexer/indexer"
	"evm-contract-indexer/indexer/names"
	"evm-contract-indexer/logger"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const retentionCheckIntervalSeconds = 60 * 30

func main() {
	_ = godotenv.Load()
	flag.Parse()

	cfg, err := config.BuildConfig()
	if err != nil {
		fmt.Println("Config error: ", err)
		return
	}
	config.GlobalConfigCallback.Call(cfg)
	logger.Info("Running with configuration: chain: %s, database: %s", cfg.Chain.NodeURL, cfg.DB.Database)

	db, err := database.ConnectAndInitialize(&cfg.DB)
	if err != nil {
		logger.Fatal("Database connect and initialize error: %s", err)
	}

	client, err := chain.DialRPCNode(cfg.Chain)
	if err != nil {
		logger.Fatal("Chain node dial error: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := names.NewStaticResolver(cfg.Indexer.Events, cfg.Indexer.Functions)
	cIndexer := indexer.CreateBlockIndexer(cfg, db, client, resolver)
	if err := cIndexer.Init(ctx); err != nil {
		logger.Fatal("Indexer init error: %s", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cIndexer.Run(ctx)
	})

	if cfg.DB.HistoryDrop > 0 {
		g.Go(func() error {
			database.DropHistory(ctx, db, cfg.DB.HistoryDrop, retentionCheckIntervalSeconds, client)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Run error: %s", err)
	}
	logger.SyncFileLogger()
}
