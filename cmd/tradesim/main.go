// Command tradesim runs the paper-trading ledger service: accounts with a
// starting cash balance trade simulated equities against CSV price data.
//
// Usage:
//
//	tradesim --config config.yaml
//	tradesim (defaults: in-memory backend, ./data price files, :8080)
//
// Environment variables:
//
//	TRADESIM_LISTEN   listen address override
//	TRADESIM_BACKEND  memory or postgres
//	DATABASE_URL      required for the postgres backend
//	KAFKA_BROKERS     comma-separated; enables the Kafka notifier
//	KAFKA_TOPIC       topic for trade events
package main

import (
	"context"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nebulatrade/tradesim/config"
	"github.com/nebulatrade/tradesim/internal/engine"
	"github.com/nebulatrade/tradesim/internal/events"
	"github.com/nebulatrade/tradesim/internal/feed"
	"github.com/nebulatrade/tradesim/internal/notify"
	"github.com/nebulatrade/tradesim/internal/store"
	"github.com/nebulatrade/tradesim/internal/store/memstore"
	"github.com/nebulatrade/tradesim/internal/store/pgstore"
	"github.com/nebulatrade/tradesim/internal/web"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		accounts  store.AccountStore
		holdings  store.HoldingsLedger
		watchlist store.WatchlistStore
	)
	switch cfg.Backend {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pg.Close()
		accounts, holdings, watchlist = pg.Accounts(), pg.Holdings(), pg.Watchlist()
	default:
		accounts, holdings, watchlist = memstore.NewAccounts(), memstore.NewHoldings(), memstore.NewWatchlist()
	}

	priceFeed := feed.NewCSVFeed(cfg.DataDir, cfg.Companies)

	journal, err := events.NewJournal(cfg.JournalDir)
	if err != nil {
		log.Fatal(err)
	}
	defer journal.Close()

	broadcaster := events.NewBroadcaster(256)

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kn.Close()
		notifiers = append(notifiers, kn)
	}
	dispatcher := notify.NewDispatcher(journal, broadcaster, logger, notifiers...)

	flux := engine.NewFluctuation(cfg.FluctuationSpan, rand.New(rand.NewSource(time.Now().UnixNano())))

	eng, err := engine.New(accounts, holdings, priceFeed,
		engine.WithLogger(logger),
		engine.WithEventSink(dispatcher),
		engine.WithFluctuation(flux),
		engine.WithConflictRetries(cfg.ConflictRetries),
	)
	if err != nil {
		log.Fatal(err)
	}

	server := web.NewServer(eng, watchlist, priceFeed, journal, broadcaster, cfg.StartingBalance, logger)

	logger.Info("tradesim starting",
		zap.String("listen", cfg.Listen),
		zap.String("backend", cfg.Backend),
		zap.Int("companies", len(cfg.Companies)))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, cfg.Listen)
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
