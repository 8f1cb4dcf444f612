package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-tradedesk/internal/accounts"
	"lv-tradedesk/internal/admin"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/auth"
	"lv-tradedesk/internal/config"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/funding"
	"lv-tradedesk/internal/health"
	"lv-tradedesk/internal/httpserver"
	"lv-tradedesk/internal/kyc"
	"lv-tradedesk/internal/logger"
	"lv-tradedesk/internal/margin"
	"lv-tradedesk/internal/marketdata"
	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/monitor"
	"lv-tradedesk/internal/notify"
	"lv-tradedesk/internal/orders"
	"lv-tradedesk/internal/portfolio"
	"lv-tradedesk/internal/positions"
	"lv-tradedesk/internal/trades"
	"lv-tradedesk/internal/watchlist"
	"lv-tradedesk/internal/workflow"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Mode, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if cfg.UIDist != "" {
		if _, err := os.Stat(cfg.UIDist); err != nil {
			return fmt.Errorf("ui dist: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	database := db.New(pool)
	if err := database.Migrate(ctx); err != nil {
		return err
	}

	m := metrics.New()
	hub := notify.NewHub()
	var notifier notify.Notifier = hub
	if len(cfg.KafkaBrokers) > 0 {
		sink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer func() { _ = sink.Close() }()
		notifier = notify.Multi(hub, sink)
		log.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	quotes, closeQuotes, err := newQuotes(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeQuotes()

	auditor := audit.NewRecorder(database)
	checkpoints := workflow.NewCheckpointStore(database)
	runner := workflow.NewRunner(database, checkpoints, cfg.StepMaxAttempts, log.Named("workflow"), workflow.WithMetrics(m))
	workers := workflow.NewPool(cfg.Workers, 256, log.Named("pool"))

	accountStore := accounts.NewStore(database)
	accountSvc := accounts.NewService(database, accountStore, auditor, cfg.DefaultLeverage, cfg.SignupBalance)
	userStore := auth.NewStore(database)
	authSvc := auth.NewService(database, userStore, accountSvc, auditor, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	tradeStore := trades.NewStore(database)
	tradeSvc := trades.NewService(tradeStore, accountSvc)
	positionSvc := positions.NewService(positions.Deps{
		Tx:       database,
		Store:    positions.NewStore(database),
		Balances: accountStore,
		Accounts: accountSvc,
		Trades:   tradeStore,
		Prices:   quotes,
		Audit:    auditor,
		Notifier: notifier,
		Metrics:  m,
		Log:      log.Named("positions"),
	})

	orderStore := orders.NewStore(database)
	policy := margin.DefaultPolicy()
	processor := orders.NewProcessor(orders.ProcessorDeps{
		Orders:         orderStore,
		Accounts:       accountStore,
		Ledger:         positionSvc,
		Trades:         tradeStore,
		Prices:         quotes,
		Runner:         runner,
		Checkpoints:    checkpoints,
		Audit:          auditor,
		Notifier:       notifier,
		Metrics:        m,
		Log:            log.Named("orders"),
		CommissionRate: cfg.CommissionRate,
		Policy:         policy,
	})
	orderSvc := orders.NewService(orders.ServiceDeps{
		Tx:        database,
		Orders:    orderStore,
		Accounts:  accountSvc,
		Processor: processor,
		Pool:      workers,
		Audit:     auditor,
		Notifier:  notifier,
		Metrics:   m,
		Log:       log.Named("orders"),
		Symbols:   cfg.Symbols,
	})

	fundingStore := funding.NewStore(database)
	settler := funding.NewSettler(funding.SettlerDeps{
		Store:           fundingStore,
		Accounts:        accountStore,
		Positions:       positionSvc,
		Runner:          runner,
		Audit:           auditor,
		Notifier:        notifier,
		Metrics:         m,
		Log:             log.Named("funding"),
		DefaultLeverage: cfg.DefaultLeverage,
	})
	fundingSvc := funding.NewService(funding.ServiceDeps{
		Tx:       database,
		Store:    fundingStore,
		Accounts: accountSvc,
		Settler:  settler,
		Pool:     workers,
		Audit:    auditor,
		Log:      log.Named("funding"),
	})

	kycSvc := kyc.NewService(database, kyc.NewStore(database), userStore, auditor, notifier, log.Named("kyc"))
	watchSvc := watchlist.NewService(watchlist.NewStore(database), quotes, auditor, log.Named("watchlist"))
	portfolioSvc := portfolio.NewService(accountSvc, positionSvc, tradeSvc, policy, cfg.DefaultLeverage)
	adminSvc := admin.NewService(userStore, accountSvc, auditor)

	marginMon := monitor.NewMarginMonitor(monitor.MarginDeps{
		Accounts:        accountStore,
		Snapshots:       accountStore,
		Positions:       positionSvc,
		Closer:          positionSvc,
		Pool:            workers,
		Policy:          policy,
		DefaultLeverage: cfg.DefaultLeverage,
		Notifier:        notifier,
		Metrics:         m,
		Log:             log.Named("margin"),
	})
	positionMon := monitor.NewPositionMonitor(monitor.PositionDeps{
		Accounts: accountStore,
		Ledger:   positionSvc,
		Closer:   positionSvc,
		Prices:   quotes,
		Pool:     workers,
		Metrics:  m,
		Log:      log.Named("position-monitor"),
	})
	orderMon := monitor.NewOrderMonitor(monitor.OrderDeps{
		Orders:  orderStore,
		Queue:   orderSvc,
		Prices:  quotes,
		Metrics: m,
		Log:     log.Named("order-monitor"),
	})
	broadcaster := marketdata.NewBroadcaster(quotes, cfg.Symbols, hub)

	limiter := httpserver.NewRateLimiter(10, 30)
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Auth:          auth.NewHandler(authSvc, cfg.SessionCookie, cfg.Production(), log),
		Accounts:      accounts.NewHandler(accountSvc, log),
		Orders:        orders.NewHandler(orderSvc, log),
		Positions:     positions.NewHandler(positionSvc, log),
		Trades:        trades.NewHandler(tradeSvc, log),
		Funding:       funding.NewHandler(fundingSvc, log),
		KYC:           kyc.NewHandler(kycSvc, log),
		Watchlist:     watchlist.NewHandler(watchSvc, log),
		Portfolio:     portfolio.NewHandler(portfolioSvc, log),
		Quotes:        marketdata.NewHandler(quotes, cfg.Symbols, log),
		Admin:         admin.NewHandler(adminSvc, log),
		Health:        health.NewHandler(database, pool, time.Now()),
		WS:            httpserver.NewWSHandler(hub, authSvc, cfg.SessionCookie, cfg.WebSocketOrigin, log.Named("ws")),
		Metrics:       m.Handler(),
		Tokens:        authSvc,
		SessionCookie: cfg.SessionCookie,
		Origin:        cfg.WebSocketOrigin,
		InternalToken: cfg.InternalToken,
		Limiter:       limiter,
		UIDist:        cfg.UIDist,
		Log:           log.Named("http"),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workers.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	schedules := []*workflow.Scheduler{
		workflow.NewScheduler("margin", cfg.MarginSweepInterval, marginMon, log),
		workflow.NewScheduler("positions", cfg.PositionSweepInterval, positionMon, log),
		workflow.NewScheduler("orders", cfg.OrderSweepInterval, orderMon, log),
		workflow.NewScheduler("funding", cfg.FundingSweepInterval, workflow.TaskFunc(func(ctx context.Context) error {
			return fundingSvc.Recover(ctx, cfg.FundingSweepInterval)
		}), log),
		workflow.NewScheduler("prices", cfg.PriceBroadcastInterval, broadcaster, log),
	}
	for _, s := range schedules {
		g.Go(func() error { return s.Start(gctx) })
	}
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("mode", cfg.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newQuotes picks the quote source and cache from config: the REST provider
// when MARKET_DATA_URL is set, otherwise the simulator; Redis when
// REDIS_ADDR is set, otherwise the in-process cache.
func newQuotes(ctx context.Context, cfg config.Config, log *zap.Logger) (*marketdata.Quotes, func(), error) {
	var provider marketdata.Provider
	if cfg.MarketDataURL != "" {
		provider = marketdata.NewHTTPProvider(marketdata.HTTPConfig{
			BaseURL: cfg.MarketDataURL,
			Token:   cfg.MarketDataToken,
		}, log.Named("quotes"))
	} else {
		log.Warn("MARKET_DATA_URL not set, using simulated quotes")
		provider = marketdata.NewSimulator(cfg.Symbols, uint64(time.Now().UnixNano()), 0)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return marketdata.NewQuotes(provider, marketdata.NewRedisCache(client, cfg.QuoteCacheTTL), log.Named("quotes")),
			func() { _ = client.Close() }, nil
	}
	cache, err := marketdata.NewMemoryCache(ctx, cfg.QuoteCacheTTL, cfg.QuoteCacheMaxMB)
	if err != nil {
		return nil, nil, err
	}
	return marketdata.NewQuotes(provider, cache, log.Named("quotes")), func() { _ = cache.Close() }, nil
}
