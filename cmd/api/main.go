package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/coinledger/internal/api"
	"github.com/fastprodman/coinledger/internal/auth"
	"github.com/fastprodman/coinledger/internal/config"
	"github.com/fastprodman/coinledger/internal/cooldown"
	"github.com/fastprodman/coinledger/internal/infra/logging"
	"github.com/fastprodman/coinledger/internal/infra/memstore"
	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/metrics"
	"github.com/fastprodman/coinledger/internal/notify"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	accountspg "github.com/fastprodman/coinledger/internal/repos/accounts/postgres"
	"github.com/fastprodman/coinledger/internal/repos/inventory"
	inventorypg "github.com/fastprodman/coinledger/internal/repos/inventory/postgres"
	"github.com/fastprodman/coinledger/internal/repos/items"
	itemspg "github.com/fastprodman/coinledger/internal/repos/items/postgres"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
	lotterypg "github.com/fastprodman/coinledger/internal/repos/lottery/postgres"
	"github.com/fastprodman/coinledger/internal/scheduler"
	"github.com/fastprodman/coinledger/internal/services/catalog"
	"github.com/fastprodman/coinledger/internal/services/economy"
	"github.com/fastprodman/coinledger/internal/services/ledger"
	lotterysvc "github.com/fastprodman/coinledger/internal/services/lottery"
	"github.com/fastprodman/coinledger/internal/services/wallet"
	"github.com/fastprodman/coinledger/internal/worker"
	"github.com/fastprodman/coinledger/pkg/envconf"
	"github.com/fastprodman/coinledger/pkg/shutdownqueue"
)

// defaultCatalog mirrors the seed migration for runs without Postgres.
var defaultCatalog = []items.Item{
	{ID: 1, Name: "Sword", Price: 50},
	{ID: 2, Name: "Shield", Price: 75},
	{ID: 3, Name: "Fishing Rod", Price: 120},
	{ID: 4, Name: "Pickaxe", Price: 150},
	{ID: 5, Name: "Laptop", Price: 1000},
	{ID: 6, Name: "Golden Crown", Price: 5000},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

type stores struct {
	tx        pgutils.Transactor
	accounts  accounts.Accounts
	inventory inventory.Inventory
	items     items.Items
	rounds    lottery.Rounds
}

func openStores(ctx context.Context, cfg *apiConfig) (stores, error) {
	if cfg.Postgres.DSN == "" {
		slog.Warn("PG_DSN is empty, using the in-memory store")

		mem := memstore.New(defaultCatalog...)

		return stores{
			tx:        mem,
			accounts:  mem.Accounts(),
			inventory: mem.Inventory(),
			items:     mem.Items(),
			rounds:    mem.Rounds(),
		}, nil
	}

	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return stores{}, fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("postgres", func(context.Context) error { return db.Close() })

	return postgresStores(db), nil
}

func postgresStores(db *sql.DB) stores {
	return stores{
		tx:        pgutils.NewTransactor(db),
		accounts:  accountspg.New(db),
		inventory: inventorypg.New(db),
		items:     itemspg.New(db),
		rounds:    lotterypg.New(db),
	}
}

func openCooldowns(ctx context.Context, cfg config.RedisConfig) (cooldown.Limiter, error) {
	if cfg.Addr == "" {
		return cooldown.NewMemory(time.Now), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	shutdownqueue.Add("redis", func(context.Context) error { return client.Close() })

	return cooldown.NewRedis(client), nil
}

func notifier(cfg *apiConfig, logger *slog.Logger) *notify.Dispatcher {
	pool := worker.NewPool(cfg.Notify.Workers, cfg.Notify.QueueSize)
	shutdownqueue.Add("notify pool", pool.Stop)

	var sink notify.Sink = notify.LogSink{Logger: logger}
	if cfg.Notify.WebhookURL != "" {
		sink = notify.WebhookSink{
			URL:    cfg.Notify.WebhookURL,
			Client: &http.Client{Timeout: cfg.Notify.Timeout},
		}
	}

	return notify.NewDispatcher(pool, sink, cfg.Notify.Timeout)
}

func schedule(cfg *apiConfig, logger *slog.Logger, engine *lotterysvc.Engine) (*scheduler.Scheduler, error) {
	s := scheduler.New(logger)
	lc := cfg.Lottery

	err := s.Add("lottery draw", lc.DrawSchedule, lc.BackgroundTimeout, func(ctx context.Context) error {
		results, err := engine.DrawDue(ctx)
		for _, r := range results {
			slog.Info("lottery round drawn", "round", r.RoundID, "winner", r.Winner, "payout", r.Payout)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.Add("lottery open", lc.OpenSchedule, lc.BackgroundTimeout, func(ctx context.Context) error {
		opened, err := engine.MaybeOpen(ctx)
		if opened {
			slog.Info("lottery round opened")
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.Add("robbery", lc.RobberySchedule, lc.BackgroundTimeout, func(ctx context.Context) error {
		rob, ok, err := engine.MaybeRob(ctx)
		if ok {
			slog.Info("robbery", "account", rob.AccountID, "amount", rob.Amount)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func run(ctx context.Context) (retErr error) {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logger := logging.Setup(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	err = metrics.Register(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// --- Infra ---
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}

	limiter, err := openCooldowns(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	// --- Services ---
	cat, err := catalog.Load(ctx, st.items)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	wallets := wallet.NewCache(st.tx, st.accounts, st.inventory)
	ledgerSvc := ledger.New(wallets, cat, st.accounts, limiter)
	engine := lotterysvc.New(wallets, st.rounds, st.accounts, notifier(cfg, logger), lotterysvc.Config{
		RoundDuration: cfg.Lottery.RoundDuration,
		OpenChance:    cfg.Lottery.OpenChance,
		ClaimTTL:      cfg.Lottery.ClaimTTL,
		RobberyChance: cfg.Lottery.RobberyChance,
		RobberyFloor:  cfg.Lottery.RobberyFloor,
	})
	svc := economy.New(ledgerSvc, engine, economy.WithQuitTimeout(cfg.QuitTimeout))

	var tm *auth.TokenManager

	if cfg.AdminJWTSecret != "" {
		tm, err = auth.NewTokenManager(cfg.AdminJWTSecret, time.Hour)
		if err != nil {
			return fmt.Errorf("token manager: %w", err)
		}
	} else {
		slog.Warn("ADMIN_JWT_SECRET is empty, admin routes are disabled")
	}

	// --- Background jobs ---
	sched, err := schedule(cfg, logger, engine)
	if err != nil {
		return err
	}

	sched.Start()
	shutdownqueue.Add("scheduler", sched.Stop)

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.NewRouter(svc, tm))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shut down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := srv.Shutdown(shutdownCtx)
		if serr != nil {
			return fmt.Errorf("shutdown srv: %w", serr)
		}

		return nil
	})

	slog.Info("API started", "port", cfg.Port, "postgres", cfg.Postgres.DSN != "", "redis", cfg.Redis.Addr != "")

	return g.Wait()
}
