package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cabinetworks/mto/cmd/mto/cli"
	"github.com/cabinetworks/mto/internal/app"
	"github.com/cabinetworks/mto/internal/ledger"
	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/observability"
	"github.com/cabinetworks/mto/internal/planning"
	"github.com/cabinetworks/mto/internal/platform/cache"
	"github.com/cabinetworks/mto/internal/platform/db"
	"github.com/cabinetworks/mto/internal/procurement"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/reservation"
	"github.com/cabinetworks/mto/internal/shared"
	"github.com/cabinetworks/mto/jobs"
	"github.com/cabinetworks/mto/migrations"
)

const usage = `usage: mto [command]

commands:
  serve                          run the HTTP API (default)
  migrate                        apply pending schema migrations
  tally [flags] <file.csv>       reconcile physical stock counts
  jobs trigger <job> [mto-id]    enqueue resolve-sweep or resolve-status
  jobs stats                     show queue depth
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command, args := "serve", os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var code int
	switch command {
	case "serve":
		code = serve(ctx, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "tally":
		code = tally(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		code = 2
	}
	os.Exit(code)
}

func openPool(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	return db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:         cfg.PGMaxConns,
		LockTimeout:      cfg.PGLockTimeout,
		StatementTimeout: cfg.PGStatementTimeout,
	})
}

// openRedis returns nil when Redis is not configured or unreachable; the API
// then keeps rate-limit counters in process and cannot defer work.
func openRedis(ctx context.Context, cfg *app.Config, logger *slog.Logger) *redis.Client {
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, continuing without queue", slog.Any("error", err))
		return nil
	}
	return client
}

// services holds every domain service sharing one pool.
type services struct {
	ledger      *ledger.Service
	resolver    *mto.Resolver
	mto         *mto.Service
	reservation *reservation.Service
	procurement *procurement.Service
	planning    *planning.Service
}

func buildServices(pool *pgxpool.Pool, metrics *observability.Metrics, notifier shared.Notifier, retry mto.RetryScheduler, logger *slog.Logger) services {
	audit := shared.NewAuditLogger(pool)

	mtoRepo := mto.NewRepository(pool)
	resolver := mto.NewResolver(mtoRepo, metrics, notifier, logger.With(slog.String("component", "resolver")))

	return services{
		ledger:   ledger.NewService(ledger.NewRepository(pool), audit, notifier, metrics, logger),
		resolver: resolver,
		mto:      mto.NewService(mtoRepo, resolver, retry, audit, notifier, logger),
		reservation: reservation.NewService(reservation.Deps{
			Repo:        reservation.NewRepository(pool),
			Resolver:    resolver,
			Retry:       retry,
			Audit:       audit,
			Notifier:    notifier,
			Idempotency: shared.NewIdempotencyStore(pool),
			Metrics:     metrics,
			Logger:      logger,
		}),
		procurement: procurement.NewService(procurement.NewRepository(pool), resolver, retry, audit, notifier, logger),
		planning:    planning.NewService(planning.NewRepository(pool), logger),
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	var (
		redisClient redis.UniversalClient
		notifier    shared.Notifier = shared.NoopNotifier{}
		retry       mto.RetryScheduler
		jobHandler  *jobs.Handler
	)
	if rc := openRedis(ctx, cfg, logger); rc != nil {
		defer func() {
			if err := rc.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		redisClient = rc

		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobsClient := jobs.NewClient(redisOpts)
		defer jobsClient.Close()
		retry = jobsClient
		if cfg.NotificationsEnabled {
			notifier = jobsClient
		}

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	metrics := observability.NewMetrics()
	svc := buildServices(pool, metrics, notifier, retry, logger)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Redis:  redisClient,
		LedgerHandler: ledger.NewHandler(logger, svc.ledger, rbacMiddleware,
			app.RateLimiter(redisClient, "ratelimit:tally", cfg.TallyRateLimit, cfg.RateLimitWindow)),
		MTOHandler:         mto.NewHandler(logger, svc.mto, rbacMiddleware),
		ReservationHandler: reservation.NewHandler(logger, svc.reservation, rbacMiddleware),
		ProcurementHandler: procurement.NewHandler(logger, svc.procurement, rbacMiddleware),
		PlanningHandler:    planning.NewHandler(logger, svc.planning, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	return 0
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	for _, name := range applied {
		logger.Info("migration applied", slog.String("name", name))
	}
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	if len(applied) == 0 {
		logger.Info("schema up to date")
	}
	return 0
}

func tally(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("tally", flag.ContinueOnError)
	mode := fs.String("mode", string(cli.TallyModeDry), "dry or apply")
	jsonOut := fs.Bool("json", false, "print JSON output")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	actor := fs.Int64("actor", 0, "actor id recorded on the transactions")
	notes := fs.String("notes", "", "notes recorded on the transactions")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	service := ledger.NewService(ledger.NewRepository(pool), shared.NewAuditLogger(pool), nil, nil, logger)
	tallyCLI, err := cli.NewTallyCLI(service)
	if err != nil {
		logger.Error("tally", slog.Any("error", err))
		return 1
	}
	return tallyCLI.Command(ctx, cli.TallyOptions{
		Path:       fs.Arg(0),
		Mode:       cli.TallyMode(*mode),
		Notes:      *notes,
		ActorID:    *actor,
		JSONOutput: *jsonOut,
		Yes:        *yes,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		var mtoID int64
		if len(args) > 2 {
			if mtoID, err = strconv.ParseInt(args[2], 10, 64); err != nil {
				fmt.Fprintf(os.Stderr, "invalid mto id %q\n", args[2])
				return 2
			}
		}
		info, err := jobsCLI.Trigger(ctx, args[1], mtoID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, s := range stats {
			fmt.Fprintf(os.Stdout, "%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
