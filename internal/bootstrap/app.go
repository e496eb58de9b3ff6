package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/jobs"
	"rateshop-backend/internal/queue"
	"rateshop-backend/internal/ratetable"
	"rateshop-backend/internal/rating"
	"rateshop-backend/internal/seed"
	"rateshop-backend/internal/shared/auth"
	"rateshop-backend/internal/shared/config"
	"rateshop-backend/internal/shared/lock"
	"rateshop-backend/internal/shared/server"
	"rateshop-backend/internal/shared/server/middleware"
	"rateshop-backend/internal/shared/storage/db"
	"rateshop-backend/internal/shared/storage/object"
	localstore "rateshop-backend/internal/shared/storage/object/local"
	s3store "rateshop-backend/internal/shared/storage/object/s3"
	"rateshop-backend/internal/shared/telemetry"
)

// Role selects connection pool sizing for the process being built.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Store       object.ObjectStore
	Queue       queue.Client
	Locker      lock.Locker
	Verifier    auth.Verifier
	JobsRepo    jobs.Repo
	Results     jobs.ResultStore
	Accounts    carriers.Repo
	RateTables  RateTables
	Quoter      rating.Quoter
	JobsService *jobs.Service
	JobHandler  *jobs.Handler

	redis *lock.Redis
}

// RateTables reads rate tables for pricing and accepts seeded ones.
type RateTables interface {
	ratetable.Source
	seed.TableWriter
}

// Build prepares dependencies and the router for the given role.
func Build(cfg config.Config, role Role) (*App, error) {
	cfg.Sanitize()
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, role)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if err := buildLocker(app); err != nil {
		return nil, err
	}
	if err := buildQueue(ctx, app); err != nil {
		return nil, err
	}
	if err := buildVerifier(ctx, app); err != nil {
		return nil, err
	}
	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:     app.Config,
		Verifier:   app.Verifier,
		JobHandler: app.JobHandler,
		Ready:      app.Ready,
	})
	return app, nil
}

// Ready pings the database and the lock store when they are configured.
func (a *App) Ready(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases pooled connections.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Client.Close())
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config, role Role) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_mode", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	defaults := db.DefaultServerOptions()
	if role == RoleWorker {
		defaults = db.DefaultWorkerOptions()
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(defaults))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_mode", map[string]any{"reason": "database connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, s3store.Options{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			KMSKeyID: cfg.SSEKMSKeyID,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLocker(app *App) error {
	if strings.TrimSpace(app.Config.RedisURL) == "" {
		if app.Config.DispatchMode == "sqs" && !isDevLike(app.Config.Env) {
			telemetry.Warn("bootstrap.lock_local_only", map[string]any{
				"reason": "REDIS_URL empty; job leases do not span processes",
			})
		}
		app.Locker = lock.NewMemory(nil)
		return nil
	}
	r, err := lock.NewRedis(app.Config.RedisURL, "rateshop:lock:")
	if err != nil {
		return err
	}
	app.redis = r
	app.Locker = r
	return nil
}

func buildQueue(ctx context.Context, app *App) error {
	if app.Config.DispatchMode != "sqs" {
		return nil
	}
	if app.DB == nil {
		return errors.New("DISPATCH_MODE=sqs requires DATABASE_URL")
	}
	if strings.TrimSpace(app.Config.SQSQueueURL) == "" {
		return errors.New("DISPATCH_MODE=sqs requires RS_SQS_QUEUE_URL")
	}
	client, err := queue.NewSQSClient(ctx, app.Config.SQSQueueURL, app.Config.AWSRegion)
	if err != nil {
		return err
	}
	app.Queue = client
	return nil
}

func buildVerifier(ctx context.Context, app *App) error {
	if issuer := strings.TrimSpace(app.Config.OIDCIssuer); issuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, issuer, app.Config.OIDCAudience)
		if err != nil {
			return err
		}
		app.Verifier = v
		return nil
	}
	v, err := auth.NewHMACVerifier(app.Config.JWTSecret, app.Config.Env)
	if err != nil {
		return err
	}
	app.Verifier = v
	return nil
}

func buildServices(ctx context.Context, app *App) error {
	if app.DB != nil {
		app.JobsRepo = &jobs.PGRepo{DB: app.DB}
		app.Accounts = &carriers.PGRepo{DB: app.DB}
		app.RateTables = &ratetable.PGSource{DB: app.DB}
	} else {
		app.JobsRepo = jobs.NewMemoryRepo()
		app.Accounts = carriers.NewMemoryRepo()
		app.RateTables = ratetable.NewMemorySource()
	}

	results, err := buildResultStore(app)
	if err != nil {
		return err
	}
	app.Results = results

	if path := strings.TrimSpace(app.Config.CarrierSeedFile); path != "" {
		f, err := seed.LoadFile(path)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, f, app.Accounts, app.RateTables); err != nil {
			return err
		}
	}

	p := app.Config.Pipeline
	app.Quoter = rating.NewClient(rating.Options{
		Credentials:  rating.EnvCredentials{},
		Timeout:      p.CarrierTimeout,
		MaxAttempts:  p.CarrierMaxAttempts,
		Backoff:      p.CarrierRetryBackoff,
		DefaultRPS:   p.CarrierRPS,
		DefaultBurst: p.CarrierBurst,
	})

	svc := &jobs.Service{
		Repo:     app.JobsRepo,
		Store:    app.Results,
		Accounts: app.Accounts,
		Rates:    app.RateTables,
		Quoter:   app.Quoter,
		Locker:   app.Locker,
		Options: jobs.Options{
			Concurrency:        p.Concurrency,
			BatchSize:          p.BatchSize,
			BatchTimeout:       p.BatchTimeout,
			MaxPersistFailures: p.MaxPersistFailures,
			MaxShipments:       p.MaxShipmentsPerJob,
			LeaseTTL:           p.JobLeaseTTL,
		},
	}
	if app.Queue != nil {
		svc.Dispatcher = jobs.QueueDispatcher{Client: app.Queue}
	}
	app.JobsService = svc

	handler := jobs.NewHandler(svc)
	if n := p.SubmitRatePerMin; n > 0 {
		handler.SubmitLimit = middleware.RateLimit(middleware.RateLimitConfig{
			Scope: "jobs.submit",
			Rule:  middleware.PerMinute(n),
		})
	}
	app.JobHandler = handler
	return nil
}

func buildResultStore(app *App) (jobs.ResultStore, error) {
	switch app.Config.ResultStore {
	case "postgres":
		if app.DB == nil {
			return nil, errors.New("RESULT_STORE=postgres requires DATABASE_URL")
		}
		return &jobs.PGResultStore{DB: app.DB}, nil
	case "object":
		return &jobs.ObjectResultStore{Store: app.Store}, nil
	case "memory":
		return jobs.NewMemoryResultStore(), nil
	default:
		if app.DB != nil {
			return &jobs.PGResultStore{DB: app.DB}, nil
		}
		return jobs.NewMemoryResultStore(), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
