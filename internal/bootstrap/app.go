package bootstrap

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/bsm/redislock"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"

	appsvc "bizadmin-backend/internal/app"
	"bizadmin-backend/internal/cache"
	"bizadmin-backend/internal/config"
	"bizadmin-backend/internal/jobs"
	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/notify"
	"bizadmin-backend/internal/observability/metrics"
	mysqlClient "bizadmin-backend/internal/platform/mysql"
	rabbitmqClient "bizadmin-backend/internal/platform/rabbitmq"
	redisClient "bizadmin-backend/internal/platform/redis"
	"bizadmin-backend/internal/repository"
	"bizadmin-backend/internal/storage"
	"bizadmin-backend/internal/worker"
)

type App struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	DB      *gorm.DB
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Blobs   storage.Backend

	Store         *repository.Store
	Users         *repository.UserRepository
	Notifications *repository.NotificationRepository

	Auth     *appsvc.AuthService
	Ledger   *appsvc.LedgerService
	Query    *appsvc.TemplateQueryService
	Archive  *appsvc.ArchiveService
	Notifier *notify.Service
	Jobs     *jobs.Set
	Runner   *jobs.Runner

	NotificationWorker *worker.NotificationPersistWorker

	// Location is the business time zone used by the scheduler and for
	// naive schedule times.
	Location *time.Location

	publishers []*rabbitmqClient.Publisher
	closers    []func() error

	StartedAt time.Time
}

// New wires every dependency. Background consumers and the scheduler are
// started separately by Start so one-shot tools can reuse the wiring.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger := logging.New(cfg.App.LogLevel)
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}

	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), a.Logger.WithField("module", "gorm"))
	if err != nil {
		return err
	}
	a.DB = db
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.Dial(ctx, cfg.RabbitMQ.URL,
		cfg.RabbitMQ.NotificationPersistQueue,
		cfg.RabbitMQ.PushQueue,
	)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	blobs, err := a.newBlobBackend(ctx)
	if err != nil {
		return err
	}
	a.Blobs = blobs
	return nil
}

func (a *App) newBlobBackend(ctx context.Context) (storage.Backend, error) {
	cfg := a.Config.Storage
	log := a.Logger.WithField("module", "storage")

	breaker := storage.BreakerSettings{
		MinRequests:  uint32(max(cfg.BreakerMinRequests, 0)),
		FailureRatio: cfg.BreakerFailureRatio,
		OpenTimeout:  time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("storage breaker state changed")
		},
	}

	var backend storage.Backend
	switch cfg.Backend {
	case string(storage.KindLocal):
		local, err := storage.NewLocal(cfg.LocalRoot, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		backend = local
	case string(storage.KindS3):
		s3Backend, err := storage.NewS3(ctx, storage.S3Options{
			Region:     cfg.S3Region,
			Endpoint:   cfg.S3Endpoint,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			PresignTTL: time.Duration(cfg.S3PresignMinutes) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		backend = storage.Guard(s3Backend, breaker)
	case string(storage.KindGCS):
		gcsBackend, err := storage.NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentialsJSON)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gcsBackend.Close)
		backend = storage.Guard(gcsBackend, breaker)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	log.WithField("backend", cfg.Backend).Info("blob storage ready")
	return storage.Observe(backend, a.Metrics.ObserveStorage), nil
}

func (a *App) wire() error {
	cfg := a.Config
	logger := a.Logger

	a.Store = repository.NewStore(a.DB)
	a.Users = repository.NewUserRepository(a.DB)
	a.Notifications = repository.NewNotificationRepository(a.DB)

	a.Auth = appsvc.NewAuthService(
		a.Users,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	).WithLogger(logger.WithField("module", "auth"))

	templateCache := cache.NewTemplateCache(
		a.Redis,
		time.Duration(cfg.Redis.TemplateTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.TemplateDirtyTTLSeconds)*time.Second,
	)
	a.Ledger = appsvc.NewLedgerService(a.Store, a.Blobs, appsvc.LedgerOptions{
		Cache:           templateCache,
		Metrics:         a.Metrics,
		Logger:          logger.WithField("module", "ledger"),
		ConflictRetries: cfg.Documents.UploadConflictRetries,
	})
	a.Query = appsvc.NewTemplateQueryService(a.Store.Templates(), a.Blobs, templateCache, logger.WithField("module", "templates"))
	a.Archive = appsvc.NewArchiveService(a.Ledger, a.Blobs, cfg.Documents.ArchiveFetchConcurrency, a.Metrics, logger.WithField("module", "archive"))

	persist := rabbitmqClient.NewPublisher(a.MQConn, cfg.RabbitMQ.NotificationPersistQueue)
	a.publishers = append(a.publishers, persist)
	a.Notifier = notify.NewService(a.Users, a.Notifications, persist, logger.WithField("module", "notify")).
		WithPush(a.pushClient)
	a.NotificationWorker = worker.NewNotificationPersistWorker(
		a.MQConn,
		a.Notifications,
		cfg.RabbitMQ.NotificationPersistQueue,
		logger.WithField("module", "worker"),
	)

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("load scheduler timezone %q failed: %w", cfg.Scheduler.Timezone, err)
	}
	a.Location = location
	a.Jobs = jobs.NewSet(jobs.Deps{
		Users:         a.Users,
		HR:            repository.NewHRRepository(a.DB),
		AMC:           repository.NewAMCRepository(a.DB),
		Tenders:       repository.NewTenderRepository(a.DB),
		Notifications: a.Notifications,
		Owners:        a.Notifier,
		Push:          a.pushClient,
		Location:      location,
		Logger:        logger.WithField("module", "jobs"),
	})
	runner, err := jobs.NewRunner(a.Jobs.All(), jobs.RunnerOptions{
		Location: location,
		Locker:   redislock.New(a.Redis),
		LockTTL:  time.Duration(cfg.Scheduler.LockTTLSeconds) * time.Second,
		Metrics:  a.Metrics,
		Logger:   logger.WithField("module", "scheduler"),
	})
	if err != nil {
		return err
	}
	a.Runner = runner
	return nil
}

func (a *App) pushClient() (*notify.PushClient, error) {
	return notify.EnsureInitialized(func() (*notify.PushClient, error) {
		if a.MQConn == nil || a.MQConn.IsClosed() {
			return nil, fmt.Errorf("push gateway connection is closed")
		}
		publisher := rabbitmqClient.NewPublisher(a.MQConn, a.Config.RabbitMQ.PushQueue)
		return notify.NewPushClient(publisher), nil
	})
}

// Start runs the notification consumer and, when enabled, the scheduler.
func (a *App) Start(ctx context.Context) error {
	if err := a.NotificationWorker.Start(ctx); err != nil {
		return fmt.Errorf("start notification worker failed: %w", err)
	}
	if a.Config.Scheduler.Enabled {
		a.Runner.Start()
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Runner != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.Runner.Stop(stopCtx)
		cancel()
	}
	if a.NotificationWorker != nil {
		a.NotificationWorker.Close()
	}
	for _, publisher := range a.publishers {
		if err := publisher.Close(); err != nil {
			closeErr = err
		}
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
