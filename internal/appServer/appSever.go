package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/tourbooker/config"
	"github.com/ds124wfegd/tourbooker/internal/database"
	"github.com/ds124wfegd/tourbooker/internal/database/memory"
	repository "github.com/ds124wfegd/tourbooker/internal/database/postgres"
	"github.com/ds124wfegd/tourbooker/internal/entity"
	"github.com/ds124wfegd/tourbooker/internal/service"
	"github.com/ds124wfegd/tourbooker/internal/transport"
	"github.com/ds124wfegd/tourbooker/internal/worker"
	"github.com/ds124wfegd/tourbooker/pkg/kafka"
	"github.com/ds124wfegd/tourbooker/pkg/postgres"
	"github.com/ds124wfegd/tourbooker/pkg/queue"
	"github.com/ds124wfegd/tourbooker/pkg/redis"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func setupLogger(cfg *config.ServerConfig) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// openStore returns the repositories and a function releasing their resources.
func openStore(ctx context.Context, cfg *config.Config) (*database.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		logrus.Warn("Using in-memory storage, data is lost on restart")
		store, _ := memory.NewStore()
		return store, func() {}, nil
	case "", "postgres":
		db, err := postgres.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewStore(db), func() { db.Close() }, nil
	}
	return nil, nil, errors.New("unknown storage driver: " + cfg.Storage.Driver)
}

// queueStatus reports queue depths on /health when the queue is enabled.
func queueStatus(q *queue.RedisQueue, dlq *queue.DefaultDLQHandler) func(context.Context) map[string]interface{} {
	if q == nil {
		return nil
	}
	return func(ctx context.Context) map[string]interface{} {
		out := map[string]interface{}{}
		if stats, err := q.GetQueueStats(ctx); err == nil {
			out["queue"] = stats
		} else {
			out["queue"] = "unavailable"
		}
		if stats, err := dlq.GetDLQStats(ctx); err == nil {
			out["dead_letters"] = stats
		}
		return out
	}
}

func NewServer(cfg *config.Config) {
	setupLogger(&cfg.Server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closeStore()

	// Redis backs the distributed lock and the task queue
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to connect to Redis: %v. Continuing without it...", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			logrus.Info("Redis connected")
		}
	}

	var locker service.Locker = service.NewKeyedMutex()
	if cfg.Lock.Backend == "redis" {
		if redisClient == nil {
			logrus.Fatal("lock.backend is redis but Redis is not available")
		}
		locker = redis.NewLocker(redisClient, cfg.Lock.Prefix, cfg.Lock.TTL, cfg.Lock.RetryInterval)
		logrus.Info("Using Redis lock for admissions")
	}

	var redisQueue *queue.RedisQueue
	var dlqHandler *queue.DefaultDLQHandler
	var taskPublisher service.TaskPublisher
	if cfg.Queue.Enabled && redisClient != nil {
		retryManager := queue.NewRetryManager(cfg.Queue.MaxRetries, cfg.Queue.RetryDelay, queue.WithRetryable(entity.IsRetryable))
		dlqHandler = queue.NewDefaultDLQHandler(redisClient, cfg.Queue.DLQKey, cfg.Queue.Name)
		redisQueue = queue.NewRedisQueue(redisClient, &queue.RedisQueueConfig{
			Name:         cfg.Queue.Name,
			MaxRetries:   cfg.Queue.MaxRetries,
			BaseDelay:    cfg.Queue.RetryDelay,
			PollInterval: cfg.Queue.PollInterval,
		}, retryManager, dlqHandler)
		defer redisQueue.Close()

		taskPublisher = service.NewQueueAdapter(redisQueue)
		logrus.Info("Redis queue initialized")
	}

	var events service.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
		defer producer.Close()
		events = service.NewKafkaEventPublisher(producer)
	}

	// Initialize services
	serviceCfg := service.Config{
		AllowLateCancellation: cfg.Booking.AllowLateCancellation,
		SettleLagDays:         cfg.Booking.SettleLagDays,
		MaxPartySize:          cfg.Booking.MaxPartySize,
	}
	availabilityService := service.NewAvailabilityService(store, locker)
	bookingService := service.NewBookingService(store, locker, taskPublisher, events, serviceCfg)
	itineraryService := service.NewItineraryService(store, locker, serviceCfg)

	// Start queue consumer
	if redisQueue != nil {
		taskHandler := worker.NewTaskHandler(bookingService)
		if err := redisQueue.Subscribe(ctx, taskHandler.HandleTask); err != nil {
			logrus.Errorf("Queue subscriber error: %v", err)
		} else {
			logrus.Info("Queue subscriber started")
		}

		// settlement tasks dead-lettered during a store outage get another chance
		if n, err := worker.RequeueSettlements(ctx, dlqHandler, 500); err != nil {
			logrus.WithError(err).Warn("Failed to recover dead-lettered settlement tasks")
		} else if n > 0 {
			logrus.WithField("count", n).Info("Requeued dead-lettered settlement tasks")
		}
	}

	// Settlement sweep, the fallback for lost or disabled queue tasks
	if cfg.Worker.Enabled {
		settlementWorker := worker.NewSettlementWorker(bookingService, cfg.Worker.Interval, cfg.Worker.BatchSize)
		go settlementWorker.Start(ctx)
		logrus.Info("Settlement worker started")
	}

	// Initialize handlers
	handlers := transport.Handlers{
		Booking:   transport.NewBookingHandler(bookingService, availabilityService),
		Guide:     transport.NewGuideHandler(availabilityService),
		Itinerary: transport.NewItineraryHandler(itineraryService),
	}

	if cfg.Server.Mode == "release" || cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.InitRoutes(handlers, transport.RouterConfig{
		JWTSecret:      cfg.JWT.Secret,
		RequestTimeout: cfg.Server.RequestTimeout,
		AppVersion:     cfg.Server.AppVersion,
		Status:         queueStatus(redisQueue, dlqHandler),
	})

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("port", cfg.Server.Port).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
