package bootstrap

import (
	"context"
	"log"
	"time"

	"care-connect-be/internal/config"
	"care-connect-be/internal/controller"
	"care-connect-be/internal/pkg/logger"
	"care-connect-be/internal/pkg/serverutils"
	"care-connect-be/internal/repository/cache"
	"care-connect-be/internal/repository/memory"
	"care-connect-be/internal/repository/unitofwork"
	"care-connect-be/internal/service"

	pktNats "care-connect-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ConnectionController controller.IConnectionController

	// Background Services (Exposed for main.go to run)
	ConnectionService service.IConnectionService
	NotificationRelay *service.NotificationRelay
	ExpiryWorker      *service.ExpiryWorker

	Logger logger.ILogger

	closers []func()
}

// NewRepositoryFactory picks the store behind every unit of work. db is
// ignored for the memory driver and may be nil.
func NewRepositoryFactory(cfg *config.Config, db *gorm.DB) unitofwork.RepositoryFactory {
	if cfg.Database.Driver == "memory" {
		log.Printf("[WARN] Using in-memory store, data is lost on restart")
		return memory.NewRepositoryFactory(memory.NewStore())
	}
	return unitofwork.NewRepositoryFactory(db)
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := NewRepositoryFactory(cfg, db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Infrastructure
	// NATS
	var sink service.EventSink
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		sink = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}

	// Redis
	var versions service.VersionStore
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis, version cache disabled: %v", err)
		_ = rdb.Close()
	} else {
		versions = cache.NewVersionCache(rdb, cfg.Engine.VersionCacheTTL)
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}
	cancel()

	// 4. Services
	eventPublisher := service.NewEventPublisher(pubSub, cfg.Engine.EventsTopic)
	connectionService := service.NewConnectionService(
		uowFactory,
		eventPublisher,
		versions,
		memory.NewDedupStore(cfg.Engine.DedupWindow),
		sysLogger,
		cfg.Engine,
	)

	eventLogger := logger.NewIsolatedLogger(cfg.App.EventLogFilePath)
	c.NotificationRelay = service.NewNotificationRelay(pubSub, cfg.Engine.EventsTopic, sink, eventLogger)
	c.ExpiryWorker = service.NewExpiryWorker(connectionService, cfg.Engine.ExpirySweepInterval, sysLogger)
	c.ConnectionService = connectionService

	// 5. Controllers
	c.ConnectionController = controller.NewConnectionController(connectionService, serverutils.NewJwtMiddleware(cfg.App.JwtSecret))

	return c
}

// Close releases broker and cache connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
