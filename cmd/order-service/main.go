// cmd/order-service/main.go
package main

import (
	"context"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"nexus-order/internal/pkg/bootstrap"
	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/pkg/metrics"
	"nexus-order/internal/pkg/mq"
	"nexus-order/internal/pkg/redis"
	"nexus-order/internal/service/order/application"
	"nexus-order/internal/service/order/domain"
	"nexus-order/internal/service/order/domain/port"
	"nexus-order/internal/service/order/infrastructure"
	"nexus-order/internal/service/order/infrastructure/adapter"
	"nexus-order/internal/service/order/infrastructure/rule"
	"nexus-order/internal/service/order/interfaces"
	"nexus-order/internal/zookeeper"
)

// eventBus 是事件总线需要同时提供的出站与入站能力
type eventBus interface {
	port.EventPublisher
	port.EventSubscriber
}

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := bootstrap.Init()
	ctx := context.Background()

	if err := run(ctx, cfg); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("Order service exited with error")
	}
}

func run(ctx context.Context, cfg *bootstrap.Config) error {
	var closers []func(context.Context) error

	// 1. 订单存储
	repo, closeRepo, err := buildRepository(cfg)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	// 2. 快照缓存（Redis 同时可用作事件总线）
	redisClient, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Infra.Redis.Addr,
		Password: cfg.Infra.Redis.Password,
		DB:       cfg.Infra.Redis.DB,
	})
	if err != nil {
		return err
	}
	closers = append(closers, func(context.Context) error { return redisClient.Close() })
	snapshots := adapter.NewSnapshotRedisAdapter(redisClient, cfg.Order.SnapshotTTL)

	// 3. 事件总线
	bus, closeBus := buildEventBus(cfg, redisClient)
	if closeBus != nil {
		closers = append(closers, closeBus)
	}

	// 4. 订单锁
	locker, closeLocker, err := buildLocker(cfg)
	if err != nil {
		return err
	}
	if closeLocker != nil {
		closers = append(closers, closeLocker)
	}

	// 5. 更新准入策略
	policy, err := rule.NewCELUpdatePolicy(cfg.Order.UpdatePolicy)
	if err != nil {
		return err
	}

	svc := application.NewOrderApplicationService(
		repo,
		snapshots,
		bus,
		locker,
		policy,
		metrics.NewOrderMetrics(nil),
		otel.Tracer(cfg.App.Name),
	)

	// 6. 事件监听
	bus.Subscribe(domain.TopicPaymentStatus, interfaces.NewPaymentStatusHandler(svc))
	if cfg.Order.BusDriver == "kafka" && cfg.Infra.Kafka.DeadLetterTopic != "" {
		bus.Subscribe(cfg.Infra.Kafka.DeadLetterTopic, interfaces.NewDeadLetterHandler())
	}

	handler := interfaces.NewOrderHandler(svc, nil)
	return bootstrap.StartService(ctx, bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Workers: []bootstrap.Worker{bus},
		Closers: closers,
	})
}

func buildRepository(cfg *bootstrap.Config) (domain.OrderRepository, func(context.Context) error, error) {
	if cfg.Order.StoreDriver == "memory" {
		logger.Ctx(context.Background()).Warn().Msg("Using in-memory order store, data is lost on restart")
		return infrastructure.NewMemoryOrderRepository(), nil, nil
	}

	db, err := infrastructure.OpenMySQL(infrastructure.MySQLOptions{
		DSN:          cfg.Infra.MySQL.DSN,
		MaxOpenConns: cfg.Infra.MySQL.MaxOpenConns,
		MaxIdleConns: cfg.Infra.MySQL.MaxIdleConns,
		AutoMigrate:  cfg.Infra.MySQL.AutoMigrate,
	})
	if err != nil {
		return nil, nil, err
	}
	return infrastructure.NewGormOrderRepository(db), closeDB(db), nil
}

func closeDB(db *gorm.DB) func(context.Context) error {
	return func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

func buildEventBus(cfg *bootstrap.Config, redisClient *goredis.Client) (eventBus, func(context.Context) error) {
	if cfg.Order.BusDriver == "redis" {
		return adapter.NewRedisEventBus(redisClient), nil
	}
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers)
	bus := adapter.NewKafkaEventBus(writer, cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.GroupID, cfg.Infra.Kafka.DeadLetterTopic)
	return bus, func(context.Context) error { return writer.Close() }
}

func buildLocker(cfg *bootstrap.Config) (port.OrderLocker, func(context.Context) error, error) {
	if !cfg.Infra.Zookeeper.Enabled {
		return adapter.NewLocalOrderLocker(), nil, nil
	}
	conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize zookeeper locker")
	}
	return adapter.NewZookeeperOrderLocker(conn, cfg.Infra.Zookeeper.LockTimeout), closeZK(conn), nil
}

func closeZK(conn *zk.Conn) func(context.Context) error {
	return func(context.Context) error {
		conn.Close()
		return nil
	}
}
