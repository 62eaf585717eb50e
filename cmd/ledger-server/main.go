package main

import (
	"context"
	"time"

	"ledger-core/internal/handler"
	"ledger-core/internal/server"
	"ledger-core/internal/server/middleware"
	"ledger-core/internal/service"
	"ledger-core/internal/service/mq"
	"ledger-core/pkg/accounts"
	"ledger-core/pkg/cache"
	"ledger-core/pkg/config"
	"ledger-core/pkg/database"
	"ledger-core/pkg/ledger"
	"ledger-core/pkg/logger"
	"ledger-core/pkg/utils/lock"
	"ledger-core/pkg/validator"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger / Validator
	logger.Init(cfg.App.Env)
	defer logger.Sync()
	validator.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 签名账户
	store, err := accounts.Load(cfg.Ledger)
	if err != nil {
		logger.Fatal("加载签名账户失败", zap.Error(err))
	}
	logger.Info("签名账户已加载", zap.Int("count", store.Len()))

	if !common.IsHexAddress(cfg.Ledger.ContractAddress) {
		logger.Fatal("合约地址无效", zap.String("contract", cfg.Ledger.ContractAddress))
	}
	contractAddr := common.HexToAddress(cfg.Ledger.ContractAddress)

	// 3. 连接节点
	client, err := ledger.Dial(ctx, cfg.Ledger.RpcUrl)
	if err != nil {
		logger.Fatal("连接 RPC 节点失败", zap.String("rpc", cfg.Ledger.RpcUrl), zap.Error(err))
	}
	gateway := ledger.NewGateway(client,
		ledger.WithRateLimit(cfg.Ledger.RpcRateLimit),
		ledger.WithNonceTag(cfg.Ledger.NonceTag),
	)

	// 4. 可选依赖: Redis / PostgreSQL
	var rdb *redis.Client
	if needsRedis(cfg) {
		rdb, err = database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Redis 连接失败", zap.Error(err))
		}
	}

	var db *gorm.DB
	if cfg.DB.Enabled {
		dsn := database.DSN(cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name)
		db, err = database.ConnectPostgres(dsn, cfg.App.Env == "development")
		if err != nil {
			logger.Fatal("数据库连接失败", zap.Error(err))
		}
	}

	// 5. 交易流水线
	pipelineOpts := []ledger.Option{
		ledger.WithConfirmTimeout(cfg.Ledger.ConfirmTimeout),
		ledger.WithPollInterval(cfg.Ledger.PollInterval),
	}
	if cfg.Lock.Backend == "redis" {
		logger.Info("使用 Redis 分布式账户锁")
		// 锁和保留 nonce 必须在同一处共享，否则其他实例会重用超时交易的 nonce
		pipelineOpts = append(pipelineOpts,
			ledger.WithLocker(lock.NewRedisMutex(lock.NewRedisLock(rdb), cfg.Lock.TTL)),
			ledger.WithReservationStore(ledger.NewRedisReservations(rdb, cfg.Lock.ReservationKey)),
		)
	}
	if db != nil {
		pipelineOpts = append(pipelineOpts, ledger.WithJournal(service.NewJournalService(db, cfg.MQ.Topic)))
	}
	pipeline := ledger.NewPipeline(gateway, pipelineOpts...)

	// 6. 消息中继 (本地消息表 -> MQ)
	if db != nil && cfg.MQ.Type != "none" {
		var producer mq.Producer
		if cfg.MQ.Type == "kafka" {
			logger.Info("使用 Kafka 作为消息队列...")
			kafkaProducer := mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.MQ.Topic)
			defer kafkaProducer.Close()
			producer = kafkaProducer
		} else {
			logger.Info("使用 Redis Streams 作为消息队列...")
			producer = mq.NewRedisProducer(rdb)
		}
		go service.NewRelayService(db, producer).Start(ctx)
	}

	// 7. 业务服务与 HTTP 路由
	handlers := server.Handlers{
		Multisig: handler.NewMultisigHandler(service.NewMultisigService(store, pipeline, contractAddr)),
		Product:  handler.NewProductHandler(service.NewProductService(store, pipeline, contractAddr)),
		Account:  handler.NewAccountHandler(service.NewAccountService(store, pipeline)),
	}
	if cfg.Idempotency.Enabled {
		handlers.Idempotency = idempotency(cfg, rdb)
	}
	r := server.NewHTTPRouter(handlers)

	// 8. gRPC (健康检查)
	grpcServer, healthServer := server.NewGRPCServer()

	// 9. 启动应用
	app, err := server.New(server.Config{
		HttpPort: cfg.App.HttpPort,
		GrpcPort: cfg.App.GrpcPort,
	}, r, grpcServer, healthServer)
	if err != nil {
		logger.Fatal("应用启动失败", zap.Error(err))
	}
	app.OnShutdown(cancel)
	app.OnShutdown(client.Close)

	// 运行 (阻塞)
	app.Run()

	// 10. 退出后资源清理
	if db != nil {
		logger.Info("正在关闭数据库连接...")
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	if pending, err := pipeline.Pending(context.Background()); err == nil && len(pending) > 0 {
		logger.Warn("退出时仍有未确认的交易", zap.Int("count", len(pending)))
	}
	logger.Info("系统已退出")
}

func needsRedis(cfg config.Config) bool {
	return cfg.Lock.Backend == "redis" ||
		(cfg.Idempotency.Enabled && cfg.Idempotency.Backend == "redis") ||
		(cfg.DB.Enabled && cfg.MQ.Type == "redis")
}

// idempotency memory 后端只在单实例下有效；redis 后端 L1 内存 + L2 Redis，跨实例共享
func idempotency(cfg config.Config, rdb *redis.Client) gin.HandlerFunc {
	var store cache.Cache = cache.NewMemoryCache(cfg.Idempotency.TTL, 10*time.Minute)
	var locker middleware.Locker = lock.NewKeyedMutex()
	if cfg.Idempotency.Backend == "redis" {
		store = cache.NewMultiLevelCache(store, cache.NewRedisCache(rdb, "idem:"))
		locker = lock.NewRedisMutex(lock.NewRedisLock(rdb), cfg.Lock.TTL)
	}
	return middleware.Idempotency(store, locker, cfg.Idempotency.TTL)
}
