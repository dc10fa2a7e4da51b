package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"RollSwap/internal/domain/repository"
	"RollSwap/internal/engine"
	"RollSwap/internal/engine/custody"
	"RollSwap/internal/engine/venue"
	"RollSwap/internal/handler/api"
	mid "RollSwap/internal/middleware"
	internalrepo "RollSwap/internal/repository"
	icache "RollSwap/internal/service/cache"
	"RollSwap/internal/service/venuefeed"
	"RollSwap/internal/usecase"
	pkgcache "RollSwap/pkg/cache"
	pkgch "RollSwap/pkg/clickhouse"
	"RollSwap/pkg/config"
	pkgkafka "RollSwap/pkg/kafka"
	applogger "RollSwap/pkg/logger"
	"RollSwap/pkg/metrics"
	pkgqueue "RollSwap/pkg/queue"
	"RollSwap/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS rollswap",
		"CREATE TABLE IF NOT EXISTS rollswap.settled_trades (" +
			"settled_at DateTime, trade_id String, reserve_id String, epoch UInt64, side String, initiator String, " +
			"amount_in String, amount_out String, refunded_excess String, realized_rate String, " +
			"rollover_fill String, reserve_fill String, curve_fill String, hiya String" +
			") ENGINE=MergeTree ORDER BY (reserve_id, settled_at)",
		"CREATE TABLE IF NOT EXISTS rollswap.error_digests (" +
			"level String, message String, caller String, fields String, count UInt32, " +
			"first_seen DateTime, last_seen DateTime" +
			") ENGINE=MergeTree ORDER BY (last_seen, level)",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideRecorder creates the Prometheus metrics recorder.
func ProvideRecorder() *metrics.Recorder {
	return metrics.New()
}

// ProvideMetrics exposes the recorder as domain metrics.
func ProvideMetrics(r *metrics.Recorder) repository.Metrics {
	return r
}

// ProvideEngineMetrics exposes the recorder as engine metrics.
func ProvideEngineMetrics(r *metrics.Recorder) engine.Metrics {
	return r
}

// ProvideTradeStorage creates ClickHouse storage repository.
func ProvideTradeStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+".settled_trades")
}

// ProvideTradePublisher creates Kafka publisher repository.
func ProvideTradePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaSettlementsHandler registers handler for the settlements topic.
func ProvideKafkaSettlementsHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaSettlementsHandler {
	return usecase.NewKafkaSettlementsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideVenueStream creates the venue indexer WebSocket stream.
func ProvideVenueStream(cfg *config.Config) repository.VenueStream {
	return venuefeed.New(
		cfg.VenueFeed.APIKey,
		cfg.VenueFeed.WebSocketURL,
		cfg.VenueFeed.RESTURL,
		cfg.VenueFeed.Venues,
		cfg.VenueFeed.ReconnectDelay,
		cfg.VenueFeed.PingInterval,
	)
}

// ProvideMirror creates the venue pool mirror.
func ProvideMirror() *venuefeed.Mirror {
	return venuefeed.NewMirror()
}

// ProvideFeedCollector creates the venue feed collector use case.
func ProvideFeedCollector(
	stream repository.VenueStream,
	mirror *venuefeed.Mirror,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.FeedCollector {
	proc := usecase.NewFeedProcessor(mirror, m)
	maxRPS := cfg.VenueFeed.MaxRPS
	if maxRPS <= 0 {
		maxRPS = 50
	}
	bufSize := cfg.VenueFeed.BufferSize
	if bufSize <= 0 {
		bufSize = 2000
	}
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(maxRPS),
		mid.WithBufferSize(bufSize),
	)
	return usecase.NewFeedCollector(stream, proc, m, pipe)
}

// ProvideVenue creates the settlement venue pool.
func ProvideVenue(cfg *config.Config) (venue.Venue, error) {
	raSeed, err := decimal.NewFromString(cfg.Venue.RASeed)
	if err != nil {
		return nil, fmt.Errorf("parse venue ra_seed: %w", err)
	}
	ctSeed, err := decimal.NewFromString(cfg.Venue.CTSeed)
	if err != nil {
		return nil, fmt.Errorf("parse venue ct_seed: %w", err)
	}
	return venue.NewConstantProduct(cfg.Venue.Name, cfg.Venue.RAAsset, raSeed, cfg.Venue.CTAsset, ctSeed), nil
}

// ProvideCustody creates the in-memory custody book.
func ProvideCustody(cfg *config.Config) engine.Custody {
	return custody.NewBook(cfg.Venue.Supports.Permits)
}

// ProvideEngine builds the trading engine and seeds configured reserves.
func ProvideEngine(
	cfg *config.Config,
	v venue.Venue,
	cust engine.Custody,
	mirror *venuefeed.Mirror,
	log *applogger.Logger,
	m engine.Metrics,
) (*engine.Engine, error) {
	ecfg := engine.Config{MaxIterations: cfg.Engine.MaxIterations}
	if cfg.Engine.Epsilon != "" {
		eps, err := decimal.NewFromString(cfg.Engine.Epsilon)
		if err != nil {
			return nil, fmt.Errorf("parse engine epsilon: %w", err)
		}
		ecfg.Epsilon = eps
	}
	if cfg.Engine.OneMinusTFloor != "" {
		floor, err := decimal.NewFromString(cfg.Engine.OneMinusTFloor)
		if err != nil {
			return nil, fmt.Errorf("parse engine one_minus_t_floor: %w", err)
		}
		ecfg.OneMinusTFloor = floor
	}

	vaultSink := custody.NewProfitLedger()
	stabilitySink := custody.NewProfitLedger()
	eng := engine.New(ecfg, v, cust, vaultSink, stabilitySink, mirror, log, m)

	for _, r := range cfg.Reserves {
		decay, err := decimal.NewFromString(r.DecayRateDays)
		if err != nil {
			return nil, fmt.Errorf("parse reserve %s decay_rate_days: %w", r.ID, err)
		}
		cap := decimal.NewFromInt(100)
		if r.SellPressureCap != "" {
			if cap, err = decimal.NewFromString(r.SellPressureCap); err != nil {
				return nil, fmt.Errorf("parse reserve %s sell_pressure_cap: %w", r.ID, err)
			}
		}
		if err := eng.CreateReserve(r.ID, decay, cap, r.GradualSaleDisabled); err != nil {
			return nil, fmt.Errorf("create reserve %s: %w", r.ID, err)
		}
	}
	return eng, nil
}

// ProvideRedisClient creates a shared Redis client, or nil when disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache creates the preview cache: Redis when enabled, in-process TTL otherwise.
func ProvideCache(cfg *config.Config) icache.BytesCache {
	if cfg.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideQueryCache creates the trade history query cache. With Redis it is
// layered memory over Redis, otherwise memory only.
func ProvideQueryCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(time.Minute)), nil
	}
	host, port, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse redis addr: %w", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("parse redis port: %w", err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(p),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("rollswap:query"),
		pkgcache.WithRedisPool(20, 5, 30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(4096)), nil
}

// ProvideTradeRecorder creates the settled trade recorder use case.
func ProvideTradeRecorder(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TradeRecorder {
	return usecase.NewTradeRecorder(pub, store, m, cfg.Backend.Type)
}

// ProvideQueue creates the Redis recording queue, or nil when disabled.
func ProvideQueue(
	cfg *config.Config,
	log *applogger.Logger,
	client *redis.Client,
	recorder *usecase.TradeRecorder,
	chClient *pkgch.Client,
) *pkgqueue.RedisQueue {
	if client == nil || !cfg.Redis.Queue.Enabled {
		return nil
	}
	q := pkgqueue.NewRedisQueue(log, &pkgqueue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}, client, pkgqueue.ModeProducerConsumer)
	q.RegisterJob(usecase.NewRecordTradeJob(recorder))
	q.RegisterJob(usecase.NewErrorDigestJob(chClient.DB(), cfg.ClickHouse.Database+".error_digests"))
	return q
}

// ProvideTradingService creates the trading use case.
func ProvideTradingService(
	eng *engine.Engine,
	recorder *usecase.TradeRecorder,
	q *pkgqueue.RedisQueue,
	store repository.Storage,
	log *applogger.Logger,
) *usecase.TradingService {
	var qs pkgqueue.QueueService
	if q != nil {
		qs = q
	}
	return usecase.NewTradingService(eng, recorder, qs, store, log)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.FeedCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSettlementsHandler,
	chClient *pkgch.Client,
	q *pkgqueue.RedisQueue,
	trading *usecase.TradingService,
	recorder *usecase.TradeRecorder,
	cache icache.BytesCache,
	queryCache pkgcache.Service,
	log *applogger.Logger,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	if q != nil {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 200,
			Topic:          usecase.ErrorDigestTopic,
			Publisher:      q,
		})
	}
	app := server.New(cfg, collector, consumer, kh, chClient, q)
	app.Recorder = recorder

	h := api.NewTradesEchoHandler(log, trading)
	h.SetCache(cache)
	h.SetQueryCache(queryCache)
	app.SetHTTPHandler(h)
	return app
}
