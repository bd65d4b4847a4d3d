package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"buswatch/internal/api"
	"buswatch/internal/cache"
	"buswatch/internal/config"
	"buswatch/internal/ingest"
	"buswatch/internal/metrics"
	"buswatch/internal/routes"
	"buswatch/internal/routing"
	"buswatch/internal/tracking"
	"buswatch/internal/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.New()
	if err != nil {
		return err
	}

	var loggerOpts slog.HandlerOptions
	if conf.Env == config.EnvDev {
		loggerOpts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &loggerOpts)
	logger := slog.New(jsonHandler)

	var mcol *metrics.Collector
	if conf.MetricsAddr != "" {
		mcol = metrics.NewCollector()
		metricsSrv := mcol.Serve(conf.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics server is running", "addr", conf.MetricsAddr)
	}
	tm := wrapTrackingMetrics(mcol)

	var redisClient *redis.Client
	if conf.RedisHost != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: net.JoinHostPort(conf.RedisHost, conf.RedisPort)})
	}

	var etaCache tracking.ETACache
	if redisClient != nil {
		etaCache = cache.NewRedisETACache(redisClient, conf.ETACacheTTL)
	} else {
		etaCache = cache.NewMemoryETACache(conf.ETACacheTTL)
	}

	var source tracking.WaypointSource
	if conf.DatabaseURL != "" {
		pg, err := routes.NewPostgresSource(ctx, conf.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		source = pg
	} else {
		source = routes.NewHTTPSource(conf.RoutesAPIURL)
	}

	registry := tracking.NewRegistry(logger, source, tm)
	go registry.StartJanitor(ctx, conf.ChannelGrace)

	provider := routing.NewClient(conf.RoutingURL, routing.ClientOptions{
		Timeout: conf.ProviderTimeout,
		Costing: routing.CostingBus,
	})
	engine := tracking.NewEngine(provider, etaCache, logger, tm, tracking.EngineOptions{
		ThrottleWindow:  conf.ETAThrottleWindow,
		ProviderTimeout: conf.ProviderTimeout,
	})
	broadcaster := tracking.NewBroadcaster(registry, engine, logger, tm)
	subscriptions := tracking.NewSubscriptionManager(registry, logger, tm)

	wsManager := ws.NewManager(ctx, logger, subscriptions)
	go wsManager.Start()

	endpoint := ingest.NewEndpoint(broadcaster)

	if redisClient != nil && conf.RedisPositionsChannel != "" {
		consumer := ingest.NewRedisConsumer(logger, redisClient, conf.RedisPositionsChannel, endpoint)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("redis consumer stopped with error", "error", err)
			}
		}()
	}

	if conf.NATSURL != "" {
		consumer, err := ingest.NewNATSConsumer(logger, conf.NATSURL, conf.NATSSubject, endpoint)
		if err != nil {
			return err
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("nats consumer stopped with error", "error", err)
			}
		}()
	}

	server := api.NewServer(conf, wsManager, endpoint, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	wsManager.Shutdown()
	return nil
}

// wrapTrackingMetrics adapts the Collector to the tracking.Metrics interface.
func wrapTrackingMetrics(c *metrics.Collector) tracking.Metrics {
	if c == nil {
		return nil
	}
	return &trackMetrics{c: c}
}

type trackMetrics struct{ c *metrics.Collector }

func (t *trackMetrics) PositionPublished() { t.c.PositionsPublished.Inc() }
func (t *trackMetrics) PositionDropped()   { t.c.PositionsDropped.Inc() }
func (t *trackMetrics) FanoutSent(n int)   { t.c.FanoutMessages.Add(float64(n)) }
func (t *trackMetrics) ProviderCallObserved(d time.Duration, success bool) {
	t.c.ProviderDuration.Observe(d.Seconds())
	if success {
		t.c.ProviderCalls.WithLabelValues("ok").Inc()
	} else {
		t.c.ProviderCalls.WithLabelValues("error").Inc()
	}
}
func (t *trackMetrics) ThrottleSkipped()  { t.c.ThrottleSkips.Inc() }
func (t *trackMetrics) CacheHit()         { t.c.CacheHits.Inc() }
func (t *trackMetrics) ChannelOpened()    { t.c.ActiveChannels.Inc() }
func (t *trackMetrics) ChannelClosed()    { t.c.ActiveChannels.Dec() }
func (t *trackMetrics) SubscriberJoined() { t.c.Subscribers.Inc() }
func (t *trackMetrics) SubscriberLeft()   { t.c.Subscribers.Dec() }
