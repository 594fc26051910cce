// Command olympus runs the supervision tree process: it loads
// configuration, constructs the three gods (hestia, hermes, themis)
// under the zeus root supervisor, starts the Prometheus exporter, and
// drives heartbeat surveillance until signalled to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/deliveryhero/asya/olympus/internal/actor"
	"github.com/deliveryhero/asya/olympus/internal/cache"
	"github.com/deliveryhero/asya/olympus/internal/config"
	"github.com/deliveryhero/asya/olympus/internal/durable"
	"github.com/deliveryhero/asya/olympus/internal/fleet"
	"github.com/deliveryhero/asya/olympus/internal/flowcontrol"
	"github.com/deliveryhero/asya/olympus/internal/gods"
	"github.com/deliveryhero/asya/olympus/internal/kvstore"
	"github.com/deliveryhero/asya/olympus/internal/metrics"
	"github.com/deliveryhero/asya/olympus/internal/supervisor"
	"github.com/deliveryhero/asya/olympus/internal/syncer"
	"github.com/deliveryhero/asya/olympus/internal/writebuffer"
)

func main() {
	configPath := flag.String("config", "olympus.yaml", "path to the YAML configuration file")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(2)
	}
	cfg := cfgMgr.Current()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if err := cfgMgr.Watch(watchCtx, func(err error) {
		log.Warn("configuration reload failed", "error", err)
	}); err != nil {
		log.Warn("configuration hot-reload disabled", "error", err)
	}

	promReg := prometheus.NewRegistry()
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.RetentionHours = cfg.MetricsRetentionHours
	reg := metrics.NewRegistry(metricsCfg, promReg)

	if cfg.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.PrometheusPort), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("prometheus server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	supCfg := supervisor.DefaultConfig()
	supCfg.MaxRestarts = cfg.MaxRestarts
	supCfg.RestartWindow = time.Duration(cfg.RestartWindowSeconds) * time.Second
	supCfg.HeartbeatTimeout = time.Duration(cfg.HeartbeatTimeoutMs) * time.Millisecond
	supCfg.GracefulShutdownTimeout = time.Duration(cfg.GracefulShutdownTimeoutSeconds) * time.Second
	supCfg.EmergencyShutdownTimeout = time.Duration(cfg.EmergencyShutdownTimeoutSeconds) * time.Second
	supCfg.TrinityNames = []string{"hestia", "hermes", "themis"}

	sink := &metricsSink{reg: reg}
	sup := supervisor.New("zeus", supCfg, sink, log)

	sup.OnRootEscalation(func(name string, err error) {
		log.Error("escalation reached root, shutting down", "actor", name, "error", err)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), supCfg.EmergencyShutdownTimeout)
		defer cancel()
		sup.Shutdown(shutdownCtx, "root escalation: "+name)
		os.Exit(1)
	})

	l1 := cache.New(cache.Config{Capacity: 10000, Policy: cache.LRU})

	var l2 kvstore.Store
	if redisClient := newRedisClientOrNil(log); redisClient != nil {
		l2 = kvstore.NewRedisStore(redisClient)
	} else {
		l2 = kvstore.NewRedisStore(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
	}

	l3 := durable.NewMemoryStore()

	buf := writebuffer.New(writebuffer.DefaultConfig(), l2, l3, log)
	if notifier := newFlushNotifierOrNil(ctx, log); notifier != nil {
		buf.SetFlushNotifier(notifier)
	}
	buf.Start(ctx)

	sy := syncer.New(syncer.Config{DefaultResolution: syncer.LastWriteWins}, l2, l3)

	flowCtl := flowcontrol.New(flowcontrol.Config{
		RPS: cfg.GlobalRateLimitRPS, Burst: cfg.GlobalRateLimitBurst, BaseDelay: 50 * time.Millisecond,
	}, func() float64 {
		sig := buf.Signal()
		return sig.Level
	})

	fleetInst := fleet.New(fleet.DefaultConfig(), nil, log)

	actorCfg := actor.DefaultConfig()

	if err := sup.Register("hestia", "zeus", supervisor.OneForOne, func() actor.Handler {
		return gods.NewHestia(l1, l2, l3, buf, sy, reg, log)
	}, actorCfg); err != nil {
		log.Error("failed to register hestia", "error", err)
		os.Exit(1)
	}
	if err := sup.Register("hermes", "zeus", supervisor.OneForOne, func() actor.Handler {
		return gods.NewHermes(fleetInst, flowCtl, reg, log)
	}, actorCfg); err != nil {
		log.Error("failed to register hermes", "error", err)
		os.Exit(1)
	}
	if err := sup.Register("themis", "zeus", supervisor.OneForOne, func() actor.Handler {
		return gods.NewThemis(reg, log)
	}, actorCfg); err != nil {
		log.Error("failed to register themis", "error", err)
		os.Exit(1)
	}

	for _, name := range []string{"hestia", "hermes", "themis"} {
		if err := sup.Start(ctx, name); err != nil {
			log.Error("failed to start god", "actor", name, "error", err)
			os.Exit(1)
		}
	}

	heartbeatTicker := time.NewTicker(time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond)
	defer heartbeatTicker.Stop()
	metricsTicker := time.NewTicker(metricsCfg.TickInterval)
	defer metricsTicker.Stop()

	log.Info("olympus started", "environment", cfg.Environment)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), supCfg.GracefulShutdownTimeout)
			sup.Shutdown(shutdownCtx, "signal")
			buf.Stop(shutdownCtx, supCfg.EmergencyShutdownTimeout)
			cancel()
			return
		case now := <-heartbeatTicker.C:
			sup.CheckHeartbeats(now)
		case <-metricsTicker.C:
			for _, alert := range reg.Tick() {
				log.Warn("alert raised", "name", alert.Name, "severity", alert.Severity, "value", alert.Value)
			}
		}
	}
}

// metricsSink adapts supervisor.EventSink onto the metrics registry so
// restarts/dead declarations feed olympus_restarts_total and friends.
type metricsSink struct {
	reg *metrics.Registry
}

func (m *metricsSink) OnRestarted(name string, attempt int) { m.reg.RecordRestart(name) }
func (m *metricsSink) OnDead(name string, reason string)    { m.reg.SetActorStatus(name, "dead") }
func (m *metricsSink) OnEscalated(name string, reason string) {
	m.reg.SetActorStatus(name, "escalated")
}
func (m *metricsSink) OnHeartbeatLost(name string) { m.reg.SetActorStatus(name, "heartbeat_lost") }

// newRedisClientOrNil attempts to build a client only if REDIS_ADDR is
// set, so a developer running without Redis still gets a usable
// (if unreachable) client rather than a nil Store.
func newRedisClientOrNil(log *slog.Logger) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

// newFlushNotifierOrNil builds the write buffer's external flush
// signal transport, selected by OLYMPUS_FLUSH_TRANSPORT the same way
// the teacher's gateway picks RabbitMQ vs SQS per deployment. Absent
// the variable, the buffer relies on its ticker and local Flush calls
// alone.
func newFlushNotifierOrNil(ctx context.Context, log *slog.Logger) writebuffer.FlushNotifier {
	switch os.Getenv("OLYMPUS_FLUSH_TRANSPORT") {
	case "rabbitmq":
		url := os.Getenv("OLYMPUS_FLUSH_RABBITMQ_URL")
		if url == "" {
			return nil
		}
		n, err := writebuffer.NewRabbitMQFlushNotifier(url, "olympus.hestia.buffer.flush", log)
		if err != nil {
			log.Warn("rabbitmq flush notifier unavailable", "error", err)
			return nil
		}
		return n
	case "sqs":
		queueURL := os.Getenv("OLYMPUS_FLUSH_SQS_QUEUE_URL")
		if queueURL == "" {
			return nil
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Warn("sqs flush notifier unavailable", "error", err)
			return nil
		}
		return writebuffer.NewSQSFlushNotifier(sqs.NewFromConfig(awsCfg), queueURL, log)
	default:
		return nil
	}
}
