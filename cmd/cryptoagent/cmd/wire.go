package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"cryptoagent/config"
	"cryptoagent/internal/advisory"
	"cryptoagent/internal/advisory/tradingview"
	"cryptoagent/internal/agent"
	"cryptoagent/internal/breaker"
	"cryptoagent/internal/broker/paper"
	"cryptoagent/internal/broker/robinhood"
	"cryptoagent/internal/gateway"
	"cryptoagent/internal/ledger"
	"cryptoagent/internal/marketdata/kraken"
	"cryptoagent/internal/marketdata/synthetic"
	"cryptoagent/internal/metrics"
	"cryptoagent/internal/model"
	"cryptoagent/internal/notification"
	"cryptoagent/internal/store"
	redisstore "cryptoagent/internal/store/redis"
	"cryptoagent/internal/store/sqlite"
	"cryptoagent/internal/strategy"
)

const (
	wsBacklogSize     = 256
	publishBufferSize = 1000
	notifyQueueSize   = 64
	livenessInterval  = 30 * time.Second
)

// runtime holds everything run wires around the agent.
type runtime struct {
	deps    agent.Deps
	server  *metrics.Server
	closers []func() error
	logger  *slog.Logger
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("shutdown", "error", err)
		}
	}
}

// build wires collaborators for cfg. Debug mode swaps every external service
// for its local stand-in.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (rt *runtime, err error) {
	rt = &runtime{logger: log}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(3 * cfg.UpdateInterval)

	onBreaker := func(name string, from, to breaker.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues(name).Inc()
		}
		log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	}
	newBreaker := func(name string) *breaker.CircuitBreaker {
		cb := breaker.New(name, 5, 30*time.Second)
		cb.OnStateChange = onBreaker
		return cb
	}

	market, brk, err := buildExchange(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	advisor, err := buildAdvisor(cfg)
	if err != nil {
		return nil, err
	}

	hub := gateway.NewHub(wsBacklogSize, log)
	hub.OnClientCount = func(n int) { m.WSClients.Set(float64(n)) }
	hub.OnDrop = func(channel string, n int) { m.WSDropped.WithLabelValues(channel).Add(float64(n)) }
	rt.closers = append(rt.closers, func() error { hub.Close(); return nil })
	publishers := []agent.Publisher{
		agent.PublishFunc(func(_ context.Context, channel string, v any) error { return hub.Publish(channel, v) }),
	}

	st, journal, probe, extra, err := buildStore(ctx, cfg, newBreaker("redis"), m, health, log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, st.Close)
	publishers = append(publishers, extra...)
	health.StartLivenessChecker(ctx, probe, livenessInterval)

	notifier := buildNotifier(cfg, m, log)
	rt.closers = append(rt.closers, func() error { notifier.Close(); return nil })

	rt.server = metrics.NewServer(cfg.MetricsAddr, health, reg, log)
	gateway.RegisterRoutes(rt.server, hub)

	brokerCB := newBreaker("broker")
	if _, live := brk.(*robinhood.Client); live {
		cancelled := brokerCB.Ignore
		brokerCB.Ignore = func(err error) bool { return cancelled(err) || robinhood.IsRefusal(err) }
	}

	rt.deps = agent.Deps{
		Market:     breaker.WrapMarketData(market, newBreaker("market")),
		Broker:     breaker.WrapBroker(brk, brokerCB),
		Advisor:    advisor,
		Store:      st,
		Journal:    journal,
		Metrics:    m,
		Health:     health,
		Publishers: publishers,
		Notifier:   notifier,
		Logger:     log,
	}
	return rt, nil
}

func buildExchange(ctx context.Context, cfg config.Config, log *slog.Logger) (model.MarketData, model.Broker, error) {
	if cfg.DebugEnabled {
		log.Warn("debug mode: paper broker and synthetic prices, no real orders")
		feed := synthetic.New(time.Now().UnixNano(), synthetic.WithHistory(2*cfg.Periods.SMASlow))
		brk := paper.New(decimal.NewFromFloat(cfg.PaperBalance), paper.WithLogger(log))
		return feed, brk, nil
	}

	rh := robinhood.New(robinhood.Config{
		Username:   cfg.Credentials.Username,
		Password:   cfg.Credentials.Password,
		TOTPSecret: cfg.Credentials.TOTPSecret,
		Timeout:    cfg.CallTimeout,
	}, log)
	loginCtx, cancel := context.WithTimeout(ctx, 2*cfg.CallTimeout)
	defer cancel()
	if err := rh.Login(loginCtx); err != nil {
		return nil, nil, fmt.Errorf("brokerage login: %w", err)
	}
	return kraken.New(kraken.Config{Timeout: cfg.CallTimeout}), rh, nil
}

func buildAdvisor(cfg config.Config) (model.Advisor, error) {
	buy, _ := strategy.ParseBuy(cfg.Strategies.Buy)
	sell, _ := strategy.ParseSell(cfg.Strategies.Sell)
	if !strategy.NeedsVote(buy, sell) {
		return nil, nil
	}
	if cfg.DebugEnabled {
		return advisory.Neutral{}, nil
	}
	return tradingview.New(tradingview.Config{
		Exchange: cfg.Advisory.Exchange,
		Interval: cfg.Advisory.Interval,
		Timeout:  cfg.CallTimeout,
	})
}

// buildStore opens the configured backend. It also returns the trade journal,
// a liveness probe and any extra report publishers the backend offers.
func buildStore(ctx context.Context, cfg config.Config, cb *breaker.CircuitBreaker, m *metrics.Metrics, health *metrics.HealthStatus, log *slog.Logger) (
	store.Store, ledger.Journal, metrics.Probe, []agent.Publisher, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "sqlite":
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		st, err := sqlite.Open(cfg.Storage.SQLitePath, log)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		probe := func(ctx context.Context) { health.CheckSQLite(ctx, st.DB()) }
		return st, st.Journal(), probe, nil, nil

	case "redis":
		st, err := redisstore.New(ctx, redisstore.Config{
			Addr:      cfg.Storage.RedisAddr,
			Password:  cfg.Storage.RedisPassword,
			DB:        cfg.Storage.RedisDB,
			KeyPrefix: cfg.Storage.KeyPrefix,
		}, cb, log)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		pub := redisstore.NewPublisher(st, publishBufferSize, log)
		pub.OnBuffer = func() { m.BufferedPublishes.Inc() }
		probe := func(ctx context.Context) { health.CheckRedis(ctx, st.Client()) }
		return st, st, probe, []agent.Publisher{pub}, nil

	case "memory":
		log.Warn("memory storage: state is lost on exit")
		return store.NewMemory(), nil, nil, nil, nil
	}
	return nil, nil, nil, nil, errors.New("unknown storage backend " + cfg.Storage.Backend)
}

func buildNotifier(cfg config.Config, m *metrics.Metrics, log *slog.Logger) *notification.Async {
	targets := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.Notify.TelegramToken != "" {
		targets = append(targets, notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.WebhookURL != "" {
		targets = append(targets, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	async := notification.NewAsync(targets, notifyQueueSize, 10*time.Second, log)
	async.OnDrop = func() { m.NotificationsDropped.Inc() }
	return async
}
