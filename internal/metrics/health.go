package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the agent's health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedOK        bool      `json:"feed_ok"`
	BrokerOK      bool      `json:"broker_ok"`
	TradingLocked bool      `json:"trading_locked"`
	LastCycleTime time.Time `json:"last_cycle_time"`
	Instruments   []string  `json:"instruments"`

	// Liveness probe results
	StoreOK        bool      `json:"store_ok"`
	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	// staleAfter marks the agent degraded when no cycle finished for this long.
	staleAfter time.Duration
	now        func() time.Time
}

// NewHealthStatus returns a health status that reports degraded when no cycle
// has completed within staleAfter. Zero disables the check.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		StoreOK:    true,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (h *HealthStatus) SetFeedOK(v bool) {
	h.mu.Lock()
	h.FeedOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetBrokerOK(v bool) {
	h.mu.Lock()
	h.BrokerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetInstruments(pairs []string) {
	h.mu.Lock()
	h.Instruments = pairs
	h.mu.Unlock()
}

// RecordCycle stores the outcome of a completed cycle.
func (h *HealthStatus) RecordCycle(at time.Time, locked bool) {
	h.mu.Lock()
	h.LastCycleTime = at
	h.TradingLocked = locked
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	h.recordProbe(err, time.Since(start))
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	h.recordProbe(err, time.Since(start))
}

func (h *HealthStatus) recordProbe(err error, latency time.Duration) {
	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// Probe checks a store dependency.
type Probe func(ctx context.Context)

// StartLivenessChecker runs probe periodically until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, probe Probe, interval time.Duration) {
	if probe == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				probe(probeCtx)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	overallStatus := "healthy"
	httpCode := http.StatusOK

	stale := h.staleAfter > 0 && (h.LastCycleTime.IsZero() || now.Sub(h.LastCycleTime) > h.staleAfter)
	if !h.FeedOK || !h.BrokerOK || !h.StoreOK || stale {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedOK && !h.StoreOK {
		overallStatus = "unhealthy"
	}

	cycleAge := ""
	if !h.LastCycleTime.IsZero() {
		cycleAge = now.Sub(h.LastCycleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string   `json:"status"`
		Uptime         string   `json:"uptime"`
		FeedOK         bool     `json:"feed_ok"`
		BrokerOK       bool     `json:"broker_ok"`
		TradingLocked  bool     `json:"trading_locked"`
		LastCycleTime  string   `json:"last_cycle_time"`
		CycleAge       string   `json:"cycle_age"`
		StoreOK        bool     `json:"store_ok"`
		StoreLatencyMs float64  `json:"store_latency_ms"`
		Instruments    []string `json:"instruments"`
		LastCheckAt    string   `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         now.Sub(h.StartedAt).Round(time.Second).String(),
		FeedOK:         h.FeedOK,
		BrokerOK:       h.BrokerOK,
		TradingLocked:  h.TradingLocked,
		LastCycleTime:  h.LastCycleTime.Format(time.RFC3339),
		CycleAge:       cycleAge,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		Instruments:    h.Instruments,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
