package api

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/obsgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/obsgate/internal/rpc"
)

// MetricsSource supplies gateway figures for GET /metrics. Nil fields are
// left out of the report.
type MetricsSource struct {
	MQTT func() mqtt.Stats

	// DeviceCounts returns (devices, triggers). It is called per request
	// and must hand any gateway state access to the reactor itself.
	DeviceCounts func(ctx context.Context) (int, int, error)

	// Telemetry returns (queued points, failed batches) of the value sink.
	Telemetry func() (uint64, uint64)

	DB *sql.DB
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                 `json:"timestamp"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Runtime       RuntimeMetrics         `json:"runtime"`
	WebSocket     WSMetrics              `json:"websocket"`
	RPC           map[string]CallMetrics `json:"rpc"`
	MQTT          *MQTTMetrics           `json:"mqtt,omitempty"`
	Gateway       *GatewayMetrics        `json:"gateway,omitempty"`
	Telemetry     *TelemetryMetrics      `json:"telemetry,omitempty"`
	Database      *DatabaseMetrics       `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedFrames    uint64 `json:"dropped_frames"`
}

// CallMetrics counts the calls of one RPC method and their faults by code.
type CallMetrics struct {
	Calls  uint64              `json:"calls"`
	Faults map[rpc.Code]uint64 `json:"faults,omitempty"`
}

// MQTTMetrics contains device network statistics.
type MQTTMetrics struct {
	Connected       bool   `json:"connected"`
	UptimeSeconds   int64  `json:"uptime_seconds,omitempty"`
	Reconnects      uint64 `json:"reconnects"`
	Received        uint64 `json:"received"`
	HandlerFailures uint64 `json:"handler_failures"`
	Subscriptions   int    `json:"subscriptions"`
}

// TelemetryMetrics contains value sink counters.
type TelemetryMetrics struct {
	QueuedPoints uint64 `json:"queued_points"`
	FailedWrites uint64 `json:"failed_writes"`
}

// GatewayMetrics contains live registry figures.
type GatewayMetrics struct {
	Devices  int `json:"devices"`
	Triggers int `json:"triggers"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime and gateway metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedFrames:    s.hub.Dropped(),
		},
		RPC: s.calls.snapshot(),
	}
	if started := s.started(); !started.IsZero() {
		metrics.UptimeSeconds = int64(time.Since(started).Seconds())
	}

	if s.metrics.MQTT != nil {
		st := s.metrics.MQTT()
		metrics.MQTT = &MQTTMetrics{
			Connected:       st.Connected,
			Reconnects:      st.Reconnects,
			Received:        st.Received,
			HandlerFailures: st.HandlerFailures,
			Subscriptions:   st.Subscriptions,
		}
		if !st.ConnectedSince.IsZero() {
			metrics.MQTT.UptimeSeconds = int64(time.Since(st.ConnectedSince).Seconds())
		}
	}

	if s.metrics.DeviceCounts != nil {
		devices, triggers, err := s.metrics.DeviceCounts(r.Context())
		if err != nil {
			s.logger.Warn("collecting gateway metrics failed", "error", err)
		} else {
			metrics.Gateway = &GatewayMetrics{Devices: devices, Triggers: triggers}
		}
	}

	if s.metrics.Telemetry != nil {
		queued, failed := s.metrics.Telemetry()
		metrics.Telemetry = &TelemetryMetrics{QueuedPoints: queued, FailedWrites: failed}
	}

	if s.metrics.DB != nil {
		dbStats := s.metrics.DB.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
