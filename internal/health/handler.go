package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"lv-tradedesk/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = time.Second

// Pinger is the database dependency checked by readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db        Pinger
	pool      *pgxpool.Pool
	startedAt time.Time
	now       func() time.Time
}

// NewHandler reports pool statistics in diagnostics when pool is non-nil.
func NewHandler(db Pinger, pool *pgxpool.Pool, startedAt time.Time) *Handler {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	return &Handler{db: db, pool: pool, startedAt: startedAt.UTC(), now: func() time.Time { return time.Now().UTC() }}
}

type databaseStatus struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type response struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	UptimeSec int64          `json:"uptime_sec"`
	Database  databaseStatus `json:"database"`
}

type poolStatus struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

type diagnostics struct {
	response
	GoVersion  string      `json:"go_version"`
	Goroutines int         `json:"goroutines"`
	HeapBytes  uint64      `json:"heap_alloc_bytes"`
	NumGC      uint32      `json:"num_gc"`
	Pool       *poolStatus `json:"pool,omitempty"`
}

func (h *Handler) check(ctx context.Context) (response, int) {
	now := h.now()
	resp := response{Status: "ok", Timestamp: now, UptimeSec: int64(now.Sub(h.startedAt).Seconds())}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := h.db.Ping(pingCtx)
	cancel()
	resp.Database.PingMs = time.Since(start).Milliseconds()
	if err != nil {
		resp.Status = "degraded"
		resp.Database.Error = err.Error()
		return resp, http.StatusServiceUnavailable
	}
	resp.Database.Reachable = true
	return resp, http.StatusOK
}

// Ready answers /health: the process is up and the database answers a ping.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp, status := h.check(r.Context())
	httputil.WriteJSON(w, status, resp)
}

// Diagnostics adds runtime and pool statistics. It is mounted behind the
// internal token.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	resp, status := h.check(r.Context())
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	d := diagnostics{
		response:   resp,
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
	}
	if h.pool != nil {
		st := h.pool.Stat()
		d.Pool = &poolStatus{
			TotalConns:    st.TotalConns(),
			IdleConns:     st.IdleConns(),
			AcquiredConns: st.AcquiredConns(),
			MaxConns:      st.MaxConns(),
			AcquireCount:  st.AcquireCount(),
		}
	}
	httputil.WriteJSON(w, status, d)
}
