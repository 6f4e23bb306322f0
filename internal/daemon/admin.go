package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostSnapshot is the payload for the admin surface's /status route,
// supplementing the wire-protocol Status/CacheStats with host-level figures
// a fleet operator would check alongside package counts (SPEC_FULL.md
// Domain Stack: "gopsutil ... a host-status snapshot under the admin
// surface's /status route").
type hostSnapshot struct {
	Uptime         uint64  `json:"uptime_seconds"`
	LoadPercent    float64 `json:"memory_used_percent"`
	KernelVersion  string  `json:"kernel_version"`
	ResultCache    Stats   `json:"result_cache"`
	RequestsByKind map[string]int64 `json:"requests_by_kind"`
}

// NewAdminRouter builds the loopback-only admin HTTP mux: /healthz for a
// trivial liveness probe, /metrics for Prometheus scraping of m's registry,
// and /status for a host + cache snapshot. This mux is never exposed on the
// Unix-socket protocol path; it is a separate, operator-facing surface
// (SPEC_FULL.md Ambient Stack / Domain Stack).
func NewAdminRouter(s *Server, m *Metrics) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		snap := hostSnapshot{ResultCache: s.resultCache.Stats()}
		if m != nil {
			snap.RequestsByKind = m.Snapshot()
		}
		if info, err := host.InfoWithContext(r.Context()); err == nil {
			snap.Uptime = info.Uptime
			snap.KernelVersion = info.KernelVersion
		}
		if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
			snap.LoadPercent = vm.UsedPercent
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})

	return r
}

// ListenAndServeAdmin starts the admin mux on addr until the server shuts
// down, returning once the listener stops (either from an error or from the
// caller cancelling via srv.Close()).
func ListenAndServeAdmin(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
