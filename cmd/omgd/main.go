// Command omgd is the long-running background daemon: it keeps the Package
// Engine warm, serves the Unix-socket wire protocol (§4.2), and exposes a
// loopback-only HTTP admin surface for health/metrics/status.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PyRo1121/omg-sub002/internal/daemon"
	"github.com/PyRo1121/omg-sub002/internal/engine"
	"github.com/PyRo1121/omg-sub002/internal/license"
	"github.com/PyRo1121/omg-sub002/internal/paths"
	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/internal/security"
	"github.com/PyRo1121/omg-sub002/pkg/cache"
	"github.com/PyRo1121/omg-sub002/pkg/config"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
	"github.com/PyRo1121/omg-sub002/pkg/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "omgd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	p := paths.Resolve()
	if err := p.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare data directories: %w", err)
	}

	cfg, err := config.Load(p.UserConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Daemon.SocketPath != "" {
		p.Socket = cfg.Daemon.SocketPath
	}

	log := logging.New("omgd", cfg.Logging.Level, cfg.Logging.Format)

	distro := pkgdb.DetectDistro()
	adapter, err := pkgdb.Open(distro, paths.TestMode(), "/", "")
	if err != nil {
		return fmt.Errorf("open package database: %w", err)
	}

	eng := engine.New(adapter, log)
	defer eng.Close()

	rlClient := ratelimit.NewClient(&http.Client{Timeout: 10 * time.Second}, ratelimit.DefaultConfig())

	var redisTier *cache.RedisTier
	if cfg.Daemon.RedisAddr != "" {
		redisTier = cache.NewRedisTier(cfg.Daemon.RedisAddr, "", 0, "omg:cve:")
	}
	vulnCache := security.NewVulnerabilityCache("arch", rlClient, time.Hour, redisTier, nil)

	policy, err := security.LoadPolicy(p.PolicyFile())
	if err != nil {
		log.LogSecurityEvent(context.Background(), "policy_load_failed", map[string]interface{}{"error": err.Error()})
	}

	auditRunner := daemon.NewAuditRunner(eng, vulnCache, policy)
	resultCache := daemon.NewResultCache(eng)
	defer resultCache.Close()

	metrics := daemon.NewMetrics()

	srv := daemon.NewServer(eng, resultCache, auditRunner, metrics, log)
	if cfg.Daemon.KeyringPath != "" {
		if keyring, err := security.LoadKeyring(cfg.Daemon.KeyringPath); err != nil {
			log.LogSecurityEvent(context.Background(), "keyring_load_failed", map[string]interface{}{"error": err.Error()})
		} else {
			srv = srv.WithKeyring(keyring)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := startTelemetry(ctx, p, log)
	defer events.Save()

	checkLicense(log, p)

	if err := startMaintenance(ctx, cfg, log, eng, resultCache, vulnCache); err != nil {
		return fmt.Errorf("start maintenance scheduler: %w", err)
	}

	if cfg.Daemon.AdminAddr != "" {
		adminRouter := daemon.NewAdminRouter(srv, metrics)
		go func() {
			if err := daemon.ListenAndServeAdmin(cfg.Daemon.AdminAddr, adminRouter); err != nil && !strings.Contains(err.Error(), "Server closed") {
				log.LogSecurityEvent(context.Background(), "admin_http_failed", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	log.LogSecurityEvent(context.Background(), "omgd_started", map[string]interface{}{
		"socket": p.Socket,
		"distro": string(distro),
	})

	return srv.Serve(ctx, p.Socket)
}

// checkLicense verifies any previously-activated license offline (§4.4);
// a missing or expired license is not fatal to the daemon — tier/feature
// gating is enforced by omgctl at the command layer, not by omgd refusing
// to start.
func checkLicense(log *logging.Logger, p paths.Paths) {
	lic, found, err := license.Load(p.LicenseFile())
	if err != nil {
		log.LogSecurityEvent(context.Background(), "license_load_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if !found {
		return
	}
	if !lic.IsValidOffline() {
		log.LogSecurityEvent(context.Background(), "license_expired", map[string]interface{}{"tier": lic.Tier.String()})
		return
	}
	if lic.NeedsRefresh() {
		log.LogSecurityEvent(context.Background(), "license_needs_refresh", map[string]interface{}{"expires_at": lic.ExpiresAt})
	}
}

// startTelemetry loads (or creates) the bounded event queue and starts a
// background ticker that opportunistically flushes it (§4.4: age > 60s or
// size >= 50), honoring the OMG_TELEMETRY opt-out.
func startTelemetry(ctx context.Context, p paths.Paths, log *logging.Logger) *license.EventQueue {
	endpoint := "https://telemetry.omg.dev/v1/events"
	events, err := license.LoadEventQueue(p.EventQueueFile(), endpoint)
	if err != nil {
		log.LogSecurityEvent(context.Background(), "event_queue_load_failed", map[string]interface{}{"error": err.Error()})
		events = license.NewEventQueue(p.EventQueueFile(), endpoint)
	}

	ticker := time.NewTicker(15 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				events.MaybeFlush(ctx, now)
			}
		}
	}()

	return events
}

// startMaintenance schedules the periodic result-cache invalidation sweep
// on a cron schedule, using robfig/cron for periodic maintenance.
func startMaintenance(ctx context.Context, cfg *config.Config, log *logging.Logger, eng *engine.Engine, resultCache *daemon.ResultCache, vulnCache *security.VulnerabilityCache) error {
	c := cron.New()

	_, err := c.AddFunc(cfg.Daemon.CronSchedule, func() {
		resultCache.Clear()
		log.LogSecurityEvent(ctx, "maintenance_tick", map[string]interface{}{"action": "result_cache_cleared"})
	})
	if err != nil {
		return err
	}

	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}
