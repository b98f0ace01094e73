// l4lbd daemon -- Layer-4 load balancer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ardenflow/l4lb/internal/admin"
	"github.com/ardenflow/l4lb/internal/config"
	"github.com/ardenflow/l4lb/internal/lb4"
	lbmetrics "github.com/ardenflow/l4lb/internal/metrics"
	"github.com/ardenflow/l4lb/internal/netio"
	appversion "github.com/ardenflow/l4lb/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics HTTP server
// to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// idlePoll is how long a NIC worker sleeps between polls of a quiet
// interface, so the loop never busy-spins a core (§5 Concurrency model:
// "single-threaded-per-NIC", not "spinning-per-NIC").
const idlePoll = 200 * time.Microsecond

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("l4lbd starting",
		slog.String("version", appversion.Version),
		slog.String("admin_socket", cfg.Admin.SocketPath),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := lbmetrics.NewCollector(reg)

	registry := lb4.NewRegistry()
	nics, err := createNICs(cfg, logger)
	if err != nil {
		logger.Error("failed to create interfaces", slog.String("error", err.Error()))
		return 1
	}
	defer closeNICs(nics, logger)
	for _, nic := range nics {
		registry.Register(nic)
	}

	if err := reconcileServices(registry, nics, cfg, logger); err != nil {
		logger.Error("failed to provision declarative services", slog.String("error", err.Error()))
		return 1
	}

	if err := runServers(cfg, registry, nics, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("l4lbd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("l4lbd stopped")
	return 0
}

// runServers starts the per-NIC dispatch workers, the admin socket, and the
// metrics HTTP server under one errgroup with a signal-aware context.
func runServers(
	cfg *config.Config,
	registry *lb4.Registry,
	nics map[string]lb4.NIC,
	collector *lbmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	adminSrv := admin.NewServer(registry, nics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	for _, nic := range nics {
		nic := nic
		dispatcher := lb4.NewDispatcher(registry)
		g.Go(func() error {
			runDispatchWorker(gCtx, dispatcher, registry, collector, nic, logger)
			return nil
		})
	}

	startHTTPServers(gCtx, g, cfg, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, registry, nics, logger)

	g.Go(func() error {
		return adminSrv.Serve(gCtx, cfg.Admin.SocketPath)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the metrics HTTP server goroutine.
func startHTTPServers(ctx context.Context, g *errgroup.Group, cfg *config.Config, metricsSrv *http.Server, logger *slog.Logger) {
	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	registry *lb4.Registry,
	nics map[string]lb4.NIC,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, registry, nics, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Dispatch workers — one per NIC (§5 Concurrency model)
// -------------------------------------------------------------------------

// runDispatchWorker polls one NIC for inbound packets and runs them through
// the dispatcher. Each iteration ticks that NIC's timer registry and drains
// any pending administrative quiesce request before touching a packet, so
// deferred-removal timers, session expiry, and admin-initiated mutations
// all land between packets, never during forwarding (§5 Suspension).
func runDispatchWorker(ctx context.Context, d *lb4.Dispatcher, registry *lb4.Registry, collector *lbmetrics.Collector, nic lb4.NIC, logger *slog.Logger) {
	ifc := registry.Interface(nic)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ifc.Timers.Tick(time.Now())
		ifc.Drain()

		if !nic.HasInput() {
			time.Sleep(idlePoll)
			continue
		}
		pkt, ok := nic.Input()
		if !ok {
			continue
		}

		result, err := d.Step(nic, pkt)
		if err != nil && !errors.Is(err, lb4.ErrSessionMiss) {
			logDispatchError(logger, nic.Name(), err)
		}
		if result.Drop {
			continue
		}
		collector.IncPacketsForwarded(result.Service, result.Mode)
		if err := result.NIC.Output(result.Packet); err != nil {
			logger.Warn("output failed", slog.String("nic", result.NIC.Name()), slog.String("error", err.Error()))
		}
	}
}

// dispatchErrOnce gates each distinct dispatch error kind (ErrAllocFailed,
// ErrTableFull, and the like — all package-level sentinels, so identity
// comparison groups occurrences of the same kind together) down to one log
// line, however often it recurs, per §7's "log once" requirement for
// allocation/table-full failures.
var dispatchErrOnce sync.Map // map[error]*sync.Once

// logDispatchError logs err at most once per distinct error value.
func logDispatchError(logger *slog.Logger, nicName string, err error) {
	v, _ := dispatchErrOnce.LoadOrStore(err, &sync.Once{})
	v.(*sync.Once).Do(func() {
		logger.Warn("dispatch error; further occurrences of this error are suppressed",
			slog.String("nic", nicName), slog.String("error", err.Error()))
	})
}

// -------------------------------------------------------------------------
// Declarative provisioning + SIGHUP reload
// -------------------------------------------------------------------------

// reconcileServices provisions every service/server pair declared in cfg
// into registry, idempotently: duplicates already present (by endpoint) are
// skipped rather than treated as an error, so SIGHUP reload can call this
// again after editing the config file (§10.3).
func reconcileServices(registry *lb4.Registry, nics map[string]lb4.NIC, cfg *config.Config, logger *slog.Logger) error {
	for _, sc := range cfg.Services {
		pubAddr, err := sc.PublicAddrPort()
		if err != nil {
			return fmt.Errorf("service %s: %w", sc.Public, err)
		}
		proto, err := lb4.ParseProtocol(sc.Protocol)
		if err != nil {
			return fmt.Errorf("service %s: %w", sc.Public, err)
		}
		nic, ok := nics[sc.NIC]
		if !ok {
			return fmt.Errorf("service %s: unknown interface %q", sc.Public, sc.NIC)
		}
		discCode := sc.Discipline
		if discCode == "" {
			discCode = cfg.LB.DefaultDiscipline
		}
		discipline, err := lb4.ParseDiscipline(discCode)
		if err != nil {
			return fmt.Errorf("service %s: %w", sc.Public, err)
		}

		pub := lb4.Endpoint{NIC: nic, Protocol: proto, Addr: pubAddr.Addr(), Port: pubAddr.Port()}

		privateNICs := make([]lb4.NIC, 0, len(sc.PrivateInterfaces))
		for _, name := range sc.PrivateInterfaces {
			pnic, ok := nics[name]
			if !ok {
				return fmt.Errorf("service %s: unknown private interface %q", sc.Public, name)
			}
			privateNICs = append(privateNICs, pnic)
		}
		if len(privateNICs) == 0 {
			privateNICs = append(privateNICs, nic)
		}

		timeout := sc.Timeout
		if timeout == 0 {
			timeout = cfg.LB.DefaultTimeout
		}
		svc, err := registry.AddService(pub, discipline, privateNICs, timeout)
		switch {
		case errors.Is(err, lb4.ErrDuplicateEndpoint):
			logger.Debug("service already provisioned, skipping", slog.String("public", sc.Public))
			svc, _ = registry.ServiceByKey(pub)
		case err != nil:
			return fmt.Errorf("service %s: %w", sc.Public, err)
		default:
			logger.Info("service provisioned", slog.String("public", sc.Public), slog.String("discipline", discCode))
		}

		for _, srvc := range sc.Servers {
			if err := reconcileServer(registry, nics, svc, srvc, sc.Public, logger); err != nil {
				return err
			}
		}
	}
	return nil
}

func reconcileServer(registry *lb4.Registry, nics map[string]lb4.NIC, svc *lb4.Service, srvc config.ServerConfig, serviceName string, logger *slog.Logger) error {
	ap, err := srvc.AddrPort()
	if err != nil {
		return fmt.Errorf("server %s: %w", srvc.Address, err)
	}
	nic, ok := nics[srvc.NIC]
	if !ok {
		return fmt.Errorf("server %s: unknown interface %q", srvc.Address, srvc.NIC)
	}

	ep := lb4.Endpoint{NIC: nic, Protocol: svc.Public.Protocol, Addr: ap.Addr(), Port: ap.Port()}
	srv, err := registry.AddServer(ep, srvc.Weight)
	if errors.Is(err, lb4.ErrDuplicateEndpoint) {
		logger.Debug("server already provisioned, skipping", slog.String("address", srvc.Address))
		return nil
	} else if err != nil {
		return fmt.Errorf("server %s: %w", srvc.Address, err)
	}

	if srvc.Mode != "" {
		if err := srv.SetMode(srvc.Mode); err != nil {
			return fmt.Errorf("server %s: %w", srvc.Address, err)
		}
	}
	logger.Info("server provisioned", slog.String("service", serviceName), slog.String("address", srvc.Address), slog.String("mode", srvc.Mode))
	return nil
}

// handleSIGHUP listens for SIGHUP signals and reloads configuration,
// refreshing the dynamic log level and re-running declarative provisioning.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	registry *lb4.Registry,
	nics map[string]lb4.NIC,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, registry, nics, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, registry *lb4.Registry, nics map[string]lb4.NIC, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)
	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	// The dispatch workers are running, so pause them at their next Drain
	// before touching the registry (see lb4.Registry.QuiesceAll).
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resume, err := registry.QuiesceAll(ctx)
	if err != nil {
		logger.Error("failed to pause dispatch workers for reconciliation", slog.String("error", err.Error()))
		return
	}
	defer resume()

	if err := reconcileServices(registry, nics, newCfg, logger); err != nil {
		logger.Error("declarative reconciliation had errors", slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// Interfaces
// -------------------------------------------------------------------------

// createNICs opens one raw NIC per interface named in cfg.LB.Interfaces.
func createNICs(cfg *config.Config, logger *slog.Logger) (map[string]lb4.NIC, error) {
	nics := make(map[string]lb4.NIC, len(cfg.LB.Interfaces))
	for _, name := range cfg.LB.Interfaces {
		nic, err := netio.NewRawNIC(name)
		if err != nil {
			closeNICs(nics, logger)
			return nil, fmt.Errorf("open interface %s: %w", name, err)
		}
		nics[name] = nic
		logger.Info("interface opened", slog.String("nic", name))
	}
	return nics, nil
}

func closeNICs(nics map[string]lb4.NIC, logger *slog.Logger) {
	for name, nic := range nics {
		closer, ok := nic.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close interface", slog.String("nic", name), slog.String("error", err.Error()))
		}
	}
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured interval, matching systemd's documented recommendation.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown signals systemd and shuts down the metrics HTTP server.
// Dispatch workers observe context cancellation on their own next poll and
// return; NIC Close happens in the deferred closeNICs in run().
func gracefulShutdown(ctx context.Context, logger *slog.Logger, metricsSrv *http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
