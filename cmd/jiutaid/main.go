// Command jiutaid is the message dispatcher daemon: it loads service
// configs from a directory, routes published messages to subscribers
// over Unix domain sockets, and serves jiukun allocator diagnostics as
// Prometheus metrics (SPEC_FULL.md §6).
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/jiufeng/jiutai/chain"
	"github.com/jiufeng/jiutai/dispatcher"
	"github.com/jiufeng/jiutai/internal/logging"
	"github.com/jiufeng/jiutai/internal/metrics"
	"github.com/jiufeng/jiutai/internal/settings"
	"github.com/jiufeng/jiutai/jiukun"
)

// version is stamped at release time; "dev" identifies a local build.
const version = "dev"

// Flag letters follow spec §6's daemon CLI exactly: -f foreground, -s
// settings path, -V version, -T log level, -F log file, -S log file
// size cap, -h usage (bound automatically by cobra). Functionality
// this daemon needs beyond that original seven-flag surface
// (overriding the config directory, validating configs without
// starting, toggling the single-instance lock) is exposed as
// long-only flags instead of claiming more single letters.
var (
	settingsFile   string
	foreground     bool
	printVersion   bool
	logVerbosity   int
	logFile        string
	logSizeCap     int64
	configDirFlag  string
	testConfigFlag bool
	singletonFlag  bool
)

func main() {
	root := &cobra.Command{
		Use:   "jiutaid",
		Short: "Message dispatcher daemon",
		Long: `jiutaid loads dispatcher service configurations from a directory and routes
published messages between services over Unix domain sockets, backed by a
jiukun memory allocator and a single-threaded chain reactor.`,
		RunE: runDaemon,
	}

	flags := root.Flags()
	flags.BoolVarP(&foreground, "foreground", "f", false, "run in the foreground; jiutaid never detaches, with or without this flag")
	flags.StringVarP(&settingsFile, "settings", "s", "/etc/jiutai/jiutaid.yaml", "path to the daemon settings file")
	flags.BoolVarP(&printVersion, "version", "V", false, "print version and exit")
	flags.IntVarP(&logVerbosity, "log-level", "T", 3, "log level 0 (silent) to 4 (data)")
	flags.StringVarP(&logFile, "log-file", "F", "", "write logs to this file instead of stderr")
	flags.Int64VarP(&logSizeCap, "log-size", "S", 0, "log file size cap in bytes, 0 for unbounded")
	flags.StringVar(&configDirFlag, "config-dir", "", "override the dispatcher service config directory")
	flags.BoolVar(&testConfigFlag, "test-config", false, "validate service configs and exit")
	flags.BoolVar(&singletonFlag, "singleton", true, "refuse to start if another instance already holds the sentinel lock")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if printVersion {
		fmt.Println("jiutaid", version)
		return nil
	}

	loader := settings.NewLoader(settingsFile)
	st, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if configDirFlag != "" {
		st.ConfigDir = configDirFlag
	}

	var logOut io.Writer = os.Stderr
	if logFile != "" {
		f, err := newCappedLogFile(logFile, logSizeCap)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.NewLogger(&logging.Config{
		Level:  logging.LevelFromVerbosity(logVerbosity),
		Output: logOut,
		JSON:   st.LogJSON,
	})
	logging.SetDefault(logger)

	if testConfigFlag {
		configs, err := dispatcher.ScanConfigDir(st.ConfigDir, logger)
		if err != nil {
			return err
		}
		logger.Info("config check complete", "services", len(configs))
		return nil
	}

	var sentinel *os.File
	if singletonFlag {
		sentinel, err = acquireSentinel(st.SentinelFile)
		if err != nil {
			return fmt.Errorf("another jiutaid instance is already running: %w", err)
		}
		defer sentinel.Close()
	}

	allocator, err := jiukun.New(st.JiukunMaxOrder, st.JiukunNoGrow)
	if err != nil {
		return fmt.Errorf("create jiukun allocator: %w", err)
	}

	metricsReg := metrics.New()

	c, err := chain.New(logger)
	if err != nil {
		return fmt.Errorf("create chain: %w", err)
	}

	d := dispatcher.New(c, logger)
	if err := d.LoadConfigDir(st.ConfigDir); err != nil {
		return fmt.Errorf("load service configs: %w", err)
	}

	watcher, err := dispatcher.NewConfigWatcher(st.ConfigDir, logger, d.AddService)
	if err != nil {
		logger.Warn("service config directory watch disabled", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Run()
	})

	g.Go(func() error {
		return reportJiukunStats(gctx, allocator, metricsReg)
	})

	if st.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metricsReg.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: st.MetricsAddr, Handler: mux}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", st.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
		case <-gctx.Done():
		}
		d.Destroy()
		c.Stop()
		cancel()
		return nil
	})

	if watcher != nil {
		defer watcher.Close()
	}

	return g.Wait()
}

// reportJiukunStats periodically exports jiukun cache occupancy and
// zone counts as Prometheus gauges until ctx is canceled.
func reportJiukunStats(ctx context.Context, a *jiukun.Allocator, m *metrics.Metrics) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.JiukunZoneCount.Set(float64(a.ZoneCount()))
			for name, live := range a.Stats() {
				m.JiukunCacheObjectsLive.WithLabelValues(name).Set(float64(live))
			}
		}
	}
}

// cappedLogFile is an io.WriteCloser over a plain *os.File that
// truncates back to empty whenever a write would push the file past
// cap bytes, approximating -S's log file size cap. No library in the
// retrieval pack is actually exercised for log rotation (the only hit,
// gopkg.in/natefinch/lumberjack.v2, appears solely as an indirect,
// never-imported go.mod entry in the joeycumines-go-utilpkg examples),
// so this stays a small stdlib wrapper rather than an ungrounded
// dependency (see DESIGN.md).
type cappedLogFile struct {
	f   *os.File
	cap int64
}

func newCappedLogFile(path string, capBytes int64) (*cappedLogFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &cappedLogFile{f: f, cap: capBytes}, nil
}

func (c *cappedLogFile) Write(p []byte) (int, error) {
	if c.cap > 0 {
		if info, err := c.f.Stat(); err == nil && info.Size()+int64(len(p)) > c.cap {
			if err := c.f.Truncate(0); err == nil {
				c.f.Seek(0, io.SeekStart)
			}
		}
	}
	return c.f.Write(p)
}

func (c *cappedLogFile) Close() error { return c.f.Close() }

// acquireSentinel takes an exclusive, non-blocking flock on path,
// creating it if necessary, so a second jiutaid instance fails fast
// instead of silently double-binding every service socket.
func acquireSentinel(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
