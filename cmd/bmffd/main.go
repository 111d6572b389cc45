package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/config"
	"example.com/bmffgate/internal/server"
)

type daemonFlags struct {
	configPath   string
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func researchLog(cfg config.Config) (*common.ResearchLog, error) {
	switch cfg.ResearchLog {
	case "", "off":
		return nil, nil
	case "default":
		p, err := common.DefaultResearchLogPath()
		if err != nil {
			return nil, err
		}
		return common.NewResearchLog(p), nil
	}
	return common.NewResearchLog(cfg.ResearchLog), nil
}

// daemon owns the HTTP server and everything that must be released after it
// stops.
type daemon struct {
	http     *http.Server
	srv      *server.Server
	logger   *zap.Logger
	closeLog func() error
	undoLog  func()
}

func newDaemon(cfg config.Config, f daemonFlags) (*daemon, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	opts := cfg.Logs.LogOptions("bmffd.log")
	opts.Console = os.Stdout
	logger, closeLog, err := common.NewLogger(opts, zap.String("component", "bmffd"))
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	research, err := researchLog(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}
	srv, err := server.NewServer(server.FromConfig(cfg, logger, research))
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("server init: %w", err)
	}
	addr := fmt.Sprintf(":%d", cfg.Port)
	if f.addr != "" {
		addr = f.addr
	}
	return &daemon{
		http: &http.Server{
			Addr:         addr,
			Handler:      server.NewRouter(srv),
			ReadTimeout:  f.readTimeout,
			WriteTimeout: f.writeTimeout,
			ErrorLog:     zap.NewStdLog(logger.Named("http")),
		},
		srv:      srv,
		logger:   logger,
		closeLog: closeLog,
		undoLog:  zap.RedirectStdLog(logger),
	}, nil
}

// serve runs until ctx is done, then drains in-flight requests.
func (d *daemon) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.http.Serve(ln)
	}()
	d.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.http.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("shutdown", zap.Error(err))
	}
	d.logger.Info("stopped")
	return nil
}

func (d *daemon) close() {
	if err := d.srv.Close(); err != nil {
		d.logger.Warn("remove work dir", zap.Error(err))
	}
	d.undoLog()
	_ = d.closeLog()
}

func main() {
	var f daemonFlags
	flag.StringVar(&f.configPath, "config", "", "path to configuration file (.yaml or .toml)")
	flag.StringVar(&f.addr, "addr", "", "listen address (overrides config port)")
	flag.DurationVar(&f.readTimeout, "read-timeout", 60*time.Second, "HTTP read timeout")
	flag.DurationVar(&f.writeTimeout, "write-timeout", 10*time.Minute, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	d, err := newDaemon(cfg, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ln, err := net.Listen("tcp", d.http.Addr)
	if err != nil {
		d.logger.Error("listen", zap.Error(err))
		d.close()
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = d.serve(ctx, ln)
	stop()
	d.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
