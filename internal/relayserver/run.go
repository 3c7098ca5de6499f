package relayserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/snippet-relay/internal/clipboard"
	"github.com/r9s-ai/snippet-relay/internal/config"
	"github.com/r9s-ai/snippet-relay/internal/extract"
	"github.com/r9s-ai/snippet-relay/internal/gemini"
	"github.com/r9s-ai/snippet-relay/internal/logx"
	"github.com/r9s-ai/snippet-relay/internal/relay"
	"github.com/r9s-ai/snippet-relay/internal/telemetry"
	"github.com/r9s-ai/snippet-relay/internal/version"
)

const shutdownTimeout = 5 * time.Second

func Run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, cfg)
}

// Serve runs the relay until ctx is done.
func Serve(ctx context.Context, cfg *config.Config) error {
	logx.SetLevel(logx.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := telemetry.Setup(telemetry.Options{
		Stdout:      cfg.Telemetry.TraceStdout,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version.Short(),
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	accessLogger, accessClose, accessColor, err := openAccessLogger(cfg)
	if err != nil {
		return fmt.Errorf("init access log: %w", err)
	}
	if accessClose != nil {
		defer func() { _ = accessClose.Close() }()
	}

	pidCleanup, err := writePIDFile(cfg)
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if pidCleanup != nil {
		defer func() { _ = pidCleanup.Close() }()
	}

	rules, err := extract.LoadRules(cfg.Extract.RulesFile)
	if err != nil {
		return fmt.Errorf("load rules file %q: %w", cfg.Extract.RulesFile, err)
	}
	holder := extract.NewHolder(rules)
	installRulesReloader(ctx, cfg, holder)

	svc := relay.NewFromConfig(cfg, newGeminiClient(cfg), holder, clipboard.New(cfg.ClipboardEnabled()))
	engine := NewRouter(cfg, svc, accessLogger, accessColor)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("snippet-relay %s listening on %s (model=%s)", version.Short(), cfg.Server.Listen, cfg.Gemini.Model)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("run: %w", err)
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newGeminiClient(cfg *config.Config) *gemini.Client {
	return gemini.NewClient(gemini.Options{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.Model,
		BaseURL:    cfg.Gemini.BaseURL,
		Timeout:    time.Duration(cfg.Gemini.TimeoutMs) * time.Millisecond,
		HTTPProxy:  cfg.Gemini.HTTPProxy,
		HTTPSProxy: cfg.Gemini.HTTPSProxy,
		NoProxy:    cfg.Gemini.NoProxy,
	})
}

// installRulesReloader watches the rules file and reloads it on change or SIGHUP.
func installRulesReloader(ctx context.Context, cfg *config.Config, holder *extract.Holder) {
	if strings.TrimSpace(cfg.Extract.RulesFile) == "" {
		return
	}
	w := extract.NewWatcher(cfg.Extract.RulesFile, holder)
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Printf("rules watcher stopped: %v", err)
		}
	}()
}

func openAccessLogger(cfg *config.Config) (*log.Logger, io.Closer, bool, error) {
	if cfg == nil || !cfg.AccessLogEnabled() {
		return nil, nil, false, nil
	}

	path := strings.TrimSpace(cfg.Logging.AccessLogPath)
	if path == "" {
		return log.New(os.Stdout, "", 0), nil, true, nil
	}

	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, false, err
		}
	}
	// #nosec G304 -- access_log_path comes from trusted config/env.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, false, err
	}
	return log.New(f, "", 0), f, false, nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func writePIDFile(cfg *config.Config) (io.Closer, error) {
	if cfg == nil {
		return nil, nil
	}
	path := strings.TrimSpace(cfg.Server.PidFile)
	if path == "" {
		return nil, nil
	}
	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}

	tmp := path + ".tmp"
	pid := strconv.Itoa(os.Getpid()) + "\n"
	// #nosec G304 -- pid_file comes from trusted config/env.
	if err := os.WriteFile(tmp, []byte(pid), 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return closerFunc(func() error { return os.Remove(path) }), nil
}
