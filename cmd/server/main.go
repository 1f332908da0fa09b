package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/zettelsync/internal/server/handlers"
	"github.com/iudanet/zettelsync/internal/server/middleware"
	"github.com/iudanet/zettelsync/internal/server/storage/sqlite"
	zsync "github.com/iudanet/zettelsync/internal/sync"
)

// config собирается из флагов и переменных окружения ZETTELSYNC_*
type config struct {
	Addr            string
	DBPath          string
	JWTSecret       string
	LogLevel        string
	LogFormat       string
	CVRStore        string
	CVRCacheSize    int
	CVRBoltPath     string
	CVRTTL          time.Duration
	CVRCleanupEvery time.Duration
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "zettelsync-server",
	Short: "Sync server for workspace trees",
	Long: `zettelsync-server exposes a pull/push synchronization API over a
workspace/folders/files tree. Configuration can be set via command line
flags or environment variables in the form ZETTELSYNC_<FLAG>
(e.g. ZETTELSYNC_JWT_SECRET=...).`,
	RunE: run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("zettelsync-server %s\n", handlers.Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().String("addr", ":8080", "address the HTTP server listens on")
	rootCmd.Flags().String("db-path", "zettelsync.db", "path to the SQLite database file")
	rootCmd.Flags().String("jwt-secret", "", "HMAC secret for verifying access tokens (required)")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", "json", "log format (json, text)")
	rootCmd.Flags().String("cvr-store", "memory", "CVR snapshot store backend (memory, bolt)")
	rootCmd.Flags().Int("cvr-cache-size", 4096, "max CVR snapshots kept by the memory store")
	rootCmd.Flags().String("cvr-bolt-path", "cvr.db", "path to the bolt CVR store file")
	rootCmd.Flags().Duration("cvr-ttl", 30*24*time.Hour, "retention of bolt CVR snapshots")
	rootCmd.Flags().Duration("cvr-cleanup-every", time.Hour, "interval between bolt CVR store cleanups")
	rootCmd.Flags().Int("rate-limit", 120, "max requests per user per window")
	rootCmd.Flags().Duration("rate-window", time.Minute, "rate limit window")
	rootCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
}

// initConfig подхватывает .env файлы и переменные окружения
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("zettelsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig binds flags to viper and materializes the config struct
func loadConfig(cmd *cobra.Command) (config, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return config{}, err
	}

	cfg := config{
		Addr:            viper.GetString("addr"),
		DBPath:          viper.GetString("db-path"),
		JWTSecret:       viper.GetString("jwt-secret"),
		LogLevel:        viper.GetString("log-level"),
		LogFormat:       viper.GetString("log-format"),
		CVRStore:        viper.GetString("cvr-store"),
		CVRCacheSize:    viper.GetInt("cvr-cache-size"),
		CVRBoltPath:     viper.GetString("cvr-bolt-path"),
		CVRTTL:          viper.GetDuration("cvr-ttl"),
		CVRCleanupEvery: viper.GetDuration("cvr-cleanup-every"),
		RateLimit:       viper.GetInt("rate-limit"),
		RateWindow:      viper.GetDuration("rate-window"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
	}

	if cfg.JWTSecret == "" {
		return config{}, fmt.Errorf("jwt-secret is required (flag --jwt-secret or ZETTELSYNC_JWT_SECRET)")
	}
	if cfg.CVRStore != "memory" && cfg.CVRStore != "bolt" {
		return config{}, fmt.Errorf("invalid cvr-store %q (expected memory or bolt)", cfg.CVRStore)
	}
	if cfg.CVRCacheSize <= 0 {
		return config{}, fmt.Errorf("cvr-cache-size must be positive")
	}

	return cfg, nil
}

// newLogger создает slog логгер по настройкам уровня и формата
func newLogger(cfg config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.LogLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("invalid log-format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

// newCVRStore выбирает бэкенд снапшотов CVR
func newCVRStore(cfg config) (zsync.Store, error) {
	switch cfg.CVRStore {
	case "bolt":
		return zsync.NewBoltStore(cfg.CVRBoltPath, cfg.CVRTTL)
	default:
		return zsync.NewMemoryStore(cfg.CVRCacheSize)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	defer store.Close()

	cvrs, err := newCVRStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to init cvr store: %w", err)
	}
	defer cvrs.Close()

	// Периодическая чистка просроченных CVR снапшотов (только bolt)
	if boltStore, ok := cvrs.(*zsync.BoltStore); ok {
		go runCleanup(ctx, logger, boltStore, cfg.CVRCleanupEvery)
	}

	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(cfg.JWTSecret),
		AccessTokenTTL: 15 * time.Minute,
	}

	puller := zsync.NewPuller(logger, store, cvrs)
	pusher := zsync.NewProcessor(logger, store)
	syncHandler := handlers.NewSyncHandler(logger, puller, pusher)
	healthHandler := handlers.NewHealthHandler(logger, store)

	authMw := middleware.AuthMiddleware(logger, jwtConfig)
	rateMw := middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateWindow, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/sync/pull", authMw(rateMw(http.HandlerFunc(syncHandler.HandlePull))))
	mux.Handle("/api/v1/sync/push", authMw(rateMw(http.HandlerFunc(syncHandler.HandlePush))))
	mux.HandleFunc("/api/v1/health", healthHandler.Health)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	// Recovery снаружи, логирование внутри; health и metrics не логируем
	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(logger, []string{"/api/v1/health", "/metrics"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "cvr_store", cfg.CVRStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// runCleanup периодически удаляет просроченные CVR снапшоты
func runCleanup(ctx context.Context, logger *slog.Logger, store *zsync.BoltStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Cleanup()
			if err != nil {
				logger.Error("cvr store cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("cvr store cleanup", "removed", removed)
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
