package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/habitflow/auth-service/internal/cache"
	"github.com/habitflow/auth-service/internal/config"
	"github.com/habitflow/auth-service/internal/password"
	"github.com/habitflow/auth-service/internal/service"
	"github.com/habitflow/auth-service/internal/storage"
	"github.com/habitflow/auth-service/internal/storage/postgres"
	authhttp "github.com/habitflow/auth-service/internal/transport/http"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("postgres_connected")

	// Сервис.
	hasher := password.New(password.Params{
		MemoryKiB:   cfg.Password.MemoryKiB,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
	})
	srvc := service.New(str, cfg.Auth, hasher)

	// Опциональный Redis-кэш refresh-токенов.
	var rcache cache.RefreshCache
	if cfg.Redis.RedisURL != "" {
		rcache, err = cache.NewRedisCache(cfg.Redis.RedisURL, "")
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			str.Close()
			os.Exit(1)
		}
		srvc.SetRefreshCache(rcache)
		log.Info("redis_connected")
	}
	log.Info("service_initialized")

	// Роутер и лимитеры.
	limiters := authhttp.NewLimiters(cfg.Limits)
	apiHandler := authhttp.NewRouter(srvc, limiters, authhttp.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
		Limits:  cfg.Limits,
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Фоновая очистка просроченных refresh-токенов и ключей лимитеров.
	startJanitor(rootCtx, str, limiters, log, 30*time.Minute)

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed",
			slog.String("addr", httpAddr),
			slog.String("err", err.Error()),
		)
		rootCancel()
		str.Close()
		os.Exit(1)
	}
	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("service_ready")

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	if rcache != nil {
		_ = rcache.Close()
	}
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// startJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные и отозванные refresh-токены и вычищает ключи лимитеров.
// Удаление касается только записей, уже исключённых инвариантом активности,
// поэтому безопасно в любой момент относительно остальных операций.
func startJanitor(ctx context.Context, st storage.Storage, lim *authhttp.Limiters, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				now := time.Now().UTC()
				count, err := st.DeleteExpiredTokens(ctx, now)
				if err != nil {
					log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
				} else if count > 0 {
					log.Info("refresh_janitor_swept", slog.Int64("count", count))
				}
				lim.Sweep(now)
			}
		}
	}()
}
