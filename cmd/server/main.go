package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"clinic-booking/internal/auth"
	"clinic-booking/internal/cache"
	"clinic-booking/internal/config"
	"clinic-booking/internal/kv"
	"clinic-booking/internal/logging"
	"clinic-booking/internal/metrics"
	"clinic-booking/internal/storage"
	"clinic-booking/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := kv.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}
	defer backend.Close()
	log.WithFields(logrus.Fields{"Backend": cfg.Backend}).Info("storage backend ready")

	svc := storage.New(backend, cache.New(), log)
	st := store.New(svc)
	st.Users().Initialize(ctx)
	st.CheckLegacyKeys(ctx)

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		n, err := auth.SeedUsers(ctx, st.Users(), seed.Users)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.WithFields(logrus.Fields{"Added": n}).Info("seed users applied")
	}

	a := newApp(cfg, st, log, os.Stdout)
	if args := os.Args[1:]; len(args) > 0 {
		if err := a.run(ctx, args); err != nil {
			log.Fatalf("%s: %v", args[0], err)
		}
		return
	}

	sched := a.scheduler()
	if err := sched.Start(ctx, cfg.ReminderSchedule, cfg.BackupSchedule); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	var httpSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		httpSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Infof("metrics on %s", cfg.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics: %v", err)
			}
		}()
	}

	// graceful shutdown
	<-ctx.Done()
	log.Info("shutting down")
	sched.Stop()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
}
