package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressly/goose/v3"

	"vidora.org/internal/auth"
	"vidora.org/internal/config"
	"vidora.org/internal/httpapi"
	"vidora.org/internal/obs"
	"vidora.org/migrations"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		migrateUp  = flag.Bool("migrate", false, "apply pending migrations before serving")
	)
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := auth.Open(cfg.DB.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if *migrateUp {
		goose.SetBaseFS(migrations.Migrations)
		if err := goose.UpContext(context.Background(), store.DB(), "."); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	issuer, err := auth.NewIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	svc, err := auth.NewService(store, issuer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	probe := httpapi.ReadyProbe{DB: store.DB()}
	api := httpapi.New(svc, probe, version)
	api.SetLimits(cfg.Limits.RateBurst, cfg.Limits.RatePerSec, cfg.Limits.MaxBodyBytes)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting vidora-api %s on %s (env %s)", version, srv.Addr, cfg.Env)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	var grpcSrv *httpapi.GRPCServer
	if cfg.GRPC.Enabled() {
		grpcSrv = httpapi.NewGRPCServer(probe)
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		log.Printf("grpc health on %s", cfg.GRPC.Addr())
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
		go grpcSrv.WatchReadiness(watchCtx, 5*time.Second)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down...")
	stopWatch()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Println("stopped")
}
