package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/config"
	"ebdconsole.org/internal/console"
	"ebdconsole.org/internal/dashboard"
	"ebdconsole.org/internal/httpapi"
	"ebdconsole.org/internal/live"
	"ebdconsole.org/internal/obs"
	"ebdconsole.org/internal/reference"
	"ebdconsole.org/internal/report"
	"ebdconsole.org/internal/report/remote"
	"ebdconsole.org/internal/store/pg"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.Init()
	if !obs.SetLevel(cfg.LogLevel) {
		obs.Warn("unknown_log_level", map[string]any{"level": cfg.LogLevel})
	}

	var (
		store   reference.DocumentStore
		reports report.Service
		ready   httpapi.ReadyProbe
		closers []func() error
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		store, ready.Store = pgStore, pgStore
		closers = append(closers, pgStore.Close)
	}
	if cfg.AggregationAddr != "" {
		client, err := remote.Dial(cfg.AggregationAddr, cfg.FetchTimeout)
		if err != nil {
			log.Fatalf("dial aggregation: %v", err)
		}
		reports = remote.NewService(client)
		closers = append(closers, client.Close)
	}
	if cfg.DemoData {
		demoStore, demoReports := demoBackends(time.Now().UTC())
		fields := map[string]any{"store": store == nil, "aggregation": reports == nil}
		if store == nil {
			store = demoStore
		}
		if reports == nil {
			reports = demoReports
		}
		obs.Warn("demo_data_enabled", fields)
	}

	verifier, err := access.NewTokenVerifier(cfg.TokenSecret, access.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		log.Fatalf("token verifier: %v", err)
	}
	hub := live.NewHub()
	manager := console.NewManager(store, reports,
		console.WithHub(hub),
		console.WithRefetchTimeout(cfg.FetchTimeout),
		console.WithIdleTimeout(cfg.SessionIdle),
	)

	api, err := httpapi.New(httpapi.Options{
		Version:       version,
		Ready:         ready,
		Verifier:      verifier,
		Console:       manager,
		Dashboard:     dashboard.New(reports),
		Hub:           hub,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		FetchTimeout:  cfg.FetchTimeout,
	})
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE streams stay open; handlers bound their own fetches.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcSrv, httpapi.NewGRPCHealth(ready))
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	obs.Info("server_start", map[string]any{
		"version":   version,
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	obs.Info("server_stopping", nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	cancelStreams()
	manager.Close()
	if err := srv.Shutdown(ctx); err != nil {
		obs.Warn("http_shutdown", map[string]any{"error": err.Error()})
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	for _, closeFn := range closers {
		_ = closeFn()
	}
	obs.Info("server_stopped", nil)
}
