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

	"hancock/internal/app"
	"hancock/internal/config"
	healthhandler "hancock/internal/health/handler"
	"hancock/internal/notify"
	"hancock/internal/policy/engine"
	"hancock/internal/server"
	sessionhandler "hancock/internal/session/handler"
	"hancock/internal/session/service"
	"hancock/internal/telemetry"
	telemetryotel "hancock/internal/telemetry/otel"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.OTELServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	events := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer stores.Close()

	tokens, err := app.NewLinkTokens(cfg)
	if err != nil {
		log.Fatalf("link tokens: %v", err)
	}
	if cfg.LinkTokenPrivateKey == "" {
		logger.Warn("link tokens: using an ephemeral key; signing links will not survive a restart")
	}

	policy, err := engine.NewOPAEvaluator(ctx, cfg.RedirectAllowedHostsList())
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	notifier, notifierCloser := app.NewNotifier(cfg, logger)
	defer notifierCloser.Close()
	dispatcher := notify.NewDispatcher(notifier, notify.DispatcherOptions{
		Workers:    cfg.NotifyWorkers,
		QueueSize:  cfg.NotifyQueueSize,
		MaxRetries: cfg.NotifyMaxRetries,
		OnFailure: func(msg notify.Message, err error) {
			telemetry.EmitAsync(events, context.Background(),
				telemetry.NewEvent(telemetry.EventNotificationFailed, msg.SID, msg.Organization, "notify").With("error", err.Error()))
		},
	}, logger)

	svc, err := service.NewSessionService(service.Deps{
		Sessions:      stores.Sessions,
		Artifacts:     stores.Artifacts,
		Tokens:        tokens,
		Policy:        policy,
		Notifications: dispatcher,
		Events:        events,
		Tracer:        providers.Tracer(),
		Meter:         providers.Meter(),
		Logger:        logger,
	}, service.Options{
		BaseURL:           cfg.PublicBaseURL,
		CollisionPolicy:   service.CollisionPolicy(cfg.SIDCollisionPolicy),
		MaxSignatureBytes: cfg.MaxSignatureBytes,
	})
	if err != nil {
		log.Fatalf("session service: %v", err)
	}

	health := healthhandler.NewServer(svc, policy)
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Sessions: sessionhandler.NewHandler(svc, logger, cfg.MaxSignatureBytes),
			Resolver: app.NewResolver(cfg),
			Health:   health,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "session_store", cfg.SessionStore, "artifact_store", cfg.ArtifactStore)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		grpcSrv = server.NewGRPCServer(health)
		go func() {
			logger.Info("grpc health server listening", "addr", cfg.GRPCHealthAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("serve grpc: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("notify: pending notifications dropped", "error", err)
	}
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel shutdown", "error", err)
	}
	logger.Info("stopped")
}
