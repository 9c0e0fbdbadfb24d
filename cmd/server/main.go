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

	"github.com/gin-gonic/gin"

	"perfreview/backend/internal/audit"
	"perfreview/backend/internal/config"
	"perfreview/backend/internal/health"
	healthhandler "perfreview/backend/internal/health/handler"
	identityhandler "perfreview/backend/internal/identity/handler"
	identityservice "perfreview/backend/internal/identity/service"
	"perfreview/backend/internal/idp"
	"perfreview/backend/internal/policy/engine"
	refreshsvc "perfreview/backend/internal/refreshtoken/service"
	"perfreview/backend/internal/security"
	"perfreview/backend/internal/server"
	"perfreview/backend/internal/server/middleware"
	sessionsvc "perfreview/backend/internal/session/service"
	"perfreview/backend/internal/telemetry"
	telemetryotel "perfreview/backend/internal/telemetry/otel"
	"perfreview/backend/internal/telemetry/producer"
)

const (
	healthService  = "perfreview.Auth"
	healthInterval = 10 * time.Second
	shutdownGrace  = 15 * time.Second
	eventWorkers   = 2
	eventQueueSize = 1024
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer st.Close()

	accessKey, refreshKey, err := signingKeys(cfg)
	if err != nil {
		log.Fatalf("keys: %v", err)
	}
	issuer, err := security.NewTokenIssuer(security.IssuerConfig{
		Issuer:      cfg.JWTIssuer,
		Audience:    cfg.JWTAudience,
		AccessTTL:   cfg.AccessTTL(),
		RefreshTTL:  cfg.RefreshTTL(),
		AccessKey:   accessKey,
		RefreshKey:  refreshKey,
		Revocations: st.revocations,
	})
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	hasher, err := security.NewSecretHasher(cfg.SecretHashAlgorithm, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}

	provider, err := idp.NewOIDCProvider(ctx, idp.Config{
		IssuerURL:    cfg.OIDCIssuerURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		AuthURL:      cfg.OIDCAuthURL,
		TokenURL:     cfg.OIDCTokenURL,
		UserInfoURL:  cfg.OIDCUserInfoURL,
		RevokeURL:    cfg.OIDCRevokeURL,
		Scopes:       cfg.OIDCScopesList(),
		Timeout:      cfg.IdPTimeout(),
	})
	if err != nil {
		log.Fatalf("identity provider: %v", err)
	}
	roles, err := engine.NewOPAEvaluatorFromFile(cfg.RolePolicyFile, cfg.DefaultRole)
	if err != nil {
		log.Fatalf("role policy: %v", err)
	}

	metrics, err := telemetry.NewAuthMetrics(nil)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	events := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kp, err := producer.NewKafkaProducer(brokers, cfg.SecurityEventsTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		defer func() {
			if err := kp.Close(); err != nil {
				log.Printf("kafka: close: %v", err)
			}
		}()
		events = append(events, kp)
		log.Printf("server: security events to kafka topic %s", cfg.SecurityEventsTopic)
	}

	dispatcher := telemetry.NewDispatcher(events, eventWorkers, eventQueueSize)

	auditLogger := audit.NewLogger(st.audits, middleware.GetClientIP)
	tracker := sessionsvc.NewTracker(st.sessions, st.records, issuer)
	ledger := refreshsvc.NewLedger(st.records, issuer, hasher, tracker)
	authSvc := identityservice.NewAuthService(provider, st.users, ledger, tracker, issuer, roles,
		identityservice.Config{SessionTTL: cfg.SessionTTL(), IdPTimeout: cfg.IdPTimeout()}).
		WithAudit(auditLogger, middleware.GetClientIP).
		WithTelemetry(dispatcher, metrics)

	var dbPinger health.Pinger
	if st.db != nil {
		dbPinger = st.db
	}
	checker := health.NewChecker(dbPinger, st.cache, roles)

	router, err := server.NewRouter(server.Deps{
		Auth:           identityhandler.NewHandler(authSvc, provider, cfg.IsProduction()),
		Tokens:         issuer,
		Health:         checker,
		Audit:          auditLogger,
		ServiceName:    cfg.ServiceName,
		TrustedProxies: cfg.TrustedProxiesList(),
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hs := healthhandler.NewGRPCServer()
	grpcServer := server.NewGRPCServer(hs)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go healthhandler.Watch(ctx, hs, checker, healthService, healthInterval)

	go func() {
		log.Printf("gRPC health server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("grpc serve: %v", err)
			stop()
		}
	}()
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http serve: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcServer.GracefulStop()

	// Queued security events go out before the exporters close.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Printf("telemetry: drain: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("server stopped")
}
