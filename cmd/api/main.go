package main

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jurisdesk/atendimento/internal/api/handler"
	"github.com/jurisdesk/atendimento/internal/api/middleware"
	"github.com/jurisdesk/atendimento/internal/app"
	"github.com/jurisdesk/atendimento/internal/config"
	"github.com/jurisdesk/atendimento/internal/inbound"
	"github.com/jurisdesk/atendimento/internal/logger"
	"github.com/jurisdesk/atendimento/internal/push"
	"github.com/jurisdesk/atendimento/internal/push/delivery"
	"github.com/jurisdesk/atendimento/internal/server"
	connectionSvc "github.com/jurisdesk/atendimento/internal/service/connection"
	messageSvc "github.com/jurisdesk/atendimento/internal/service/message"
	ticketSvc "github.com/jurisdesk/atendimento/internal/service/ticket"
	"github.com/jurisdesk/atendimento/internal/session"
	"github.com/jurisdesk/atendimento/internal/session/credstore"
	"github.com/jurisdesk/atendimento/internal/session/whatsmeow"
	"github.com/jurisdesk/atendimento/internal/storage/media"
	storage_redis "github.com/jurisdesk/atendimento/internal/storage/redis"
	"github.com/jurisdesk/atendimento/internal/triage"
)

// redisLocker garante no máximo um socket por conexão entre instâncias
// do backend. O lock é renovado enquanto a sessão vive.
type redisLocker struct {
	client *storage_redis.Client
}

func (r *redisLocker) TryLock(ctx context.Context, connectionID string) (func(), error) {
	lock := storage_redis.NewLock(r.client, "session:lock:"+connectionID, time.Minute)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, session.ErrLockNotAcquired
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = lock.Refresh(refreshCtx)
				cancel()
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	sessionDir := filepath.Join(cfg.Storage.DataDir, "sessions")
	credentialsDir := filepath.Join(cfg.Storage.DataDir, "credentials")
	mediaDir := filepath.Join(cfg.Storage.DataDir, "media")

	logr.Info("iniciando aplicação",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.Log.Level),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Storage.Driver),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	repos, err := app.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	mediaTTL := time.Duration(cfg.Storage.MediaTTLSeconds) * time.Second
	mediaStorage, err := media.NewStorage(mediaDir, mediaTTL, logr)
	if err != nil {
		log.Fatalf("media storage: %v", err)
	}
	logr.Info("media storage inicializado", zap.String("dir", mediaDir), zap.Duration("ttl", mediaTTL))

	// DSN do WhatsMeow apenas quando o driver principal é postgres;
	// caso contrário cada conexão usa seu próprio arquivo sqlite.
	pgDSN := ""
	if cfg.Storage.Driver == "postgres" {
		pgDSN = cfg.DB.DSN()
	}

	dialer, err := whatsmeow.NewDialer(cfg.Storage.Driver, sessionDir, pgDSN, mediaStorage, cfg.App.BaseURL, logr)
	if err != nil {
		log.Fatalf("dialer: %v", err)
	}

	credStore, err := credstore.New(credentialsDir, cfg.WhatsApp.SessionKeyEnc, logr)
	if err != nil {
		log.Fatalf("credstore: %v", err)
	}

	notifier := push.NewNotifier(repos.PushQueue, logr)

	sessionManager := session.NewManager(dialer, credStore, repos.Connection, notifier, session.Config{
		PairingTimeout: time.Duration(cfg.WhatsApp.PairingTimeoutSeconds) * time.Second,
		ReconnectBase:  time.Duration(cfg.WhatsApp.ReconnectBaseSeconds) * time.Second,
		ReconnectMax:   time.Duration(cfg.WhatsApp.ReconnectMaxSeconds) * time.Second,
	}, logr)

	if repos.RedisClient != nil {
		sessionManager.SetLocker(&redisLocker{client: repos.RedisClient})
		logr.Info("lock distribuído de sessão habilitado")
	}

	logr.Debug("inicializando triagem")
	triageEngine := triage.NewEngine(repos.Contact, repos.Ticket, repos.TicketMessage, repos.Process, logr)
	triageEngine.SetPublisher(notifier)

	inboundRouter := inbound.NewRouter(triageEngine, logr)
	sessionManager.SetMessageHandler(inboundRouter)

	logr.Info("inicializando entrega de eventos")
	pushHub := push.NewHub(logr)
	pushDelivery := delivery.NewDelivery(logr, 3)
	pushPool := push.NewPool(repos.PushQueue, repos.Connection, pushHub, pushDelivery, logr, cfg.Push.Workers)
	pushPool.Start(context.Background())
	logr.Info("pool de push iniciada", zap.Int("workers", cfg.Push.Workers))

	logr.Info("restaurando sessões...")
	conns, err := repos.Connection.List(context.Background())
	if err != nil {
		logr.Warn("erro ao listar conexões para restauração", zap.Error(err))
	} else {
		sessionManager.StartAll(context.Background(), conns)
	}

	logr.Debug("inicializando serviços")
	connectionService := connectionSvc.NewService(repos.Connection, sessionManager, logr)
	messageService := messageSvc.NewService(sessionManager, repos.Ticket, repos.Contact, repos.TicketMessage, logr)
	ticketService := ticketSvc.NewService(repos.Ticket, repos.TicketMessage, repos.Contact, logr)
	logr.Debug("serviços inicializados")

	rateLimitOpts := middleware.RateLimitOption{
		Enabled:  cfg.RateLimit.Enabled,
		Requests: cfg.RateLimit.Requests,
		Window:   time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		Prefix:   cfg.RateLimit.Prefix,
		Logger:   logr,
		Limiter:  repos.RateLimiter,
	}

	router := server.NewRouter(server.Options{
		Env:               cfg.App.Env,
		AuthSecret:        cfg.JWT.Secret,
		HealthHandler:     handler.NewHealthHandler(),
		ConnectionHandler: handler.NewConnectionHandler(connectionService, logr),
		TicketHandler:     handler.NewTicketHandler(ticketService, messageService, logr),
		MessageHandler:    handler.NewMessageHandler(messageService, logr),
		ContactHandler:    handler.NewContactHandler(repos.Contact, logr),
		ProcessHandler:    handler.NewProcessHandler(triageEngine, repos.Process, logr),
		EventsHandler:     handler.NewEventsHandler(pushHub, logr),
		MediaHandler:      handler.NewMediaHandler(mediaStorage, logr),
		RateLimit:         rateLimitOpts,
	})

	application := app.New(cfg, logr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := application.Run(context.Background()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("sinal de encerramento recebido")
	case err := <-errCh:
		logr.Error("servidor finalizado com erro", zap.Error(err))
	}

	logr.Info("iniciando shutdown graceful")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sessionManager.Shutdown(shutdownCtx)
	logr.Info("sessões encerradas")

	inboundRouter.Close()
	pushPool.Stop()
	logr.Info("pool de push encerrada")

	if repos.RedisClient != nil {
		if err := repos.RedisClient.Close(); err != nil {
			logr.Warn("erro ao fechar conexão Redis", zap.Error(err))
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("erro ao encerrar servidor", zap.Error(err))
	} else {
		logr.Info("servidor encerrado com sucesso")
	}
}
