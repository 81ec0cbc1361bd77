package entitlements

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/wanderplan/entitlements/internal/cache"
	"github.com/wanderplan/entitlements/internal/config"
	"github.com/wanderplan/entitlements/internal/lib/rabbitmq"
	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/playbilling"
	"github.com/wanderplan/entitlements/internal/services/acknowledgment"
	"github.com/wanderplan/entitlements/internal/services/entitlement"
	"github.com/wanderplan/entitlements/internal/services/verification"
	"github.com/wanderplan/entitlements/internal/storage/entitlementstore"
)

type App struct {
	server     *http.Server
	logger     *slog.Logger
	store      *entitlementstore.Store
	journal    *cache.Journal
	rabbitConn *amqp.Connection
	reconciler *entitlement.Reconciler
}

// New собирает приложение. Внешние зависимости (биллинг-авторитет,
// документное хранилище, redis, rabbitmq) подключаются в мягком режиме:
// отсутствие учётных данных понижает сервис до деградированного ответа,
// а не роняет старт.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	var verifySvc *verification.Service
	var ackSvc *acknowledgment.Service

	play, err := playbilling.New(ctx, playbilling.Config{
		PackageName:        cfg.GooglePlay.PackageName,
		ServiceAccountJSON: cfg.GooglePlay.ServiceAccountJSON,
	})
	if err != nil {
		logger.Warn("billing authority client unavailable, verify and acknowledge will degrade", sl.Err(err))
		verifySvc = verification.New(nil, cfg.GooglePlay.SubscriptionID, logger)
		ackSvc = acknowledgment.New(nil, cfg.GooglePlay.SubscriptionID, logger)
	} else {
		verifySvc = verification.New(play, cfg.GooglePlay.SubscriptionID, logger)
		ackSvc = acknowledgment.New(play, cfg.GooglePlay.SubscriptionID, logger)
	}

	var repo entitlement.Repository
	var store *entitlementstore.Store
	target := ""
	if cfg.Firestore.ProjectID != "" {
		target = cfg.Firestore.Collection
		store, err = entitlementstore.New(ctx, entitlementstore.Config{
			ProjectID:       cfg.Firestore.ProjectID,
			CredentialsJSON: cfg.Firestore.CredentialsJSON,
			Collection:      cfg.Firestore.Collection,
		})
		if err != nil {
			logger.Warn("entitlement store unavailable, writes become soft failures", sl.Err(err))
		} else {
			repo = store
		}
	}

	var journal entitlement.Journal
	journalRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Warn("reconciliation journal unavailable", sl.Err(err))
	} else {
		journal = journalRedis
	}

	var pub entitlement.Publisher
	var rabbitConn *amqp.Connection
	if cfg.RabbitMQ.URL != "" {
		rabbitConn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, 5, 2*time.Second)
		if err != nil {
			logger.Warn("event publisher unavailable", sl.Err(err))
		} else {
			pub, err = rabbitmq.NewEventPublisher(rabbitConn, cfg.RabbitMQ.Exchange)
			if err != nil {
				logger.Warn("failed to declare event exchange", sl.Err(err))
				pub = nil
			}
		}
	}

	entitlementService := entitlement.New(repo, journal, pub, target, logger)
	reconciler := entitlement.NewReconciler(repo, journal, cfg.ReconcileEvery, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, verifySvc, ackSvc, entitlementService, cfg.JWTSecretKey)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		store:      store,
		journal:    journalRedis,
		rabbitConn: rabbitConn,
		reconciler: reconciler,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.reconciler.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close entitlement store", sl.Err(err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Db.Close(); err != nil {
			a.logger.Warn("failed to close redis connection", sl.Err(err))
		}
	}
	if a.rabbitConn != nil {
		if err := a.rabbitConn.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
}
