// Package entitlement реализует запись долговременных entitlement-записей
// в документное хранилище и сверку записей, не доехавших до него.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/models"
)

// ErrNotConfigured — целевая коллекция хранилища не задана в конфиге.
var ErrNotConfigured = errors.New("entitlement store target is not configured")

// Repository определяет методы документного хранилища entitlement-записей.
type Repository interface {
	// Upsert записывает документ по детерминированному ключу rec.DocID().
	Upsert(ctx context.Context, rec models.EntitlementRecord) error
	// ListActive возвращает действующие записи с опциональными фильтрами.
	ListActive(ctx context.Context, tripID, userID string, now time.Time) ([]models.EntitlementRecord, error)
}

// Journal — очередь записей, ожидающих повторной попытки сохранения.
type Journal interface {
	Push(ctx context.Context, rec models.EntitlementRecord) error
	Pop(ctx context.Context) (models.EntitlementRecord, bool, error)
}

// Publisher рассылает событие о выданном entitlement.
type Publisher interface {
	PublishGranted(rec models.EntitlementRecord) error
}

// Service — писатель entitlement-записей. Repo равен nil, когда учётные
// данные хранилища недоступны: тогда запись — мягкий отказ (stored=false),
// а источником правды для гейтов остаётся локальный кеш до следующей сверки.
type Service struct {
	repo    Repository
	journal Journal
	pub     Publisher
	target  string
	log     *slog.Logger
	now     func() time.Time
}

// New создает новый экземпляр Service. Journal и pub могут быть nil.
func New(repo Repository, journal Journal, pub Publisher, target string, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		journal: journal,
		pub:     pub,
		target:  target,
		log:     log,
		now:     time.Now,
	}
}

// Configured сообщает, задана ли целевая коллекция хранилища.
func (s *Service) Configured() bool {
	return s.target != ""
}

// Store сохраняет entitlement-запись. Возвращает stored=false без ошибки,
// когда хранилище недоступно по политике мягкого отказа. Демо-записи
// в хранилище не попадают никогда.
func (s *Service) Store(ctx context.Context, tripID, userID string, expiresAt int64, orderID string, source models.EntitlementSource) (bool, error) {
	const op = "services.entitlement.Store"
	log := s.log.With(slog.String("op", op), slog.String("trip_id", tripID))

	if !s.Configured() {
		return false, ErrNotConfigured
	}

	if source == "" {
		source = models.SourceGooglePlay
	}
	if source == models.SourceDemo {
		log.Info("demo entitlement is local-only, skipping durable store")
		return false, nil
	}

	rec := models.EntitlementRecord{
		TripID:    tripID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		OrderID:   orderID,
		Source:    source,
		CreatedAt: s.now().UTC(),
	}

	if s.repo == nil {
		log.Warn("store credential missing, entitlement not persisted", slog.String("doc_id", rec.DocID()))
		s.enqueue(ctx, log, rec)
		return false, nil
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		log.Error("failed to persist entitlement", slog.String("doc_id", rec.DocID()), sl.Err(err))
		s.enqueue(ctx, log, rec)
		return false, nil
	}

	log.Info("entitlement persisted", slog.String("doc_id", rec.DocID()))

	if s.pub != nil {
		if err := s.pub.PublishGranted(rec); err != nil {
			log.Warn("failed to publish entitlement event", sl.Err(err))
		}
	}
	return true, nil
}

// ListActive возвращает действующие записи для сверки локального кеша.
func (s *Service) ListActive(ctx context.Context, tripID, userID string) ([]models.EntitlementRecord, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListActive(ctx, tripID, userID, s.now())
}

func (s *Service) enqueue(ctx context.Context, log *slog.Logger, rec models.EntitlementRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Push(ctx, rec); err != nil {
		log.Warn("failed to journal pending entitlement", sl.Err(err))
		return
	}
	log.Info("entitlement journaled for reconciliation", slog.String("doc_id", rec.DocID()))
}
