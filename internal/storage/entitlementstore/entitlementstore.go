// Package entitlementstore реализует документное хранилище entitlement-записей
// на основе Firestore. Ключ документа детерминирован (tripId + "-" + expiresAt),
// поэтому повторная запись того же результата проверки схлопывается upsert-ом.
package entitlementstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/wanderplan/entitlements/internal/models"
)

// Config — настройки подключения к Firestore.
type Config struct {
	ProjectID       string
	CredentialsJSON string
	Collection      string
}

// Store инкапсулирует клиент Firestore и имя коллекции.
type Store struct {
	client     *firestore.Client
	collection string
}

// New создает подключение к Firestore по учётным данным сервисного аккаунта.
func New(ctx context.Context, cfg Config) (*Store, error) {
	const op = "entitlementstore.New"

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("%s: project id is empty", op)
	}

	opts := []option.ClientOption{}
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{client: client, collection: cfg.Collection}, nil
}

// Upsert записывает документ по ключу rec.DocID(). Set с полным документом
// даёт upsert-семантику: существующий документ перезаписывается тем же телом.
func (s *Store) Upsert(ctx context.Context, rec models.EntitlementRecord) error {
	const op = "entitlementstore.Upsert"

	_, err := s.client.Collection(s.collection).Doc(rec.DocID()).Set(ctx, rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListActive возвращает записи с expiresAt > now, отфильтрованные
// по tripID и userID, если те заданы.
func (s *Store) ListActive(ctx context.Context, tripID, userID string, now time.Time) ([]models.EntitlementRecord, error) {
	const op = "entitlementstore.ListActive"

	q := s.client.Collection(s.collection).Query.
		Where("expiresAt", ">", now.UnixMilli())
	if tripID != "" {
		q = q.Where("tripId", "==", tripID)
	}
	if userID != "" {
		q = q.Where("userId", "==", userID)
	}

	var out []models.EntitlementRecord
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var rec models.EntitlementRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close закрывает клиент Firestore.
func (s *Store) Close() error {
	return s.client.Close()
}
