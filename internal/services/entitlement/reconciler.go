package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/wanderplan/entitlements/internal/lib/sl"
)

// Reconciler догоняет документное хранилище: на старте и по тикеру
// повторяет записи из журнала. Ключ документа детерминирован, поэтому
// повтор той же записи не создаёт дубликата.
type Reconciler struct {
	repo     Repository
	journal  Journal
	interval time.Duration
	log      *slog.Logger
}

// NewReconciler создает новый экземпляр Reconciler.
func NewReconciler(repo Repository, journal Journal, interval time.Duration, log *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:     repo,
		journal:  journal,
		interval: interval,
		log:      log,
	}
}

// Run разбирает журнал сразу, затем с интервалом до отмены контекста.
func (r *Reconciler) Run(ctx context.Context) {
	const op = "services.entitlement.reconciler.Run"
	log := r.log.With(slog.String("op", op))

	if r.repo == nil || r.journal == nil {
		log.Info("reconciler disabled: store or journal is not configured")
		return
	}

	r.drain(ctx, log)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx, log)
		}
	}
}

// drain повторяет отложенные записи. При первой неудаче запись
// возвращается в журнал и проход завершается до следующего тика.
func (r *Reconciler) drain(ctx context.Context, log *slog.Logger) {
	for {
		rec, ok, err := r.journal.Pop(ctx)
		if err != nil {
			log.Warn("failed to pop pending entitlement", sl.Err(err))
			return
		}
		if !ok {
			return
		}

		if err := r.repo.Upsert(ctx, rec); err != nil {
			log.Warn("retry failed, returning entitlement to journal",
				slog.String("doc_id", rec.DocID()), sl.Err(err))
			if pushErr := r.journal.Push(ctx, rec); pushErr != nil {
				log.Error("failed to return entitlement to journal", sl.Err(pushErr))
			}
			return
		}
		log.Info("reconciled pending entitlement", slog.String("doc_id", rec.DocID()))
	}
}
