package purchase

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/wanderplan/entitlements/internal/lib/sl"
	"github.com/wanderplan/entitlements/internal/models"
	"github.com/wanderplan/entitlements/internal/premiumcache"
)

// BillingClient — явно сконструированный клиент нативного биллинга
// с собственным жизненным циклом; передаётся оркестратору снаружи,
// глобального состояния нет.
type BillingClient interface {
	// Ready сообщает, инициализирован ли биллинг на этой сборке.
	Ready() bool
	// HasProduct проверяет наличие продукта в каталоге авторитета.
	HasProduct(ctx context.Context, productID string) (bool, error)
	// LaunchPurchaseFlow запускает нативный флоу; ошибка — немедленный отказ.
	LaunchPurchaseFlow(ctx context.Context, productID string) error
	// SubscribeTokens подписывается на события токенов. Возвращённую
	// функцию отписки обязан вызвать подписчик, когда ожидание завершено.
	SubscribeTokens(productID string) (<-chan Token, func())
	// LastKnownToken опрашивает последний известный токен.
	LastKnownToken(ctx context.Context, productID string) (Token, bool, error)
}

// Verifier проверяет токен; исход тегирован, ошибок не бросает.
type Verifier interface {
	Verify(ctx context.Context, tripID, userID, token, productID string) models.VerificationOutcome
}

// Acknowledger подтверждает покупку авторитету.
type Acknowledger interface {
	Acknowledge(ctx context.Context, token, productID string) error
}

// Recorder записывает долговременную entitlement-запись.
type Recorder interface {
	Store(ctx context.Context, rec models.EntitlementRecord) (bool, error)
}

// Restorer читает действующие записи для сверки кеша на старте.
type Restorer interface {
	ListActive(ctx context.Context, tripID, userID string) ([]models.EntitlementRecord, error)
}

// Config — настройки оркестратора.
type Config struct {
	// TokenWaitTime ограничивает ожидание токена на шаге 3.
	TokenWaitTime time.Duration
	// DemoUserPattern распознаёт демо-пользователей для локальной выдачи.
	DemoUserPattern *regexp.Regexp
	// DemoGrantWindow — фиксированное окно демо-выдачи.
	DemoGrantWindow time.Duration
}

// Deps — зависимости оркестратора.
type Deps struct {
	Billing      BillingClient
	Verifier     Verifier
	Acknowledger Acknowledger
	Recorder     Recorder
	Restorer     Restorer
	Cache        *premiumcache.Cache
}

// Orchestrator последовательно проводит покупку через verify, acknowledge
// и store. Шаги строго последовательны: корректность каждого зависит от
// результата предыдущего. Автоматических повторов нет.
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
	now  func() time.Time
}

// New создает новый экземпляр Orchestrator.
func New(deps Deps, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.TokenWaitTime <= 0 {
		cfg.TokenWaitTime = 15 * time.Second
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  log,
		now:  time.Now,
	}
}

// CompletePurchase проводит полный прогон пайплайна для pc.
// Возвращает тегированный Outcome; вызывающая сторона решает, повторять ли
// весь пайплайн новым действием пользователя.
func (o *Orchestrator) CompletePurchase(ctx context.Context, pc ProductContext) Outcome {
	const op = "purchase.CompletePurchase"
	log := o.log.With(
		slog.String("op", op),
		slog.String("trip_id", pc.TripID),
		slog.String("product_id", pc.ProductID),
	)

	if !o.deps.Billing.Ready() {
		if o.isDemoUser(pc.UserID) {
			return o.grantDemo(log, pc)
		}
		log.Warn("billing client is not ready")
		return failure(ReasonProductUnavailable)
	}

	ok, err := o.deps.Billing.HasProduct(ctx, pc.ProductID)
	if err != nil || !ok {
		if err != nil {
			log.Error("failed to query product catalog", sl.Err(err))
		}
		return failure(ReasonProductUnavailable)
	}

	if err := o.deps.Billing.LaunchPurchaseFlow(ctx, pc.ProductID); err != nil {
		log.Warn("purchase flow rejected", sl.Err(err))
		return failure(ReasonPurchaseRejected)
	}

	token, ok := o.awaitToken(ctx, pc.ProductID)
	if !ok {
		log.Warn("no purchase token before deadline")
		return failure(ReasonTokenTimeout)
	}

	outcome := o.deps.Verifier.Verify(ctx, pc.TripID, pc.UserID, token.Value, pc.ProductID)
	switch outcome.State {
	case models.VerificationValid:
	case models.VerificationAuthFailure:
		return failure(ReasonVerifyAuthFailure)
	case models.VerificationNetworkFailure:
		return failure(ReasonVerifyNetworkFailure)
	default:
		log.Warn("verification rejected purchase", slog.String("reason", outcome.Reason))
		return failure(ReasonVerifyInvalid)
	}

	// Неподтверждённая покупка не считается состоявшейся: при отказе
	// acknowledge премиум не выдаётся, повтор безопаснее рассогласования.
	if !outcome.Acknowledged {
		if err := o.deps.Acknowledger.Acknowledge(ctx, token.Value, pc.ProductID); err != nil {
			log.Error("failed to acknowledge purchase", sl.Err(err))
			return failure(ReasonAckFailed)
		}
	}

	rec := models.EntitlementRecord{
		TripID:    pc.TripID,
		UserID:    pc.UserID,
		ExpiresAt: outcome.ExpiryTimeMillis,
		OrderID:   outcome.OrderID,
		Source:    models.SourceGooglePlay,
		CreatedAt: o.now().UTC(),
	}

	stored, err := o.deps.Recorder.Store(ctx, rec)
	if err != nil {
		// Политика: непрерывность локального UX важнее строгой глобальной
		// согласованности; расхождение закрывает сверка на следующем старте.
		log.Error("failed to persist entitlement", sl.Err(err))
		o.deps.Cache.Grant(pc.TripID, outcome.ExpiryTimeMillis)
		return failure(ReasonPersistFailed)
	}
	if !stored {
		log.Warn("entitlement accepted but not durably stored")
	}

	o.deps.Cache.Grant(pc.TripID, outcome.ExpiryTimeMillis)
	log.Info("purchase completed",
		slog.Int64("expiry_time_millis", outcome.ExpiryTimeMillis),
		slog.Bool("stored", stored))
	return success()
}

// awaitToken ждёт токен: гонка подписки на события против опроса последнего
// известного токена, ограниченная TokenWaitTime. Побеждает ровно один
// источник; отписка выполняется безусловно при любом исходе.
func (o *Orchestrator) awaitToken(ctx context.Context, productID string) (Token, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TokenWaitTime)
	defer cancel()

	events, unsubscribe := o.deps.Billing.SubscribeTokens(productID)
	defer unsubscribe()

	polled := make(chan Token, 1)
	go func() {
		token, ok, err := o.deps.Billing.LastKnownToken(ctx, productID)
		if err == nil && ok {
			polled <- token
		}
	}()

	select {
	case token := <-events:
		return token, true
	case token := <-polled:
		return token, true
	case <-ctx.Done():
		return Token{}, false
	}
}

// RestoreEntitlements сверяет локальный кеш с хранилищем: вытягивает
// действующие записи пользователя и выдаёт их кешу заново.
func (o *Orchestrator) RestoreEntitlements(ctx context.Context, userID string) error {
	const op = "purchase.RestoreEntitlements"

	if o.deps.Restorer == nil {
		return nil
	}

	recs, err := o.deps.Restorer.ListActive(ctx, "", userID)
	if err != nil {
		return err
	}

	now := o.now()
	restored := 0
	for _, rec := range recs {
		if rec.Active(now) {
			o.deps.Cache.Grant(rec.TripID, rec.ExpiresAt)
			restored++
		}
	}
	o.log.Info("entitlements restored", slog.String("op", op), slog.Int("count", restored))
	return nil
}

func (o *Orchestrator) isDemoUser(userID string) bool {
	return o.cfg.DemoUserPattern != nil && userID != "" && o.cfg.DemoUserPattern.MatchString(userID)
}

// grantDemo — локальная демо-выдача: фиксированное окно, без авторитета
// и без долговременной записи.
func (o *Orchestrator) grantDemo(log *slog.Logger, pc ProductContext) Outcome {
	expiresAt := o.now().Add(o.cfg.DemoGrantWindow).UnixMilli()
	o.deps.Cache.Grant(pc.TripID, expiresAt)
	log.Info("demo entitlement granted locally",
		slog.String("source", string(models.SourceDemo)),
		slog.Int64("expires_at", expiresAt))
	return success()
}
