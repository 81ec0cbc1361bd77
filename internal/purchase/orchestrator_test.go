package purchase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/wanderplan/entitlements/internal/models"
	"github.com/wanderplan/entitlements/internal/premiumcache"
)

const testProduct = "premium_subscription_01"

// fakeBilling имитирует нативный биллинг и считает активные подписки
// на события токенов: после завершения ожидания счётчик обязан вернуться к нулю.
type fakeBilling struct {
	ready      bool
	hasProduct bool
	productErr error
	launchErr  error
	eventToken *Token
	lastToken  *Token
	lastErr    error

	activeSubs int32
}

func (f *fakeBilling) Ready() bool { return f.ready }

func (f *fakeBilling) HasProduct(_ context.Context, _ string) (bool, error) {
	return f.hasProduct, f.productErr
}

func (f *fakeBilling) LaunchPurchaseFlow(_ context.Context, _ string) error {
	return f.launchErr
}

func (f *fakeBilling) SubscribeTokens(_ string) (<-chan Token, func()) {
	atomic.AddInt32(&f.activeSubs, 1)
	ch := make(chan Token, 1)
	if f.eventToken != nil {
		ch <- *f.eventToken
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() { atomic.AddInt32(&f.activeSubs, -1) })
	}
}

func (f *fakeBilling) LastKnownToken(_ context.Context, _ string) (Token, bool, error) {
	if f.lastErr != nil {
		return Token{}, false, f.lastErr
	}
	if f.lastToken != nil {
		return *f.lastToken, true, nil
	}
	return Token{}, false, nil
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, tripID, userID, token, productID string) models.VerificationOutcome {
	args := m.Called(ctx, tripID, userID, token, productID)
	return args.Get(0).(models.VerificationOutcome)
}

type MockAcknowledger struct {
	mock.Mock
}

func (m *MockAcknowledger) Acknowledge(ctx context.Context, token, productID string) error {
	args := m.Called(ctx, token, productID)
	return args.Error(0)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Store(ctx context.Context, rec models.EntitlementRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

type MockRestorer struct {
	mock.Mock
}

func (m *MockRestorer) ListActive(ctx context.Context, tripID, userID string) ([]models.EntitlementRecord, error) {
	args := m.Called(ctx, tripID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EntitlementRecord), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newOrchestrator(billing *fakeBilling, verifier *MockVerifier, ack *MockAcknowledger, rec *MockRecorder, cache *premiumcache.Cache) *Orchestrator {
	return New(Deps{
		Billing:      billing,
		Verifier:     verifier,
		Acknowledger: ack,
		Recorder:     rec,
		Cache:        cache,
	}, Config{
		TokenWaitTime:   200 * time.Millisecond,
		DemoUserPattern: regexp.MustCompile("^demo-"),
		DemoGrantWindow: 30 * 24 * time.Hour,
	}, newNoopLogger())
}

func TestOrchestrator_CompletePurchase_Success(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UnixMilli()

	billing := &fakeBilling{
		ready:      true,
		hasProduct: true,
		eventToken: &Token{Value: "tok123"},
	}

	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "trip-1", "user-1", "tok123", testProduct).
		Return(models.Valid(expiry, "GPA.1", false)).Once()

	ack := new(MockAcknowledger)
	ack.On("Acknowledge", mock.Anything, "tok123", testProduct).Return(nil).Once()

	rec := new(MockRecorder)
	rec.On("Store", mock.Anything, mock.AnythingOfType("models.EntitlementRecord")).
		Return(true, nil).Once()

	cache := premiumcache.New()
	o := newOrchestrator(billing, verifier, ack, rec, cache)

	outcome := o.CompletePurchase(context.Background(), ProductContext{
		TripID: "trip-1", UserID: "user-1", ProductID: testProduct,
	})

	assert.True(t, outcome.OK)
	assert.True(t, cache.IsActive("trip-1"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&billing.activeSubs), "token listener leaked")
	verifier.AssertExpectations(t)
	ack.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestOrchestrator_CompletePurchase_TokenFromPoll(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UnixMilli()

	billing := &fakeBilling{
		ready:      true,
		hasProduct: true,
		lastToken:  &Token{Value: "tok-poll"},
	}

	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "trip-1", "user-1", "tok-poll", testProduct).
		Return(models.Valid(expiry, "GPA.2", true)).Once()

	rec := new(MockRecorder)
	rec.On("Store", mock.Anything, mock.AnythingOfType("models.EntitlementRecord")).
		Return(true, nil).Once()

	ack := new(MockAcknowledger)
	cache := premiumcache.New()
	o := newOrchestrator(billing, verifier, ack, rec, cache)

	outcome := o.CompletePurchase(context.Background(), ProductContext{
		TripID: "trip-1", UserID: "user-1", ProductID: testProduct,
	})

	assert.True(t, outcome.OK)
	assert.Equal(t, int32(0), atomic.LoadInt32(&billing.activeSubs))
	// проверка уже вернула acknowledged=true, второй acknowledge не нужен
	ack.AssertNotCalled(t, "Acknowledge", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_CompletePurchase_TokenTimeout(t *testing.T) {
	billing := &fakeBilling{ready: true, hasProduct: true}

	cache := premiumcache.New()
	o := newOrchestrator(billing, new(MockVerifier), new(MockAcknowledger), new(MockRecorder), cache)
	o.cfg.TokenWaitTime = 20 * time.Millisecond

	outcome := o.CompletePurchase(context.Background(), ProductContext{
		TripID: "trip-1", UserID: "user-1", ProductID: testProduct,
	})

	assert.False(t, outcome.OK)
	assert.Equal(t, ReasonTokenTimeout, outcome.Reason)
	assert.False(t, cache.IsActive("trip-1"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&billing.activeSubs), "token listener leaked after timeout")
}

func TestOrchestrator_CompletePurchase_CanceledWaitReleasesListener(t *testing.T) {
	billing := &fakeBilling{ready: true, hasProduct: true}

	o := newOrchestrator(billing, new(MockVerifier), new(MockAcknowledger), new(MockRecorder), premiumcache.New())
	o.cfg.TokenWaitTime = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcome := o.CompletePurchase(ctx, ProductContext{
		TripID: "trip-1", UserID: "user-1", ProductID: testProduct,
	})

	assert.False(t, outcome.OK)
	assert.Equal(t, ReasonTokenTimeout, outcome.Reason)
	assert.Equal(t, int32(0), atomic.LoadInt32(&billing.activeSubs), "listener must be unsubscribed on abandon")
}

func TestOrchestrator_CompletePurchase_Failures(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UnixMilli()

	tests := []struct {
		name           string
		billing        *fakeBilling
		setupVerifier  func(*MockVerifier)
		setupAck       func(*MockAcknowledger)
		expectedReason ErrorKind
		cacheGranted   bool
	}{
		{
			name:           "billing not ready for regular user",
			billing:        &fakeBilling{ready: false},
			expectedReason: ReasonProductUnavailable,
		},
		{
			name:           "product missing from catalog",
			billing:        &fakeBilling{ready: true, hasProduct: false},
			expectedReason: ReasonProductUnavailable,
		},
		{
			name:           "catalog query error",
			billing:        &fakeBilling{ready: true, productErr: errors.New("billing unavailable")},
			expectedReason: ReasonProductUnavailable,
		},
		{
			name:           "purchase flow rejected",
			billing:        &fakeBilling{ready: true, hasProduct: true, launchErr: errors.New("user canceled")},
			expectedReason: ReasonPurchaseRejected,
		},
		{
			name:    "verification invalid",
			billing: &fakeBilling{ready: true, hasProduct: true, eventToken: &Token{Value: "tok123"}},
			setupVerifier: func(v *MockVerifier) {
				v.On("Verify", mock.Anything, "trip-1", "user-1", "tok123", testProduct).
					Return(models.Invalid("expired")).Once()
			},
			expectedReason: ReasonVerifyInvalid,
		},
		{
			name:    "verification auth failure",
			billing: &fakeBilling{ready: true, hasProduct: true, eventToken: &Token{Value: "tok123"}},
			setupVerifier: func(v *MockVerifier) {
				v.On("Verify", mock.Anything, "trip-1", "user-1", "tok123", testProduct).
					Return(models.AuthFailure()).Once()
			},
			expectedReason: ReasonVerifyAuthFailure,
		},
		{
			name:    "verification network failure",
			billing: &fakeBilling{ready: true, hasProduct: true, eventToken: &Token{Value: "tok123"}},
			setupVerifier: func(v *MockVerifier) {
				v.On("Verify", mock.Anything, "trip-1", "user-1", "tok123", testProduct).
					Return(models.NetworkFailure()).Once()
			},
			expectedReason: ReasonVerifyNetworkFailure,
		},
		{
			name:    "acknowledge failure does not grant premium",
			billing: &fakeBilling{ready: true, hasProduct: true, eventToken: &Token{Value: "tok123"}},
			setupVerifier: func(v *MockVerifier) {
				v.On("Verify", mock.Anything, "trip-1", "user-1", "tok123", testProduct).
					Return(models.Valid(expiry, "GPA.1", false)).Once()
			},
			setupAck: func(a *MockAcknowledger) {
				a.On("Acknowledge", mock.Anything, "tok123", testProduct).
					Return(errors.New("http 503")).Once()
			},
			expectedReason: ReasonAckFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(MockVerifier)
			if tt.setupVerifier != nil {
				tt.setupVerifier(verifier)
			}
			ack := new(MockAcknowledger)
			if tt.setupAck != nil {
				tt.setupAck(ack)
			}
			rec := new(MockRecorder)
			cache := premiumcache.New()

			o := newOrchestrator(tt.billing, verifier, ack, rec, cache)

			outcome := o.CompletePurchase(context.Background(), ProductContext{
				TripID: "trip-1", UserID: "user-1", ProductID: testProduct,
			})

			assert.False(t, outcome.OK)
			assert.Equal(t, tt.expectedReason, outcome.Reason)
			assert.Equal(t, tt.cacheGranted, cache.IsActive("trip-1"))
			rec.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
			verifier.AssertExpectations(t)
			ack.AssertExpectations(t)
		})
	}
}

func TestOrchestrator_CompletePurchase_PersistFailedStillGrantsLocally(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UnixMilli()

	billing := &fakeBilling{ready: true, hasProduct: true, eventToken: &Token{Value: "tok123"}}

	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "trip-1", "user-1", "tok123", testProduct).
		Return(models.Valid(expiry, "GPA.1", true)).Once()

	rec := new(MockRecorder)
	rec.On("Store", mock.Anything, mock.AnythingOfType("models.EntitlementRecord")).
		Return(false, errors.New("network down")).Once()

	cache := premiumcache.New()
	o := newOrchestrator(billing, verifier, new(MockAcknowledger), rec, cache)

	outcome := o.CompletePurchase(context.Background(), ProductContext{
		TripID: "trip-1", UserID: "user-1", ProductID: testProduct,
	})

	assert.False(t, outcome.OK)
	assert.Equal(t, ReasonPersistFailed, outcome.Reason)
	assert.True(t, cache.IsActive("trip-1"), "local fast path keeps the session premium")
}

func TestOrchestrator_CompletePurchase_SoftStoreIsSuccess(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UnixMilli()

	billing := &fakeBilling{ready: true, hasProduct: true, eventToken: &Token{Value: "tok123"}}

	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "trip-1", "user-1", "tok123", testProduct).
		Return(models.Valid(expiry, "GPA.1", true)).Once()

	rec := new(MockRecorder)
	rec.On("Store", mock.Anything, mock.AnythingOfType("models.EntitlementRecord")).
		Return(false, nil).Once()

	cache := premiumcache.New()
	o := newOrchestrator(billing, verifier, new(MockAcknowledger), rec, cache)

	outcome := o.CompletePurchase(context.Background(), ProductContext{
		TripID: "trip-1", UserID: "user-1", ProductID: testProduct,
	})

	assert.True(t, outcome.OK)
	assert.True(t, cache.IsActive("trip-1"))
}

func TestOrchestrator_CompletePurchase_DemoFallback(t *testing.T) {
	billing := &fakeBilling{ready: false}

	verifier := new(MockVerifier)
	rec := new(MockRecorder)
	cache := premiumcache.New()
	o := newOrchestrator(billing, verifier, new(MockAcknowledger), rec, cache)

	outcome := o.CompletePurchase(context.Background(), ProductContext{
		TripID: "trip-1", UserID: "demo-tester", ProductID: testProduct,
	})

	assert.True(t, outcome.OK)
	assert.True(t, cache.IsActive("trip-1"))
	// демо-выдача локальная: ни авторитет, ни хранилище не участвуют
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	rec.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
}

func TestOrchestrator_RestoreEntitlements(t *testing.T) {
	now := time.Now()

	restorer := new(MockRestorer)
	restorer.On("ListActive", mock.Anything, "", "user-1").
		Return([]models.EntitlementRecord{
			{TripID: premiumcache.GlobalKey, ExpiresAt: now.Add(time.Hour).UnixMilli()},
			{TripID: "trip-old", ExpiresAt: now.Add(-time.Hour).UnixMilli()},
		}, nil).Once()

	cache := premiumcache.New()
	o := New(Deps{
		Billing:  &fakeBilling{},
		Restorer: restorer,
		Cache:    cache,
	}, Config{}, newNoopLogger())

	err := o.RestoreEntitlements(context.Background(), "user-1")

	assert.NoError(t, err)
	assert.True(t, cache.IsActive("any-trip"), "restored global record gates everything")
	assert.Len(t, cache.All(), 1, "expired records are not restored")
	restorer.AssertExpectations(t)
}
