package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/wanderplan/entitlements/internal/models"
	"github.com/wanderplan/entitlements/internal/playbilling"
)

const expectedProduct = "premium_subscription_01"

type MockAuthority struct {
	mock.Mock
	calls int
}

func (m *MockAuthority) GetSubscription(ctx context.Context, productID, token string) (*playbilling.SubscriptionPurchase, error) {
	m.calls++
	args := m.Called(ctx, productID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*playbilling.SubscriptionPurchase), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestService_Verify_ProductMismatchSkipsNetwork(t *testing.T) {
	authority := new(MockAuthority)
	service := New(authority, expectedProduct, newNoopLogger())

	outcome := service.Verify(context.Background(), "trip-1", "user-1", "tok123", "some_other_product")

	assert.Equal(t, models.VerificationInvalid, outcome.State)
	assert.Equal(t, "product", outcome.Reason)
	assert.Equal(t, 0, authority.calls, "authority must not be called on product mismatch")
}

func TestService_Verify_NoCredential(t *testing.T) {
	service := New(nil, expectedProduct, newNoopLogger())

	outcome := service.Verify(context.Background(), "trip-1", "user-1", "tok123", expectedProduct)

	assert.Equal(t, models.VerificationAuthFailure, outcome.State)
}

func TestService_Verify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cancelReason := int64(0)

	tests := []struct {
		name          string
		setupMocks    func(*MockAuthority)
		expectedState models.VerificationState
		expectedReason string
	}{
		{
			name: "valid purchase",
			setupMocks: func(a *MockAuthority) {
				a.On("GetSubscription", mock.Anything, expectedProduct, "tok123").
					Return(&playbilling.SubscriptionPurchase{
						ExpiryTimeMillis: now.UnixMilli() + 1000000,
						OrderID:          "GPA.1234",
						Acknowledged:     false,
					}, nil).Once()
			},
			expectedState: models.VerificationValid,
		},
		{
			name: "expired purchase",
			setupMocks: func(a *MockAuthority) {
				a.On("GetSubscription", mock.Anything, expectedProduct, "tok123").
					Return(&playbilling.SubscriptionPurchase{
						ExpiryTimeMillis: now.UnixMilli() - 1000,
					}, nil).Once()
			},
			expectedState:  models.VerificationInvalid,
			expectedReason: "expired",
		},
		{
			name: "canceled purchase",
			setupMocks: func(a *MockAuthority) {
				a.On("GetSubscription", mock.Anything, expectedProduct, "tok123").
					Return(&playbilling.SubscriptionPurchase{
						ExpiryTimeMillis: now.UnixMilli() + 1000000,
						CancelReason:     &cancelReason,
					}, nil).Once()
			},
			expectedState:  models.VerificationInvalid,
			expectedReason: "canceled",
		},
		{
			name: "authority rejected token",
			setupMocks: func(a *MockAuthority) {
				a.On("GetSubscription", mock.Anything, expectedProduct, "tok123").
					Return(nil, playbilling.ErrRejected).Once()
			},
			expectedState:  models.VerificationInvalid,
			expectedReason: "verify",
		},
		{
			name: "authority unreachable",
			setupMocks: func(a *MockAuthority) {
				a.On("GetSubscription", mock.Anything, expectedProduct, "tok123").
					Return(nil, errors.New("dial tcp: connection refused")).Once()
			},
			expectedState: models.VerificationNetworkFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := new(MockAuthority)
			tt.setupMocks(authority)

			service := New(authority, expectedProduct, newNoopLogger())
			service.now = func() time.Time { return now }

			outcome := service.Verify(context.Background(), "trip-1", "user-1", "tok123", expectedProduct)

			assert.Equal(t, tt.expectedState, outcome.State)
			if tt.expectedReason != "" {
				assert.Equal(t, tt.expectedReason, outcome.Reason)
			}
			authority.AssertExpectations(t)
		})
	}
}

func TestService_Verify_ValidCarriesExpiryAndOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.UnixMilli() + 1000000

	authority := new(MockAuthority)
	authority.On("GetSubscription", mock.Anything, expectedProduct, "tok123").
		Return(&playbilling.SubscriptionPurchase{
			ExpiryTimeMillis: expiry,
			OrderID:          "GPA.5678",
			Acknowledged:     true,
		}, nil).Once()

	service := New(authority, expectedProduct, newNoopLogger())
	service.now = func() time.Time { return now }

	outcome := service.Verify(context.Background(), "trip-1", "user-1", "tok123", expectedProduct)

	assert.Equal(t, models.VerificationValid, outcome.State)
	assert.Equal(t, expiry, outcome.ExpiryTimeMillis)
	assert.Equal(t, "GPA.5678", outcome.OrderID)
	assert.True(t, outcome.Acknowledged)
	authority.AssertExpectations(t)
}
