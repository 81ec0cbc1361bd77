package acknowledgment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const expectedProduct = "premium_subscription_01"

// MockAuthority имитирует идемпотентный acknowledge-эндпоинт авторитета:
// повторный вызов для того же токена так же успешен, как первый.
type MockAuthority struct {
	mock.Mock
}

func (m *MockAuthority) AcknowledgeSubscription(ctx context.Context, productID, token string) error {
	args := m.Called(ctx, productID, token)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestService_Acknowledge(t *testing.T) {
	tests := []struct {
		name          string
		productID     string
		authority     bool
		setupMocks    func(*MockAuthority)
		expectedError error
	}{
		{
			name:      "success",
			productID: expectedProduct,
			authority: true,
			setupMocks: func(a *MockAuthority) {
				a.On("AcknowledgeSubscription", mock.Anything, expectedProduct, "tok123").
					Return(nil).Once()
			},
		},
		{
			name:          "product mismatch",
			productID:     "some_other_product",
			authority:     true,
			setupMocks:    func(_ *MockAuthority) {},
			expectedError: ErrProductMismatch,
		},
		{
			name:          "no credential",
			productID:     expectedProduct,
			authority:     false,
			setupMocks:    func(_ *MockAuthority) {},
			expectedError: ErrNoCredential,
		},
		{
			name:      "authority error",
			productID: expectedProduct,
			authority: true,
			setupMocks: func(a *MockAuthority) {
				a.On("AcknowledgeSubscription", mock.Anything, expectedProduct, "tok123").
					Return(errors.New("http 503")).Once()
			},
			expectedError: errors.New("http 503"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := new(MockAuthority)
			tt.setupMocks(authority)

			var service *Service
			if tt.authority {
				service = New(authority, expectedProduct, newNoopLogger())
			} else {
				service = New(nil, expectedProduct, newNoopLogger())
			}

			err := service.Acknowledge(context.Background(), "tok123", tt.productID)

			if tt.expectedError != nil {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}
			authority.AssertExpectations(t)
		})
	}
}

func TestService_Acknowledge_SecondCallIsSafe(t *testing.T) {
	authority := new(MockAuthority)
	authority.On("AcknowledgeSubscription", mock.Anything, expectedProduct, "tok123").
		Return(nil).Twice()

	service := New(authority, expectedProduct, newNoopLogger())

	assert.NoError(t, service.Acknowledge(context.Background(), "tok123", expectedProduct))
	assert.NoError(t, service.Acknowledge(context.Background(), "tok123", expectedProduct))
	authority.AssertExpectations(t)
}
