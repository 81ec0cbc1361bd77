package entitlements

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/wanderplan/entitlements/internal/http/middlewarectx"
	"github.com/wanderplan/entitlements/internal/models"
)

// MockService реализует интерфейс entitlements.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) ListActive(ctx context.Context, tripID, userID string) ([]models.EntitlementRecord, error) {
	args := m.Called(ctx, tripID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EntitlementRecord), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestEntitlementsHandler(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		ctxUID         string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "active records for user",
			query: "?userId=user-1",
			setupMock: func(m *MockService) {
				m.On("ListActive", mock.Anything, "", "user-1").
					Return([]models.EntitlementRecord{
						{TripID: "trip-1", UserID: "user-1", ExpiresAt: 1900000000000, Source: models.SourceGooglePlay},
					}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"tripId":"trip-1"`,
		},
		{
			name:   "user id falls back to bearer identity",
			ctxUID: "user-2",
			setupMock: func(m *MockService) {
				m.On("ListActive", mock.Anything, "", "user-2").
					Return(nil, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"entitlements":[]`,
		},
		{
			name:  "store error",
			query: "?userId=user-1",
			setupMock: func(m *MockService) {
				m.On("ListActive", mock.Anything, "", "user-1").
					Return(nil, errors.New("firestore unavailable")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"ok":false,"error":"store"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMock(service)

			handler := New(newNoopLogger(), service)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/entitlements"+tt.query, nil)
			if tt.ctxUID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, tt.ctxUID))
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			service.AssertExpectations(t)
		})
	}
}
