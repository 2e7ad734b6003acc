package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"treeadopt/internal/auth"
	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrderHandler_Create(t *testing.T) {
	logger := zerolog.Nop()
	caller := &auth.Principal{ID: uuid.New(), Role: auth.RoleBuyer}
	order := &model.Order{ID: uuid.New(), Code: "TA-ABCDEF12", TotalAmount: decimal.NewFromInt(800)}
	validBody := `{"email":"a@example.com","items":[{"treeId":"oak","quantity":2}]}`

	tests := []struct {
		name           string
		caller         *auth.Principal
		body           string
		mockCreated    bool
		mockError      error
		expectService  bool
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Created",
			caller:         caller,
			body:           validBody,
			mockCreated:    true,
			expectService:  true,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Duplicate returns existing",
			caller:         caller,
			body:           validBody,
			mockCreated:    false,
			expectService:  true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid JSON",
			caller:         caller,
			body:           `{"items":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
		{
			name:           "Unknown field",
			caller:         caller,
			body:           `{"email":"a@example.com","items":[],"coupon":"X"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
		{
			name:           "Trailing data",
			caller:         caller,
			body:           validBody + `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
		{
			name:           "Invalid quantity",
			caller:         caller,
			body:           validBody,
			mockError:      model.ErrInvalidQuantity,
			expectService:  true,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidQuantity,
		},
		{
			name:           "Internal error",
			caller:         caller,
			body:           validBody,
			mockError:      errors.New("database error"),
			expectService:  true,
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   model.ErrCodeInternalError,
		},
		{
			name:           "Unauthenticated",
			body:           validBody,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   model.ErrCodeUnauthorised,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := NewOrderHandler(mockService, logger)

			if tt.expectService {
				if tt.mockError != nil {
					mockService.On("CreateOrder", mock.Anything, tt.caller, mock.AnythingOfType("*model.OrderRequest")).Return(nil, false, tt.mockError)
				} else {
					mockService.On("CreateOrder", mock.Anything, tt.caller, mock.AnythingOfType("*model.OrderRequest")).Return(order, tt.mockCreated, nil)
				}
			}

			req := as(httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(tt.body)), tt.caller)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.Create(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				var resp model.ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.Equal(t, tt.expectedCode, resp.Error)
				assert.NotEmpty(t, resp.Message)
			}
			if tt.expectService {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOrderHandler_Create_DecodesItems(t *testing.T) {
	mockService := new(MockOrderService)
	handler := NewOrderHandler(mockService, zerolog.Nop())
	caller := &auth.Principal{ID: uuid.New(), Role: auth.RoleBuyer}

	mockService.On("CreateOrder", mock.Anything, caller, mock.MatchedBy(func(r *model.OrderRequest) bool {
		return len(r.Items) == 2 && r.Items[1].AdoptionType == model.AdoptionGift && r.Items[1].RecipientName == "Ravi"
	})).Return(&model.Order{ID: uuid.New()}, true, nil)

	body := `{"buyerName":"Asha","email":"a@example.com","items":[` +
		`{"treeId":"oak","quantity":2},` +
		`{"treeId":"teak","quantity":1,"adoptionType":"gift","recipientName":"Ravi"}]}`
	req := as(httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body)), caller)
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_GetByCode(t *testing.T) {
	caller := &auth.Principal{ID: uuid.New(), Role: auth.RoleBuyer}

	tests := []struct {
		name           string
		mockReturn     *model.Order
		mockError      error
		expectedStatus int
	}{
		{name: "Found", mockReturn: &model.Order{ID: uuid.New(), Code: "TA-1"}, expectedStatus: http.StatusOK},
		{name: "Not found", mockError: model.ErrOrderNotFound, expectedStatus: http.StatusNotFound},
		{name: "Not the owner", mockError: model.ErrForbidden, expectedStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := NewOrderHandler(mockService, zerolog.Nop())
			mockService.On("GetByCode", mock.Anything, caller, "TA-1").Return(tt.mockReturn, tt.mockError)

			req := as(httptest.NewRequest(http.MethodGet, "/api/orders/TA-1", nil), caller)
			req.SetPathValue("code", "TA-1")
			w := httptest.NewRecorder()

			handler.GetByCode(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_Cancel(t *testing.T) {
	caller := &auth.Principal{ID: uuid.New(), Role: auth.RoleBuyer}
	orderID := uuid.New()

	tests := []struct {
		name           string
		pathID         string
		mockError      error
		expectService  bool
		expectedStatus int
	}{
		{name: "Cancelled", pathID: orderID.String(), expectService: true, expectedStatus: http.StatusOK},
		{name: "Task already started", pathID: orderID.String(), mockError: model.ErrNotCancellable, expectService: true, expectedStatus: http.StatusConflict},
		{name: "Invalid ID", pathID: "not-a-uuid", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := NewOrderHandler(mockService, zerolog.Nop())
			if tt.expectService {
				if tt.mockError != nil {
					mockService.On("Cancel", mock.Anything, caller, orderID).Return(nil, tt.mockError)
				} else {
					mockService.On("Cancel", mock.Anything, caller, orderID).Return(&model.Order{ID: orderID, Status: model.OrderCancelled}, nil)
				}
			}

			req := as(httptest.NewRequest(http.MethodPost, "/api/orders/"+tt.pathID+"/cancel", nil), caller)
			req.SetPathValue("id", tt.pathID)
			w := httptest.NewRecorder()

			handler.Cancel(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_UpdateNotes(t *testing.T) {
	mockService := new(MockOrderService)
	handler := NewOrderHandler(mockService, zerolog.Nop())
	orderID := uuid.New()

	mockService.On("UpdateNotes", mock.Anything, orderID, "gate code 1234").Return(&model.Order{ID: orderID, AdminNotes: "gate code 1234"}, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/orders/"+orderID.String()+"/notes", bytes.NewBufferString(`{"notes":"gate code 1234"}`))
	req.SetPathValue("id", orderID.String())
	w := httptest.NewRecorder()

	handler.UpdateNotes(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got model.Order
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "gate code 1234", got.AdminNotes)
}
