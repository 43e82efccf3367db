package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/handlers"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/ledger"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/services/mocks"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/testutils"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils/response"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Success bool                    `json:"success"`
	Data    T                       `json:"data"`
	Error   *response.ErrorResponse `json:"error"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) envelope[T] {
	t.Helper()

	var env envelope[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))

	return env
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return bytes.NewBuffer(data)
}

func rupees(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func sampleCart() *models.CartResponse {
	return &models.CartResponse{
		UserID: "buyer-1",
		Items: []models.CartItemView{
			{ProductID: "tomato-1", Quantity: 2, UnitPrice: rupees(40), EffectivePrice: rupees(40), LineTotal: rupees(80)},
		},
		Total: models.CartTotalView{Subtotal: rupees(80), PlatformFee: rupees(2), GrandTotal: rupees(82), DisplayGrandTotal: "₹82.00"},
	}
}

func TestCartHandler_GetCart(t *testing.T) {
	t.Run("Success - Retrieve Cart", func(t *testing.T) {
		// Arrange
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		req := testutils.CreateTestRequestWithContext(http.MethodGet, "/api/v1/cart", nil, "buyer-1", nil)
		rr := httptest.NewRecorder()

		cartService.On("GetCart", mock.Anything, "buyer-1").Return(sampleCart(), nil).Once()

		// Act
		handler.GetCart()(rr, req)

		// Assert
		assert.Equal(t, http.StatusOK, rr.Code)
		env := decode[models.CartResponse](t, rr)
		assert.True(t, env.Success)
		require.Len(t, env.Data.Items, 1)
		assert.Equal(t, "₹82.00", env.Data.Total.DisplayGrandTotal)
	})

	t.Run("Failure - Unauthenticated", func(t *testing.T) {
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		req := testutils.CreateTestRequestWithoutContext(http.MethodGet, "/api/v1/cart", nil, nil)
		rr := httptest.NewRecorder()

		handler.GetCart()(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		cartService.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
	})
}

func TestCartHandler_AddItem(t *testing.T) {
	t.Run("Success - Item Added", func(t *testing.T) {
		// Arrange
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		// client supplied prices have nowhere to land
		body := jsonBody(t, map[string]any{"product_id": "tomato-1", "quantity": 2, "unit_price": "1", "negotiated_price": "1"})
		req := testutils.CreateTestRequestWithContext(http.MethodPost, "/api/v1/cart/items", body, "buyer-1", nil)
		rr := httptest.NewRecorder()

		cartService.On("AddItem", mock.Anything, "buyer-1", &models.AddItemRequest{ProductID: "tomato-1", Quantity: 2}).
			Return(sampleCart(), nil).Once()

		// Act
		handler.AddItem()(rr, req)

		// Assert
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, decode[models.CartResponse](t, rr).Success)
	})

	t.Run("Failure - Zero Quantity Fails Validation", func(t *testing.T) {
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		body := jsonBody(t, map[string]any{"product_id": "tomato-1", "quantity": 0})
		req := testutils.CreateTestRequestWithContext(http.MethodPost, "/api/v1/cart/items", body, "buyer-1", nil)
		rr := httptest.NewRecorder()

		handler.AddItem()(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		env := decode[any](t, rr)
		assert.Equal(t, appErrors.ErrCodeValidation, env.Error.Code)
	})

	t.Run("Failure - Malformed JSON", func(t *testing.T) {
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		req := testutils.CreateTestRequestWithContext(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("{bad"), "buyer-1", nil)
		rr := httptest.NewRecorder()

		handler.AddItem()(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, appErrors.ErrCodeBadRequest, decode[any](t, rr).Error.Code)
	})

	t.Run("Failure - Listing Has No Price", func(t *testing.T) {
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		body := jsonBody(t, map[string]any{"product_id": "tomato-1", "quantity": 1})
		req := testutils.CreateTestRequestWithContext(http.MethodPost, "/api/v1/cart/items", body, "buyer-1", nil)
		rr := httptest.NewRecorder()

		cartService.On("AddItem", mock.Anything, "buyer-1", mock.Anything).
			Return(nil, appErrors.ValidationError("Unit price must be positive").WithError(ledger.ErrInvalidPrice)).Once()

		handler.AddItem()(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Unit price must be positive", decode[any](t, rr).Error.Message)
	})
}

func TestCartHandler_UpdateQuantity(t *testing.T) {
	t.Run("Success - Quantity Updated", func(t *testing.T) {
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		req := testutils.CreateTestRequestWithContext(http.MethodPut, "/api/v1/cart/items/tomato-1",
			jsonBody(t, models.UpdateQuantityRequest{Quantity: 5}), "buyer-1", map[string]string{"productId": "tomato-1"})
		rr := httptest.NewRecorder()

		cartService.On("UpdateQuantity", mock.Anything, "buyer-1", "tomato-1", 5).Return(sampleCart(), nil).Once()

		handler.UpdateQuantity()(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Failure - Item Not In Cart", func(t *testing.T) {
		cartService := mocks.NewMockCartService(t)
		handler := handlers.NewCartHandler(cartService)
		req := testutils.CreateTestRequestWithContext(http.MethodPut, "/api/v1/cart/items/potato-1",
			jsonBody(t, models.UpdateQuantityRequest{Quantity: 5}), "buyer-1", map[string]string{"productId": "potato-1"})
		rr := httptest.NewRecorder()

		cartService.On("UpdateQuantity", mock.Anything, "buyer-1", "potato-1", 5).
			Return(nil, appErrors.NotFoundError("Item not found in the cart")).Once()

		handler.UpdateQuantity()(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCartHandler_RemoveClearTotal(t *testing.T) {
	cartService := mocks.NewMockCartService(t)
	handler := handlers.NewCartHandler(cartService)

	t.Run("Success - Remove Item", func(t *testing.T) {
		req := testutils.CreateTestRequestWithContext(http.MethodDelete, "/api/v1/cart/items/tomato-1", nil, "buyer-1", map[string]string{"productId": "tomato-1"})
		rr := httptest.NewRecorder()
		cartService.On("RemoveItem", mock.Anything, "buyer-1", "tomato-1").Return(&models.CartResponse{UserID: "buyer-1"}, nil).Once()

		handler.RemoveItem()(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Success - Clear Cart", func(t *testing.T) {
		req := testutils.CreateTestRequestWithContext(http.MethodDelete, "/api/v1/cart", nil, "buyer-1", nil)
		rr := httptest.NewRecorder()
		cartService.On("ClearCart", mock.Anything, "buyer-1").Return(nil).Once()

		handler.ClearCart()(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("Success - Total", func(t *testing.T) {
		req := testutils.CreateTestRequestWithContext(http.MethodGet, "/api/v1/cart/total", nil, "buyer-1", nil)
		rr := httptest.NewRecorder()
		total := sampleCart().Total
		cartService.On("GetTotal", mock.Anything, "buyer-1").Return(&total, nil).Once()

		handler.GetTotal()(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		env := decode[models.CartTotalView](t, rr)
		assert.True(t, rupees(82).Equal(env.Data.GrandTotal))
	})
}
