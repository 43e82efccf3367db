package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/handlers"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/services/mocks"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProductHandler_ListProducts(t *testing.T) {
	t.Run("Success - Filters Forwarded", func(t *testing.T) {
		// Arrange
		productService := mocks.NewMockProductService(t)
		handler := handlers.NewProductHandler(productService)
		req := testutils.CreateTestRequestWithContext(http.MethodGet, "/api/v1/products?category=vegetables&search=tomato&farmer_id=farmer-1", nil, "buyer-1", nil)
		rr := httptest.NewRecorder()

		productService.On("ListProducts", mock.Anything, marketapi.ProductQuery{
			Category: "vegetables",
			Search:   "tomato",
			FarmerID: "farmer-1",
		}).Return([]models.Product{{ID: "tomato-1", Name: "Tomatoes", Price: rupees(40), Negotiable: true}}, nil).Once()

		// Act
		handler.ListProducts()(rr, req)

		// Assert
		assert.Equal(t, http.StatusOK, rr.Code)
		env := decode[[]models.Product](t, rr)
		require.Len(t, env.Data, 1)
		assert.True(t, env.Data[0].Negotiable)
	})

	t.Run("Failure - Upstream Error", func(t *testing.T) {
		productService := mocks.NewMockProductService(t)
		handler := handlers.NewProductHandler(productService)
		req := testutils.CreateTestRequestWithContext(http.MethodGet, "/api/v1/products", nil, "buyer-1", nil)
		rr := httptest.NewRecorder()

		productService.On("ListProducts", mock.Anything, marketapi.ProductQuery{}).
			Return(nil, appErrors.TransportError("Marketplace API is unavailable")).Once()

		handler.ListProducts()(rr, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, appErrors.ErrCodeTransportError, decode[any](t, rr).Error.Code)
	})
}
