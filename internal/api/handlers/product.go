package handlers

import (
	"log/slog"
	"net/http"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils/response"
)

type ProductHandler struct {
	productService service.ProductService
}

func NewProductHandler(productService service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// for eg: GET /products?category=vegetables&search=tomato&farmer_id=f-1
func (h *ProductHandler) ListProducts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		q := marketapi.ProductQuery{
			Category: query.Get("category"),
			Search:   query.Get("search"),
			FarmerID: query.Get("farmer_id"),
		}

		products, err := h.productService.ListProducts(r.Context(), q)
		if err != nil {
			middleware.LoggerFromContext(r.Context()).Error("Failed to fetch products", slog.String("error", err.Error()))
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, products)
	}
}
