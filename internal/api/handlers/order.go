package handlers

import (
	"log/slog"
	"net/http"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils/response"
	"github.com/go-playground/validator/v10"
)

type OrderHandler struct {
	orderService service.OrderService
	validator    *validator.Validate
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService, validator: validator.New()}
}

// Checkout turns the caller's cart into an order.
func (h *OrderHandler) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := currentUser(w, r)
		if !ok {
			return
		}

		var req models.CheckoutRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		resp, err := h.orderService.Checkout(r.Context(), claims.UserID, &req)
		if err != nil {
			logger.Error("Checkout failed", slog.String("error", err.Error()))
			response.Error(w, err)
			return
		}

		logger.Info("Order created", slog.String("orderId", resp.Order.ID))
		response.Success(w, http.StatusCreated, resp)
	}
}

func (h *OrderHandler) ListOrders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(w, r); !ok {
			return
		}

		orders, err := h.orderService.ListOrders(r.Context())
		if err != nil {
			middleware.LoggerFromContext(r.Context()).Error("Failed to fetch orders", slog.String("error", err.Error()))
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, orders)
	}
}

func (h *OrderHandler) CancelOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(w, r); !ok {
			return
		}

		id, ok := pathParam(w, r, "id")
		if !ok {
			return
		}

		order, err := h.orderService.CancelOrder(r.Context(), id)
		if err != nil {
			response.Error(w, err)
			return
		}

		middleware.LoggerFromContext(r.Context()).Info("Order cancelled", slog.String("orderId", id))
		response.Success(w, http.StatusOK, order)
	}
}

func (h *OrderHandler) UpdateOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(w, r); !ok {
			return
		}

		id, ok := pathParam(w, r, "id")
		if !ok {
			return
		}

		var req models.UpdateOrderRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		order, err := h.orderService.UpdateOrder(r.Context(), id, &req)
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, order)
	}
}
