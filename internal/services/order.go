package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/events"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/ledger"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/metrics"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/pricing"
	"github.com/aaravmahajanofficial/agri-marketplace/pkg/stripe"
	"github.com/go-playground/validator/v10"
)

type orderService struct {
	market    MarketAPI
	carts     CartService
	payments  stripe.Client
	publisher events.Publisher
	validate  *validator.Validate
	currency  string
}

func NewOrderService(market MarketAPI, carts CartService, payments stripe.Client, publisher events.Publisher, currency string) OrderService {
	return &orderService{
		market:    market,
		carts:     carts,
		payments:  payments,
		publisher: publisher,
		validate:  validator.New(),
		currency:  strings.ToLower(currency),
	}
}

// Checkout places the buyer's cart as an upstream order and opens a payment
// intent for its grand total. The cart is emptied only once both succeed.
func (s *orderService) Checkout(ctx context.Context, buyerID string, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	logger := middleware.LoggerFromContext(ctx).With(slog.String("buyerId", buyerID))

	if err := s.validate.Struct(req.ShippingAddress); err != nil {
		metrics.RecordCheckout("invalid")
		return nil, addressError(err)
	}

	var resp *models.CheckoutResponse

	err := s.carts.Checkout(ctx, buyerID, func(entries []ledger.Entry, total ledger.OrderTotal) error {
		if len(entries) == 0 {
			return appErrors.BadRequestError("Cannot place an order with an empty cart")
		}

		order, err := s.market.CreateOrder(ctx, placeOrderRequest(buyerID, req, entries, total))
		if err != nil {
			// an unreadable answer may still mean the order exists upstream
			var invalid *marketapi.InvalidOrderError
			if errors.As(err, &invalid) && invalid.OrderID != "" {
				s.cancelPlaced(ctx, logger, invalid.OrderID)
			}

			return err
		}

		intent, err := s.payments.CreatePaymentIntent(ctx, stripe.PaymentIntentRequest{
			AmountMinor: pricing.ToMinorUnits(total.GrandTotal),
			Currency:    s.currency,
			Description: "Order " + order.ID,
			OrderID:     order.ID,
			BuyerID:     buyerID,
		})
		if err != nil {
			logger.Error("Payment intent creation failed, cancelling order",
				slog.String("orderId", order.ID),
				slog.String("error", err.Error()))

			s.cancelPlaced(ctx, logger, order.ID)

			return appErrors.ThirdPartyError("Failed to initiate payment").WithError(err)
		}

		order.PaymentIntentID = intent.ID

		resp = &models.CheckoutResponse{
			Order:           order,
			PaymentIntentID: intent.ID,
			ClientSecret:    intent.ClientSecret,
			DisplayTotal:    pricing.FormatDecimal(total.GrandTotal),
		}

		return nil
	})
	if err != nil {
		metrics.RecordCheckout("failed")
		logger.Warn("Checkout failed", slog.String("error", err.Error()))
		return nil, err
	}

	metrics.RecordCheckout("placed")
	s.publish(ctx, events.OrderPlaced, resp.Order)
	logger.Info("Order placed", slog.String("orderId", resp.Order.ID), slog.String("total", resp.DisplayTotal))

	return resp, nil
}

// cancelPlaced withdraws an order that checkout could not complete, so a
// resubmitted cart does not place it twice.
func (s *orderService) cancelPlaced(ctx context.Context, logger *slog.Logger, orderID string) {
	if _, err := s.market.CancelOrder(ctx, orderID); err != nil {
		logger.Error("Failed to cancel incomplete order",
			slog.String("orderId", orderID),
			slog.String("error", err.Error()))
		return
	}

	logger.Warn("Cancelled incomplete order", slog.String("orderId", orderID))
}

func (s *orderService) ListOrders(ctx context.Context) (*models.OrderListResponse, error) {
	orders, err := s.market.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	return &models.OrderListResponse{Orders: orders, Total: len(orders)}, nil
}

func (s *orderService) CancelOrder(ctx context.Context, id string) (*models.Order, error) {
	logger := middleware.LoggerFromContext(ctx).With(slog.String("orderId", id))

	order, err := s.market.CancelOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if order.PaymentIntentID != "" {
		if _, err := s.payments.CancelPaymentIntent(ctx, order.PaymentIntentID); err != nil {
			logger.Error("Failed to cancel payment intent",
				slog.String("paymentIntentId", order.PaymentIntentID),
				slog.String("error", err.Error()))
		}
	}

	s.publish(ctx, events.OrderCancelled, order)
	logger.Info("Order cancelled")

	return order, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, id string, req *models.UpdateOrderRequest) (*models.Order, error) {
	if req.ShippingAddress != nil {
		if err := s.validate.Struct(req.ShippingAddress); err != nil {
			return nil, addressError(err)
		}
	}

	order, err := s.market.UpdateOrder(ctx, id, *req)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.OrderUpdated, order)

	return order, nil
}

// publish is best effort: the order already exists upstream.
func (s *orderService) publish(ctx context.Context, t events.Type, order *models.Order) {
	if err := s.publisher.Publish(ctx, events.New(t, order.ID, order)); err != nil {
		middleware.LoggerFromContext(ctx).Error("Failed to publish order event",
			slog.String("type", string(t)),
			slog.String("orderId", order.ID),
			slog.String("error", err.Error()))
	}
}

func placeOrderRequest(buyerID string, req *models.CheckoutRequest, entries []ledger.Entry, total ledger.OrderTotal) models.PlaceOrderRequest {
	items := make([]models.OrderItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.OrderItem{
			ProductID: e.ProductID,
			Quantity:  e.Quantity,
			UnitPrice: e.EffectivePrice(),
		})
	}

	return models.PlaceOrderRequest{
		BuyerID:         buyerID,
		Items:           items,
		Subtotal:        total.Subtotal,
		PlatformFee:     total.PlatformFee,
		TotalAmount:     total.GrandTotal,
		Currency:        "INR",
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	}
}

func addressError(err error) error {
	appErr := appErrors.ValidationError("Shipping address is incomplete").WithError(err)

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, fe.Field())
		}
		appErr = appErr.WithDetail("invalid fields: " + strings.Join(fields, ", "))
	}

	return appErr
}
