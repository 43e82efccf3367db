// Package mocks holds testify mocks for the service interfaces and the
// collaborators they depend on.
package mocks

import (
	"context"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t testingT) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

func orNil[T any](v any) *T {
	if v == nil {
		return nil
	}

	return v.(*T)
}

type MockCartService struct {
	mock.Mock
}

var _ service.CartService = (*MockCartService)(nil)

func NewMockCartService(t testingT) *MockCartService {
	m := &MockCartService{}
	register(&m.Mock, t)
	return m
}

func (m *MockCartService) GetCart(ctx context.Context, userID string) (*models.CartResponse, error) {
	args := m.Called(ctx, userID)
	return orNil[models.CartResponse](args.Get(0)), args.Error(1)
}

func (m *MockCartService) AddItem(ctx context.Context, userID string, req *models.AddItemRequest) (*models.CartResponse, error) {
	args := m.Called(ctx, userID, req)
	return orNil[models.CartResponse](args.Get(0)), args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, userID string, productID string, quantity int) (*models.CartResponse, error) {
	args := m.Called(ctx, userID, productID, quantity)
	return orNil[models.CartResponse](args.Get(0)), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, userID string, productID string) (*models.CartResponse, error) {
	args := m.Called(ctx, userID, productID)
	return orNil[models.CartResponse](args.Get(0)), args.Error(1)
}

func (m *MockCartService) ClearCart(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockCartService) GetTotal(ctx context.Context, userID string) (*models.CartTotalView, error) {
	args := m.Called(ctx, userID)
	return orNil[models.CartTotalView](args.Get(0)), args.Error(1)
}

func (m *MockCartService) ApplyNegotiatedPrice(ctx context.Context, userID string, productID string, listedPrice, price decimal.Decimal) error {
	return m.Called(ctx, userID, productID, listedPrice, price).Error(0)
}

// Checkout passes the expectation's first return value through to fn when it
// is a CheckoutFunc runner, otherwise returns the configured error.
func (m *MockCartService) Checkout(ctx context.Context, userID string, fn service.CheckoutFunc) error {
	args := m.Called(ctx, userID, fn)
	if run, ok := args.Get(0).(func(service.CheckoutFunc) error); ok {
		return run(fn)
	}

	return args.Error(0)
}

type MockChatService struct {
	mock.Mock
}

var _ service.ChatService = (*MockChatService)(nil)

func NewMockChatService(t testingT) *MockChatService {
	m := &MockChatService{}
	register(&m.Mock, t)
	return m
}

func (m *MockChatService) OpenChat(ctx context.Context, userID string, req *models.OpenChatRequest) (*models.ChatResponse, error) {
	args := m.Called(ctx, userID, req)
	return orNil[models.ChatResponse](args.Get(0)), args.Error(1)
}

func (m *MockChatService) GetChat(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error) {
	args := m.Called(ctx, userID, chatID)
	return orNil[models.ChatResponse](args.Get(0)), args.Error(1)
}

func (m *MockChatService) ListChats(ctx context.Context, userID string) ([]models.ChatResponse, error) {
	args := m.Called(ctx, userID)
	chats, _ := args.Get(0).([]models.ChatResponse)
	return chats, args.Error(1)
}

func (m *MockChatService) ProposeOffer(ctx context.Context, userID string, chatID string, amount decimal.Decimal) (*models.ChatResponse, error) {
	args := m.Called(ctx, userID, chatID, amount)
	return orNil[models.ChatResponse](args.Get(0)), args.Error(1)
}

func (m *MockChatService) AcceptDeal(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error) {
	args := m.Called(ctx, userID, chatID)
	return orNil[models.ChatResponse](args.Get(0)), args.Error(1)
}

func (m *MockChatService) RejectDeal(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error) {
	args := m.Called(ctx, userID, chatID)
	return orNil[models.ChatResponse](args.Get(0)), args.Error(1)
}

func (m *MockChatService) SendMessage(ctx context.Context, userID string, chatID string, content string) (*models.ChatResponse, error) {
	args := m.Called(ctx, userID, chatID, content)
	return orNil[models.ChatResponse](args.Get(0)), args.Error(1)
}

func (m *MockChatService) Run(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockProductService struct {
	mock.Mock
}

var _ service.ProductService = (*MockProductService)(nil)

func NewMockProductService(t testingT) *MockProductService {
	m := &MockProductService{}
	register(&m.Mock, t)
	return m
}

func (m *MockProductService) ListProducts(ctx context.Context, q marketapi.ProductQuery) ([]models.Product, error) {
	args := m.Called(ctx, q)
	products, _ := args.Get(0).([]models.Product)
	return products, args.Error(1)
}

func (m *MockProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	return orNil[models.Product](args.Get(0)), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

var _ service.OrderService = (*MockOrderService)(nil)

func NewMockOrderService(t testingT) *MockOrderService {
	m := &MockOrderService{}
	register(&m.Mock, t)
	return m
}

func (m *MockOrderService) Checkout(ctx context.Context, buyerID string, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	args := m.Called(ctx, buyerID, req)
	return orNil[models.CheckoutResponse](args.Get(0)), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context) (*models.OrderListResponse, error) {
	args := m.Called(ctx)
	return orNil[models.OrderListResponse](args.Get(0)), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	return orNil[models.Order](args.Get(0)), args.Error(1)
}

func (m *MockOrderService) UpdateOrder(ctx context.Context, id string, req *models.UpdateOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, id, req)
	return orNil[models.Order](args.Get(0)), args.Error(1)
}
