package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/cache"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/events"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/negotiation"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/aaravmahajanofficial/agri-marketplace/pkg/sendgrid"
	"github.com/aaravmahajanofficial/agri-marketplace/pkg/stripe"
	sendgridgo "github.com/sendgrid/sendgrid-go"
	"github.com/stretchr/testify/mock"
)

type MockMarketAPI struct {
	mock.Mock
}

var _ service.MarketAPI = (*MockMarketAPI)(nil)

func NewMockMarketAPI(t testingT) *MockMarketAPI {
	m := &MockMarketAPI{}
	register(&m.Mock, t)
	return m
}

func (m *MockMarketAPI) ListProducts(ctx context.Context, q marketapi.ProductQuery) ([]models.Product, error) {
	args := m.Called(ctx, q)
	products, _ := args.Get(0).([]models.Product)
	return products, args.Error(1)
}

func (m *MockMarketAPI) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	return orNil[models.Product](args.Get(0)), args.Error(1)
}

func (m *MockMarketAPI) ListOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *MockMarketAPI) CreateOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, req)
	return orNil[models.Order](args.Get(0)), args.Error(1)
}

func (m *MockMarketAPI) CancelOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	return orNil[models.Order](args.Get(0)), args.Error(1)
}

func (m *MockMarketAPI) UpdateOrder(ctx context.Context, id string, req models.UpdateOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, id, req)
	return orNil[models.Order](args.Get(0)), args.Error(1)
}

type MockNegotiationArchive struct {
	mock.Mock
}

var _ service.NegotiationArchive = (*MockNegotiationArchive)(nil)

func NewMockNegotiationArchive(t testingT) *MockNegotiationArchive {
	m := &MockNegotiationArchive{}
	register(&m.Mock, t)
	return m
}

func (m *MockNegotiationArchive) Save(ctx context.Context, rec negotiation.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockNegotiationArchive) GetByID(ctx context.Context, id string) (*negotiation.Record, error) {
	args := m.Called(ctx, id)
	return orNil[negotiation.Record](args.Get(0)), args.Error(1)
}

func (m *MockNegotiationArchive) ListByParticipant(ctx context.Context, userID string, limit int) ([]negotiation.Record, error) {
	args := m.Called(ctx, userID, limit)
	recs, _ := args.Get(0).([]negotiation.Record)
	return recs, args.Error(1)
}

type MockCache struct {
	mock.Mock
}

var _ cache.Cache = (*MockCache)(nil)

func NewMockCache(t testingT) *MockCache {
	m := &MockCache{}
	register(&m.Mock, t)
	return m
}

// Get copies an optional third return value into value through JSON, the
// same way the redis cache hands back stored entries.
func (m *MockCache) Get(ctx context.Context, key string, value any) (bool, error) {
	args := m.Called(ctx, key, value)

	if len(args) > 2 && args.Get(2) != nil {
		data, err := json.Marshal(args.Get(2))
		if err != nil {
			return false, err
		}
		if err := json.Unmarshal(data, value); err != nil {
			return false, err
		}
	}

	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockCache) Close() error {
	return m.Called().Error(0)
}

type MockStripeClient struct {
	mock.Mock
}

var _ stripe.Client = (*MockStripeClient)(nil)

func NewMockStripeClient(t testingT) *MockStripeClient {
	m := &MockStripeClient{}
	register(&m.Mock, t)
	return m
}

func (m *MockStripeClient) CreatePaymentIntent(ctx context.Context, req stripe.PaymentIntentRequest) (*stripe.PaymentIntent, error) {
	args := m.Called(ctx, req)
	return orNil[stripe.PaymentIntent](args.Get(0)), args.Error(1)
}

func (m *MockStripeClient) CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	args := m.Called(ctx, paymentIntentID)
	return orNil[stripe.PaymentIntent](args.Get(0)), args.Error(1)
}

type MockEmailService struct {
	mock.Mock
}

var _ sendgrid.EmailService = (*MockEmailService)(nil)

func NewMockEmailService(t testingT) *MockEmailService {
	m := &MockEmailService{}
	register(&m.Mock, t)
	return m
}

func (m *MockEmailService) Send(ctx context.Context, req *models.EmailNotificationRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockEmailService) GetSendGridClient() *sendgridgo.Client {
	return nil
}

type MockPublisher struct {
	mock.Mock
}

var _ events.Publisher = (*MockPublisher)(nil)

func NewMockPublisher(t testingT) *MockPublisher {
	m := &MockPublisher{}
	register(&m.Mock, t)
	return m
}

func (m *MockPublisher) Publish(ctx context.Context, ev events.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}
