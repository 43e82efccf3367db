package service

import (
	"context"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/ledger"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/negotiation"
	"github.com/shopspring/decimal"
)

// MarketAPI is the slice of the marketplace REST client the services use.
type MarketAPI interface {
	ListProducts(ctx context.Context, q marketapi.ProductQuery) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	CreateOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, id string, req models.UpdateOrderRequest) (*models.Order, error)
}

// NegotiationArchive stores negotiations once they are closed.
type NegotiationArchive interface {
	Save(ctx context.Context, rec negotiation.Record) error
	GetByID(ctx context.Context, id string) (*negotiation.Record, error)
	ListByParticipant(ctx context.Context, userID string, limit int) ([]negotiation.Record, error)
}

// CheckoutFunc runs with the buyer's cart locked. Returning nil empties the cart.
type CheckoutFunc func(entries []ledger.Entry, total ledger.OrderTotal) error

type CartService interface {
	GetCart(ctx context.Context, userID string) (*models.CartResponse, error)
	AddItem(ctx context.Context, userID string, req *models.AddItemRequest) (*models.CartResponse, error)
	UpdateQuantity(ctx context.Context, userID string, productID string, quantity int) (*models.CartResponse, error)
	RemoveItem(ctx context.Context, userID string, productID string) (*models.CartResponse, error)
	ClearCart(ctx context.Context, userID string) error
	GetTotal(ctx context.Context, userID string) (*models.CartTotalView, error)
	ApplyNegotiatedPrice(ctx context.Context, userID string, productID string, listedPrice, price decimal.Decimal) error
	Checkout(ctx context.Context, userID string, fn CheckoutFunc) error
}

type ChatService interface {
	OpenChat(ctx context.Context, userID string, req *models.OpenChatRequest) (*models.ChatResponse, error)
	GetChat(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatResponse, error)
	ProposeOffer(ctx context.Context, userID string, chatID string, amount decimal.Decimal) (*models.ChatResponse, error)
	AcceptDeal(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error)
	RejectDeal(ctx context.Context, userID string, chatID string) (*models.ChatResponse, error)
	SendMessage(ctx context.Context, userID string, chatID string, content string) (*models.ChatResponse, error)
	Run(ctx context.Context) error
}

// ProductCatalog resolves a single listing, the source of cart prices.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

type ProductService interface {
	ProductCatalog
	ListProducts(ctx context.Context, q marketapi.ProductQuery) ([]models.Product, error)
}

type OrderService interface {
	Checkout(ctx context.Context, buyerID string, req *models.CheckoutRequest) (*models.CheckoutResponse, error)
	ListOrders(ctx context.Context) (*models.OrderListResponse, error)
	CancelOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, id string, req *models.UpdateOrderRequest) (*models.Order, error)
}
