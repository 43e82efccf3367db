package marketapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	defaultCurrency = "INR"
	defaultQuantity = 1
)

var ErrMissingID = errors.New("record has neither id nor _id")

// Upstream documents come from a document store; ids may arrive as "id" or
// "_id" and most fields are optional. Everything below is decoded loosely and
// then normalized into the strict models once.

type ref struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	Name    string `json:"name"`
}

// reference is either a bare id string or an embedded document.
type reference struct {
	ref
}

func (r *reference) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	if b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}

	return json.Unmarshal(b, &r.ref)
}

func (r reference) id() string {
	return firstNonEmpty(r.ID, r.MongoID)
}

type rawProduct struct {
	ID         string          `json:"id"`
	MongoID    string          `json:"_id"`
	Name       string          `json:"name"`
	FarmerID   string          `json:"farmerId"`
	Farmer     reference       `json:"farmer"`
	Category   string          `json:"category"`
	Unit       string          `json:"unit"`
	Price      decimal.Decimal `json:"price"`
	Stock      *int            `json:"stock"`
	Quantity   *int            `json:"quantity"`
	Negotiable *bool           `json:"negotiable"`
	Image      string          `json:"image"`
	ImageURL   string          `json:"imageUrl"`
}

type rawAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Pincode    string `json:"pincode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type rawOrderItem struct {
	ProductID string          `json:"productId"`
	Product   reference       `json:"product"`
	Name      string          `json:"name"`
	Quantity  *int            `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type rawOrder struct {
	ID              string          `json:"id"`
	MongoID         string          `json:"_id"`
	BuyerID         string          `json:"buyerId"`
	Buyer           reference       `json:"buyer"`
	Items           []rawOrderItem  `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	PlatformFee     decimal.Decimal `json:"platformFee"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaymentIntentID string          `json:"paymentIntentId"`
	ShippingAddress *rawAddress     `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type normalizer struct {
	validate *validator.Validate
}

func (n normalizer) product(raw rawProduct) (models.Product, error) {
	p := models.Product{
		ID:       firstNonEmpty(raw.ID, raw.MongoID),
		Name:     strings.TrimSpace(raw.Name),
		FarmerID: firstNonEmpty(raw.FarmerID, raw.Farmer.id()),
		Category: raw.Category,
		Unit:     raw.Unit,
		Price:    raw.Price,
		ImageURL: firstNonEmpty(raw.ImageURL, raw.Image),
	}

	if p.ID == "" {
		return models.Product{}, ErrMissingID
	}

	switch {
	case raw.Stock != nil:
		p.Stock = *raw.Stock
	case raw.Quantity != nil:
		p.Stock = *raw.Quantity
	}

	// listings are negotiable unless the farmer opted out
	p.Negotiable = raw.Negotiable == nil || *raw.Negotiable

	if err := n.validate.Struct(p); err != nil {
		return models.Product{}, fmt.Errorf("product %s: %w", p.ID, err)
	}

	return p, nil
}

func (n normalizer) order(raw rawOrder) (models.Order, error) {
	o := models.Order{
		ID:              firstNonEmpty(raw.ID, raw.MongoID),
		BuyerID:         firstNonEmpty(raw.BuyerID, raw.Buyer.id()),
		Subtotal:        raw.Subtotal,
		PlatformFee:     raw.PlatformFee,
		TotalAmount:     raw.TotalAmount,
		Currency:        strings.ToUpper(firstNonEmpty(raw.Currency, defaultCurrency)),
		Status:          models.OrderStatus(strings.ToLower(firstNonEmpty(raw.Status, string(models.OrderStatusPending)))),
		PaymentIntentID: raw.PaymentIntentID,
		CreatedAt:       raw.CreatedAt,
		UpdatedAt:       raw.UpdatedAt,
	}

	if o.ID == "" {
		return models.Order{}, ErrMissingID
	}

	o.Items = make([]models.OrderItem, 0, len(raw.Items))
	for _, it := range raw.Items {
		qty := defaultQuantity
		if it.Quantity != nil {
			qty = *it.Quantity
		}

		price := it.UnitPrice
		if price.IsZero() {
			price = it.Price
		}

		o.Items = append(o.Items, models.OrderItem{
			ProductID: firstNonEmpty(it.ProductID, it.Product.id()),
			Name:      firstNonEmpty(it.Name, it.Product.Name),
			Quantity:  qty,
			UnitPrice: price,
		})
	}

	if a := raw.ShippingAddress; a != nil {
		o.ShippingAddress = &models.Address{
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: firstNonEmpty(a.PostalCode, a.Pincode),
			Country:    a.Country,
			Phone:      a.Phone,
		}
	}

	if err := n.validate.Struct(o); err != nil {
		return models.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}

	return o, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}

// unwrap strips the optional {"data": ...} envelope some endpoints use. A
// list endpoint may also name its collection, e.g. {"orders": [...]}.
func unwrap(body []byte, collection string) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return body
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}

	for _, key := range []string{"data", collection} {
		if key == "" {
			continue
		}

		if inner, ok := envelope[key]; ok {
			return unwrap(inner, collection)
		}
	}

	return body
}
