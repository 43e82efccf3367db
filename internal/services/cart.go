package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/cache"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/ledger"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/pricing"
	"github.com/shopspring/decimal"
)

// session is one buyer's ledger. The ledger is nil until it has been restored.
type session struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
}

type cartService struct {
	mu       sync.Mutex
	sessions map[string]*session

	cache   cache.Cache
	catalog ProductCatalog
	feeRate decimal.Decimal
	ttl     time.Duration
}

func NewCartService(c cache.Cache, catalog ProductCatalog, feeRate decimal.Decimal, ttl time.Duration) CartService {
	return &cartService{
		sessions: make(map[string]*session),
		cache:    c,
		catalog:  catalog,
		feeRate:  feeRate,
		ttl:      ttl,
	}
}

func (s *cartService) GetCart(ctx context.Context, userID string) (*models.CartResponse, error) {
	sess := s.acquire(ctx, userID)
	defer sess.mu.Unlock()

	return cartView(userID, sess.ledger), nil
}

// AddItem prices the entry at the catalogue's listed price. The lookup runs
// before the buyer's session is locked.
func (s *cartService) AddItem(ctx context.Context, userID string, req *models.AddItemRequest) (*models.CartResponse, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	return s.update(ctx, userID, func(l *ledger.Ledger) error {
		return l.Add(req.ProductID, req.Quantity, product.Price, nil)
	})
}

func (s *cartService) UpdateQuantity(ctx context.Context, userID string, productID string, quantity int) (*models.CartResponse, error) {
	return s.update(ctx, userID, func(l *ledger.Ledger) error {
		return l.SetQuantity(productID, quantity)
	})
}

func (s *cartService) RemoveItem(ctx context.Context, userID string, productID string) (*models.CartResponse, error) {
	return s.update(ctx, userID, func(l *ledger.Ledger) error {
		l.Remove(productID)
		return nil
	})
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	_, err := s.update(ctx, userID, func(l *ledger.Ledger) error {
		l.Clear()
		return nil
	})

	return err
}

func (s *cartService) GetTotal(ctx context.Context, userID string) (*models.CartTotalView, error) {
	sess := s.acquire(ctx, userID)
	defer sess.mu.Unlock()

	view := totalView(sess.ledger.Total())

	return &view, nil
}

// ApplyNegotiatedPrice sets the agreed price on the buyer's entry for the
// product, adding a single unit at the listed price when there is none.
func (s *cartService) ApplyNegotiatedPrice(ctx context.Context, userID string, productID string, listedPrice, price decimal.Decimal) error {
	_, err := s.update(ctx, userID, func(l *ledger.Ledger) error {
		if _, ok := l.Get(productID); ok {
			return l.SetNegotiatedPrice(productID, price)
		}

		return l.Add(productID, 1, listedPrice, &price)
	})

	return err
}

func (s *cartService) Checkout(ctx context.Context, userID string, fn CheckoutFunc) error {
	sess := s.acquire(ctx, userID)
	defer sess.mu.Unlock()

	if err := fn(sess.ledger.Entries(), sess.ledger.Total()); err != nil {
		return err
	}

	sess.ledger.Clear()
	s.persist(ctx, userID, sess.ledger)

	return nil
}

func (s *cartService) update(ctx context.Context, userID string, fn func(l *ledger.Ledger) error) (*models.CartResponse, error) {
	sess := s.acquire(ctx, userID)
	defer sess.mu.Unlock()

	if err := fn(sess.ledger); err != nil {
		middleware.LoggerFromContext(ctx).Warn("Cart update rejected",
			slog.String("userId", userID),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.persist(ctx, userID, sess.ledger)

	return cartView(userID, sess.ledger), nil
}

// acquire returns the buyer's session locked, restoring it from the cache on
// first use. The caller must unlock it.
func (s *cartService) acquire(ctx context.Context, userID string) *session {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{}
		s.sessions[userID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()

	if sess.ledger == nil {
		sess.ledger = s.restore(ctx, userID)
	}

	return sess
}

func (s *cartService) restore(ctx context.Context, userID string) *ledger.Ledger {
	logger := middleware.LoggerFromContext(ctx)

	var snap ledger.Snapshot
	found, err := s.cache.Get(ctx, cache.Key(cache.CartKeyPrefix, userID), &snap)
	if err != nil {
		logger.Warn("Failed to restore cart, starting empty",
			slog.String("userId", userID),
			slog.String("error", err.Error()))
		return ledger.New(s.feeRate)
	}

	if !found {
		return ledger.New(s.feeRate)
	}

	// the fee rate always follows the current configuration
	snap.FeeRate = s.feeRate
	l := ledger.Restore(snap)

	logger.Debug("Cart restored", slog.String("userId", userID), slog.Int("entries", l.Len()))

	return l
}

// persist writes the ledger through to the cache. Failures only cost
// durability, so they are logged and swallowed.
func (s *cartService) persist(ctx context.Context, userID string, l *ledger.Ledger) {
	key := cache.Key(cache.CartKeyPrefix, userID)

	var err error
	if l.Len() == 0 {
		err = s.cache.Delete(ctx, key)
	} else {
		err = s.cache.Set(ctx, key, l.Snapshot(), s.ttl)
	}

	if err != nil {
		middleware.LoggerFromContext(ctx).Warn("Failed to persist cart",
			slog.String("userId", userID),
			slog.String("error", err.Error()))
	}
}

func cartView(userID string, l *ledger.Ledger) *models.CartResponse {
	entries := l.Entries()
	items := make([]models.CartItemView, 0, len(entries))

	for _, e := range entries {
		items = append(items, models.CartItemView{
			ProductID:       e.ProductID,
			Quantity:        e.Quantity,
			UnitPrice:       e.UnitPrice,
			NegotiatedPrice: e.NegotiatedPrice,
			EffectivePrice:  e.EffectivePrice(),
			LineTotal:       e.LineTotal(),
		})
	}

	return &models.CartResponse{
		UserID: userID,
		Items:  items,
		Total:  totalView(l.Total()),
	}
}

func totalView(t ledger.OrderTotal) models.CartTotalView {
	return models.CartTotalView{
		Subtotal:           t.Subtotal,
		PlatformFee:        t.PlatformFee,
		GrandTotal:         t.GrandTotal,
		DisplaySubtotal:    pricing.FormatDecimal(t.Subtotal),
		DisplayPlatformFee: pricing.FormatDecimal(t.PlatformFee),
		DisplayGrandTotal:  pricing.FormatDecimal(t.GrandTotal),
	}
}
