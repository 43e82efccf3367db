package service_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/cache"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/config"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/ledger"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	service "github.com/aaravmahajanofficial/agri-marketplace/internal/services"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/services/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var feeRate = decimal.RequireFromString("0.02")

func rs(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func setupRedisCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewRedisCache(client, &config.Cache{DefaultTTL: time.Minute, CartTTL: time.Hour}), mr
}

// listedCatalog answers GetProduct for every listed product at its price.
func listedCatalog(t *testing.T, prices map[string]int64) *mocks.MockProductService {
	catalog := mocks.NewMockProductService(t)
	for id, price := range prices {
		catalog.On("GetProduct", mock.Anything, id).Return(&models.Product{ID: id, Name: id, Price: rs(price)}, nil).Maybe()
	}

	return catalog
}

func TestCartService(t *testing.T) {
	c, mr := setupRedisCache(t)
	catalog := listedCatalog(t, map[string]int64{"tomato-1": 40, "onion-1": 30, "rice-1": 60})
	carts := service.NewCartService(c, catalog, feeRate, time.Hour)
	ctx := t.Context()

	t.Run("Success - Add Items And Total", func(t *testing.T) {
		// Act
		_, err := carts.AddItem(ctx, "buyer-1", &models.AddItemRequest{ProductID: "tomato-1", Quantity: 2})
		require.NoError(t, err)
		_, err = carts.AddItem(ctx, "buyer-1", &models.AddItemRequest{ProductID: "onion-1", Quantity: 1})
		require.NoError(t, err)
		require.NoError(t, carts.ApplyNegotiatedPrice(ctx, "buyer-1", "onion-1", rs(30), rs(25)))
		cart, err := carts.GetCart(ctx, "buyer-1")
		require.NoError(t, err)

		// Assert
		require.Len(t, cart.Items, 2)
		assert.Equal(t, "tomato-1", cart.Items[0].ProductID)
		assert.True(t, rs(25).Equal(cart.Items[1].EffectivePrice))

		total, err := carts.GetTotal(ctx, "buyer-1")
		require.NoError(t, err)
		assert.True(t, rs(105).Equal(total.Subtotal))
		assert.True(t, rs(2).Equal(total.PlatformFee))
		assert.True(t, rs(107).Equal(total.GrandTotal))
		assert.Equal(t, "₹107.00", total.DisplayGrandTotal)
		assert.True(t, mr.Exists("cart:buyer-1"))
	})

	t.Run("Success - Restored With Current Fee Rate", func(t *testing.T) {
		// Arrange
		restarted := service.NewCartService(c, catalog, decimal.RequireFromString("0.05"), time.Hour)

		// Act
		cart, err := restarted.GetCart(ctx, "buyer-1")

		// Assert
		require.NoError(t, err)
		require.Len(t, cart.Items, 2)
		assert.True(t, rs(105).Equal(cart.Total.Subtotal))
		assert.True(t, rs(5).Equal(cart.Total.PlatformFee))
	})

	t.Run("Success - Update Quantity", func(t *testing.T) {
		cart, err := carts.UpdateQuantity(ctx, "buyer-1", "tomato-1", 3)

		require.NoError(t, err)
		assert.Equal(t, 3, cart.Items[0].Quantity)
		assert.True(t, rs(145).Equal(cart.Total.Subtotal))
	})

	t.Run("Failure - Zero Quantity", func(t *testing.T) {
		cart, err := carts.UpdateQuantity(ctx, "buyer-1", "tomato-1", 0)

		assert.Nil(t, cart)
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeValidation, appErr.Code)
	})

	t.Run("Failure - Item Not In Cart", func(t *testing.T) {
		_, err := carts.UpdateQuantity(ctx, "buyer-1", "potato-9", 2)

		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("Success - Remove Then Clear", func(t *testing.T) {
		cart, err := carts.RemoveItem(ctx, "buyer-1", "onion-1")
		require.NoError(t, err)
		assert.Len(t, cart.Items, 1)

		require.NoError(t, carts.ClearCart(ctx, "buyer-1"))

		cart, err = carts.GetCart(ctx, "buyer-1")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		assert.True(t, cart.Total.GrandTotal.IsZero())
		assert.False(t, mr.Exists("cart:buyer-1"))
	})

	t.Run("Success - Carts Are Per User", func(t *testing.T) {
		_, err := carts.AddItem(ctx, "buyer-2", &models.AddItemRequest{ProductID: "rice-1", Quantity: 1})
		require.NoError(t, err)

		cart, err := carts.GetCart(ctx, "buyer-3")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
	})
}

func TestCartService_AddItemPricing(t *testing.T) {
	t.Run("Success - Listed Price Wins Over Client Input", func(t *testing.T) {
		// Arrange
		c, _ := setupRedisCache(t)
		carts := service.NewCartService(c, listedCatalog(t, map[string]int64{"tomato-1": 40}), feeRate, time.Hour)
		body := `{"product_id": "tomato-1", "quantity": 2, "unit_price": "0.01", "negotiated_price": "0.01"}`

		var req models.AddItemRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))

		// Act
		cart, err := carts.AddItem(t.Context(), "buyer-1", &req)

		// Assert
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.True(t, rs(40).Equal(cart.Items[0].UnitPrice))
		assert.Nil(t, cart.Items[0].NegotiatedPrice)
		assert.True(t, rs(80).Equal(cart.Total.Subtotal))
	})

	t.Run("Failure - Unknown Product", func(t *testing.T) {
		// Arrange
		c, mr := setupRedisCache(t)
		catalog := mocks.NewMockProductService(t)
		carts := service.NewCartService(c, catalog, feeRate, time.Hour)
		catalog.On("GetProduct", mock.Anything, "ghost-1").
			Return(nil, appErrors.NotFoundError("Resource not found in the marketplace")).Once()

		// Act
		cart, err := carts.AddItem(t.Context(), "buyer-1", &models.AddItemRequest{ProductID: "ghost-1", Quantity: 1})

		// Assert
		assert.Nil(t, cart)
		appErr, ok := appErrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, appErrors.ErrCodeNotFound, appErr.Code)
		assert.False(t, mr.Exists("cart:buyer-1"))
	})

	t.Run("Failure - Unpriced Listing", func(t *testing.T) {
		c, _ := setupRedisCache(t)
		carts := service.NewCartService(c, listedCatalog(t, map[string]int64{"free-1": 0}), feeRate, time.Hour)

		_, err := carts.AddItem(t.Context(), "buyer-1", &models.AddItemRequest{ProductID: "free-1", Quantity: 1})

		assert.ErrorIs(t, err, ledger.ErrInvalidPrice)
	})
}

func TestCartService_ApplyNegotiatedPrice(t *testing.T) {
	c, _ := setupRedisCache(t)
	carts := service.NewCartService(c, mocks.NewMockProductService(t), feeRate, time.Hour)
	ctx := t.Context()

	t.Run("Success - Adds Missing Product", func(t *testing.T) {
		require.NoError(t, carts.ApplyNegotiatedPrice(ctx, "buyer-1", "tomato-1", rs(600), rs(550)))

		cart, err := carts.GetCart(ctx, "buyer-1")
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 1, cart.Items[0].Quantity)
		assert.True(t, rs(600).Equal(cart.Items[0].UnitPrice))
		assert.True(t, rs(550).Equal(cart.Total.Subtotal))
	})

	t.Run("Success - Updates Existing Entry", func(t *testing.T) {
		_, err := carts.UpdateQuantity(ctx, "buyer-1", "tomato-1", 4)
		require.NoError(t, err)

		require.NoError(t, carts.ApplyNegotiatedPrice(ctx, "buyer-1", "tomato-1", rs(600), rs(500)))

		cart, err := carts.GetCart(ctx, "buyer-1")
		require.NoError(t, err)
		assert.Equal(t, 4, cart.Items[0].Quantity)
		assert.True(t, rs(2000).Equal(cart.Total.Subtotal))
	})

	t.Run("Failure - Non Positive Price", func(t *testing.T) {
		err := carts.ApplyNegotiatedPrice(ctx, "buyer-1", "tomato-1", rs(600), decimal.Zero)

		assert.ErrorIs(t, err, ledger.ErrInvalidPrice)
	})
}

func TestCartService_Checkout(t *testing.T) {
	c, _ := setupRedisCache(t)
	carts := service.NewCartService(c, listedCatalog(t, map[string]int64{"tomato-1": 45}), feeRate, time.Hour)
	ctx := t.Context()

	_, err := carts.AddItem(ctx, "buyer-1", &models.AddItemRequest{ProductID: "tomato-1", Quantity: 10})
	require.NoError(t, err)

	t.Run("Failure - Cart Kept When Order Fails", func(t *testing.T) {
		upstream := errors.New("upstream down")

		err := carts.Checkout(ctx, "buyer-1", func(entries []ledger.Entry, total ledger.OrderTotal) error {
			assert.Len(t, entries, 1)
			assert.True(t, rs(459).Equal(total.GrandTotal))
			return upstream
		})

		assert.ErrorIs(t, err, upstream)
		cart, _ := carts.GetCart(ctx, "buyer-1")
		assert.Len(t, cart.Items, 1)
	})

	t.Run("Success - Cart Cleared After Order", func(t *testing.T) {
		err := carts.Checkout(ctx, "buyer-1", func([]ledger.Entry, ledger.OrderTotal) error { return nil })

		require.NoError(t, err)
		cart, _ := carts.GetCart(ctx, "buyer-1")
		assert.Empty(t, cart.Items)
	})
}

func TestCartService_CacheFailures(t *testing.T) {
	// Arrange
	c := mocks.NewMockCache(t)
	carts := service.NewCartService(c, listedCatalog(t, map[string]int64{"tomato-1": 40}), feeRate, time.Hour)
	ctx := t.Context()

	c.On("Get", mock.Anything, "cart:buyer-1", mock.Anything).Return(false, errors.New("redis down")).Once()
	c.On("Set", mock.Anything, "cart:buyer-1", mock.AnythingOfType("ledger.Snapshot"), time.Hour).Return(errors.New("redis down")).Once()

	// Act
	cart, err := carts.AddItem(ctx, "buyer-1", &models.AddItemRequest{ProductID: "tomato-1", Quantity: 1})

	// Assert
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestCartService_RestoreDropsInvalidEntries(t *testing.T) {
	c := mocks.NewMockCache(t)
	carts := service.NewCartService(c, mocks.NewMockProductService(t), feeRate, time.Hour)

	snap := ledger.Snapshot{
		FeeRate: decimal.RequireFromString("0.5"),
		Entries: []ledger.Entry{
			{ProductID: "tomato-1", Quantity: 2, UnitPrice: rs(40)},
			{ProductID: "bad-1", Quantity: 0, UnitPrice: rs(10)},
		},
	}
	c.On("Get", mock.Anything, "cart:buyer-1", mock.Anything).Return(true, nil, snap).Once()

	cart, err := carts.GetCart(t.Context(), "buyer-1")

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, rs(2).Equal(cart.Total.PlatformFee), "fee follows the configured rate, not the snapshot's")
}

func TestCartService_ConcurrentAdds(t *testing.T) {
	c, _ := setupRedisCache(t)
	carts := service.NewCartService(c, listedCatalog(t, map[string]int64{"tomato-1": 40}), feeRate, time.Hour)
	ctx := t.Context()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := carts.AddItem(ctx, "buyer-1", &models.AddItemRequest{ProductID: "tomato-1", Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := carts.GetCart(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 50, cart.Items[0].Quantity)
}
