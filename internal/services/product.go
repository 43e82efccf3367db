package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/cache"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/marketapi"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
)

type productService struct {
	market MarketAPI
	cache  cache.Cache
	ttl    time.Duration
}

func NewProductService(market MarketAPI, c cache.Cache, ttl time.Duration) ProductService {
	return &productService{market: market, cache: c, ttl: ttl}
}

// ListProducts serves listings from the cache, falling through to the
// marketplace API on a miss.
func (s *productService) ListProducts(ctx context.Context, q marketapi.ProductQuery) ([]models.Product, error) {
	logger := middleware.LoggerFromContext(ctx)
	key := cache.Key(cache.ProductKeyPrefix, queryKey(q))

	var products []models.Product
	found, err := s.cache.Get(ctx, key, &products)
	if err != nil {
		logger.Warn("Product cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if found {
		logger.Debug("Product cache hit", slog.String("key", key))
		return products, nil
	}

	products, err = s.market.ListProducts(ctx, q)
	if err != nil {
		logger.Error("Failed to fetch products", slog.String("error", err.Error()))
		return nil, err
	}

	if err := s.cache.Set(ctx, key, products, s.ttl); err != nil {
		logger.Warn("Product cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	return products, nil
}

// GetProduct resolves one listing, cached like the catalogue pages.
func (s *productService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	logger := middleware.LoggerFromContext(ctx)
	key := cache.Key(cache.ProductItemKeyPrefix, id)

	var product models.Product
	found, err := s.cache.Get(ctx, key, &product)
	if err != nil {
		logger.Warn("Product cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if found {
		return &product, nil
	}

	p, err := s.market.GetProduct(ctx, id)
	if err != nil {
		logger.Warn("Failed to fetch product", slog.String("productId", id), slog.String("error", err.Error()))
		return nil, err
	}

	if err := s.cache.Set(ctx, key, p, s.ttl); err != nil {
		logger.Warn("Product cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	return p, nil
}

func queryKey(q marketapi.ProductQuery) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(q.Category)),
		strings.ToLower(strings.TrimSpace(q.Search)),
		strings.TrimSpace(q.FarmerID),
	}

	return strings.Join(parts, "|")
}
