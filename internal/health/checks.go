package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/config"
	"github.com/hellofresh/health-go/v5"
	"github.com/hellofresh/health-go/v5/checks/postgres"
	healthRedis "github.com/hellofresh/health-go/v5/checks/redis"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/balance"
)

// MarketPinger reports whether the upstream marketplace API is reachable.
type MarketPinger interface {
	Ping(ctx context.Context) error
}

type Endpoints struct {
	Market MarketPinger
}

func NewHealthHandler(cfg *config.Config, endpoints *Endpoints) (*health.Health, error) {
	checks := []health.Config{
		{
			Name:      "database",
			Timeout:   3 * time.Second,
			SkipOnErr: false,
			Check: postgres.New(postgres.Config{
				DSN: cfg.Database.GetDSN(),
			}),
		},
		{
			Name:    "redis",
			Timeout: 2 * time.Second,
			// carts fall back to memory and the memory transport needs no redis
			SkipOnErr: cfg.Transport.Mode != "redis",
			Check: healthRedis.New(healthRedis.Config{
				DSN: cfg.RedisConnect.GetDSN(),
			}),
		},
	}

	if endpoints != nil && endpoints.Market != nil {
		checks = append(checks, health.Config{
			Name:      "market-api",
			Timeout:   5 * time.Second,
			SkipOnErr: true,
			Check:     endpoints.Market.Ping,
		})
	}

	if cfg.Stripe.APIKey != "" {
		checks = append(checks, health.Config{
			Name:      "stripe",
			Timeout:   5 * time.Second,
			SkipOnErr: true,
			Check:     stripeCheck,
		})
	}

	h, err := health.New(
		health.WithComponent(health.Component{
			Name:    "agri-marketplace",
			Version: "1.0.0",
		}),
		health.WithSystemInfo(),
		health.WithChecks(checks...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create health instance: %w", err)
	}

	return h, nil
}

func stripeCheck(ctx context.Context) error {
	if stripe.Key == "" {
		return errors.New("stripe client is not initialized")
	}

	params := &stripe.BalanceParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	if _, err := balance.Get(params); err != nil {
		return fmt.Errorf("failed to connect to stripe: %w", err)
	}

	return nil
}
