package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/config"
	"go.opentelemetry.io/otel/attribute"

	_ "github.com/lib/pq"
)

type Repository struct {
	DB *sql.DB
}

func New(ctx context.Context, cfg *config.Config) (*Repository, *NegotiationRepository, error) {
	dbAttrs := otelsql.WithAttributes(attribute.String("db.system", "postgresql"))

	db, err := otelsql.Open("postgres", cfg.Database.GetDSN(), dbAttrs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, dbAttrs); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to register db stats metrics: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	// Test the connection to make sure DB is reachable
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Repository{DB: db}, NewNegotiationRepository(db), nil
}

func (p *Repository) Close() error {
	return p.DB.Close()
}
