package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/negotiation"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrNegotiationNotFound = errors.New("archived negotiation not found")
	ErrNegotiationArchived = errors.New("negotiation is already archived")
)

// NegotiationRepository archives closed negotiation threads. The live
// state is owned by the negotiator; a row is written once, when a thread
// reaches a terminal status, and is read back for history.
type NegotiationRepository struct {
	DB *sql.DB
}

func NewNegotiationRepository(db *sql.DB) *NegotiationRepository {
	return &NegotiationRepository{DB: db}
}

func (r *NegotiationRepository) Save(ctx context.Context, rec negotiation.Record) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	offers, err := json.Marshal(rec.Offers)
	if err != nil {
		return fmt.Errorf("failed to marshal offers: %w", err)
	}

	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	var agreed decimal.NullDecimal
	if price, ok := rec.AgreedPrice(); ok {
		agreed = decimal.NewNullDecimal(price)
	}

	query := `
		INSERT INTO negotiations (id, product_id, buyer_id, farmer_id, original_price, status, agreed_price, offers, messages, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.DB.ExecContext(dbCtx, query,
		rec.ID, rec.ProductID, rec.BuyerID, rec.FarmerID, rec.OriginalPrice.String(),
		string(rec.Status), agreed, offers, messages, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to archive negotiation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to archive negotiation: %w", err)
	}

	// a closed outcome is written once and never replaced
	if rows == 0 {
		return ErrNegotiationArchived
	}

	return nil
}

func (r *NegotiationRepository) GetByID(ctx context.Context, id string) (*negotiation.Record, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, product_id, buyer_id, farmer_id, original_price, status, offers, messages, created_at
		FROM negotiations
		WHERE id = $1
	`

	rec, err := scanRecord(r.DB.QueryRowContext(dbCtx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNegotiationNotFound
		}

		return nil, fmt.Errorf("failed to fetch negotiation: %w", err)
	}

	return rec, nil
}

// ListByParticipant returns archived threads where the user was buyer or
// farmer, newest first.
func (r *NegotiationRepository) ListByParticipant(ctx context.Context, userID string, limit int) ([]negotiation.Record, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, product_id, buyer_id, farmer_id, original_price, status, offers, messages, created_at
		FROM negotiations
		WHERE buyer_id = $1 OR farmer_id = $1
		ORDER BY closed_at DESC
		LIMIT $2
	`

	rows, err := r.DB.QueryContext(dbCtx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list negotiations: %w", err)
	}
	defer rows.Close()

	records := make([]negotiation.Record, 0)

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan negotiation: %w", err)
		}

		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating negotiations: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*negotiation.Record, error) {
	var (
		rec              negotiation.Record
		status           string
		offers, messages []byte
	)

	err := s.Scan(&rec.ID, &rec.ProductID, &rec.BuyerID, &rec.FarmerID, &rec.OriginalPrice, &status, &offers, &messages, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = negotiation.Status(status)

	if err := json.Unmarshal(offers, &rec.Offers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offers: %w", err)
	}

	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	return &rec, nil
}
