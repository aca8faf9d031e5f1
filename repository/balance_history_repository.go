package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"lottery/database"
	"lottery/models"
)

// BalanceHistoryRepository implements the BalanceHistoryRepository interface
type BalanceHistoryRepository struct {
	q queryable
}

// NewBalanceHistoryRepository creates a new balance history repository
func NewBalanceHistoryRepository(db *database.DB) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{q: db.Pool}
}

// newBalanceHistoryRepositoryWithTx creates a new balance history repository with a transaction
func newBalanceHistoryRepositoryWithTx(tx queryable) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{q: tx}
}

// Record creates a new balance history entry
func (r *BalanceHistoryRepository) Record(ctx context.Context, history *models.BalanceHistory) error {
	metadata := history.TransactionMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}

	query := `
		INSERT INTO balance_history
		(account_id, balance_before, balance_after, change_amount, direction,
		 transaction_type, transaction_metadata, round_id)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		history.AccountID,
		formatAmount(history.BalanceBefore),
		formatAmount(history.BalanceAfter),
		formatAmount(history.ChangeAmount),
		history.Direction,
		history.TransactionType,
		metadataJSON,
		history.RoundID,
	).Scan(&history.ID, &history.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record balance history for account %s: %w", history.AccountID, err)
	}

	return nil
}

// GetByAccount returns the most recent balance history entries for an account
func (r *BalanceHistoryRepository) GetByAccount(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error) {
	query := `
		SELECT id, account_id, balance_before::text, balance_after::text, change_amount::text,
		       direction, transaction_type, transaction_metadata, round_id, created_at
		FROM balance_history
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance history for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var histories []*models.BalanceHistory
	for rows.Next() {
		var h models.BalanceHistory
		var before, after, change string
		var metadataJSON []byte

		err := rows.Scan(
			&h.ID,
			&h.AccountID,
			&before,
			&after,
			&change,
			&h.Direction,
			&h.TransactionType,
			&metadataJSON,
			&h.RoundID,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance history: %w", err)
		}

		if h.BalanceBefore, err = parseAmount("balance_before", before); err != nil {
			return nil, err
		}
		if h.BalanceAfter, err = parseAmount("balance_after", after); err != nil {
			return nil, err
		}
		if h.ChangeAmount, err = parseAmount("change_amount", change); err != nil {
			return nil, err
		}

		if err := json.Unmarshal(metadataJSON, &h.TransactionMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
		}

		histories = append(histories, &h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balance history: %w", err)
	}

	return histories, nil
}
