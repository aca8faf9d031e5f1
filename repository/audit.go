package repository

import (
	"context"
	"fmt"

	"lottery/database"

	"github.com/jackc/pgx/v5"
)

// PoolMismatch is a round whose recorded pool differs from its pool account
type PoolMismatch struct {
	RoundID     string
	TotalPool   uint64
	PoolBalance uint64
}

// AuditPools compares every round's total_pool with the balance of its pool
// account inside one transaction. A healthy ledger returns no mismatches.
func AuditPools(ctx context.Context, db *database.DB) ([]PoolMismatch, error) {
	var mismatches []PoolMismatch

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT r.id, r.total_pool::text, a.balance::text
			FROM lottery_rounds r
			JOIN accounts a ON a.id = r.pool_account_id
			WHERE r.total_pool <> a.balance
			ORDER BY r.id
		`)
		if err != nil {
			return fmt.Errorf("failed to query pool balances: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var m PoolMismatch
			var pool, balance string
			if err := rows.Scan(&m.RoundID, &pool, &balance); err != nil {
				return fmt.Errorf("failed to scan pool balance: %w", err)
			}
			if m.TotalPool, err = parseAmount("total_pool", pool); err != nil {
				return err
			}
			if m.PoolBalance, err = parseAmount("balance", balance); err != nil {
				return err
			}
			mismatches = append(mismatches, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return mismatches, nil
}
