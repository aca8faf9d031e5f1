package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"lottery/database"
	"lottery/models"

	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository with a transaction
func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

const accountColumns = `id, kind, balance::text, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	var balance string
	if err := row.Scan(&account.ID, &account.Kind, &balance, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	v, err := parseAmount("balance", balance)
	if err != nil {
		return nil, err
	}
	account.Balance = v
	return &account, nil
}

// GetByID retrieves an account by id
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return account, nil
}

// GetForUpdate locks the given accounts in id order
func (r *AccountRepository) GetForUpdate(ctx context.Context, ids ...string) (map[string]*models.Account, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := r.q.Query(ctx, query, sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*models.Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// Create creates an account with a zero balance
func (r *AccountRepository) Create(ctx context.Context, id string, kind models.AccountKind) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, kind, balance)
		VALUES ($1, $2, 0)
		RETURNING ` + accountColumns

	account, err := scanAccount(r.q.QueryRow(ctx, query, id, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", id, err)
	}
	return account, nil
}

// UpdateBalance sets an account's balance
func (r *AccountRepository) UpdateBalance(ctx context.Context, id string, balance uint64) error {
	query := `
		UPDATE accounts
		SET balance = $1::numeric
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, formatAmount(balance), id)
	if err != nil {
		return fmt.Errorf("failed to update balance for account %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
	}

	return nil
}
