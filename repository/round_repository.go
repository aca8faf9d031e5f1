package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lottery/database"
	"lottery/models"

	"github.com/jackc/pgx/v5"
)

// RoundRepository implements the RoundRepository interface
type RoundRepository struct {
	q queryable
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db *database.DB) *RoundRepository {
	return &RoundRepository{q: db.Pool}
}

// newRoundRepositoryWithTx creates a new round repository with a transaction
func newRoundRepositoryWithTx(tx queryable) *RoundRepository {
	return &RoundRepository{q: tx}
}

const roundColumns = `
	id, layout, max_players, total_pool::text, participants, participant_count,
	round_number, authority, opened_at, created_at, updated_at`

func scanRound(row pgx.Row) (*models.LotteryRound, error) {
	var round models.LotteryRound
	var totalPool string
	err := row.Scan(
		&round.ID,
		&round.Layout,
		&round.MaxPlayers,
		&totalPool,
		&round.Participants,
		&round.ParticipantCount,
		&round.RoundNumber,
		&round.Authority,
		&round.OpenedAt,
		&round.CreatedAt,
		&round.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if round.TotalPool, err = parseAmount("total_pool", totalPool); err != nil {
		return nil, err
	}
	if round.Participants == nil {
		round.Participants = []string{}
	}
	return &round, nil
}

// Create inserts a new round. A conflicting id means the round already exists.
func (r *RoundRepository) Create(ctx context.Context, round *models.LotteryRound) error {
	query := `
		INSERT INTO lottery_rounds
		(id, layout, max_players, total_pool, participants, participant_count,
		 round_number, authority, opened_at, pool_account_id)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		round.ID,
		round.Layout,
		round.MaxPlayers,
		formatAmount(round.TotalPool),
		participantsOrEmpty(round.Participants),
		round.ParticipantCount,
		round.RoundNumber,
		round.Authority,
		round.OpenedAt,
		round.PoolAccountID(),
	).Scan(&round.CreatedAt, &round.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrAlreadyInitialized, round.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create round %s: %w", round.ID, err)
	}

	return nil
}

// GetByID retrieves a round without locking it
func (r *RoundRepository) GetByID(ctx context.Context, id string) (*models.LotteryRound, error) {
	query := `SELECT ` + roundColumns + ` FROM lottery_rounds WHERE id = $1`

	round, err := scanRound(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round %s: %w", id, err)
	}
	return round, nil
}

// GetForUpdate retrieves a round and holds its row lock until the transaction ends
func (r *RoundRepository) GetForUpdate(ctx context.Context, id string) (*models.LotteryRound, error) {
	query := `SELECT ` + roundColumns + ` FROM lottery_rounds WHERE id = $1 FOR UPDATE`

	round, err := scanRound(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock round %s: %w", id, err)
	}
	return round, nil
}

// Save writes the mutable fields of a round
func (r *RoundRepository) Save(ctx context.Context, round *models.LotteryRound) error {
	query := `
		UPDATE lottery_rounds
		SET total_pool = $1::numeric,
		    participants = $2,
		    participant_count = $3,
		    round_number = $4,
		    opened_at = $5
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		formatAmount(round.TotalPool),
		participantsOrEmpty(round.Participants),
		round.ParticipantCount,
		round.RoundNumber,
		round.OpenedAt,
		round.ID,
	).Scan(&round.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrRoundNotFound, round.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to save round %s: %w", round.ID, err)
	}

	return nil
}

// ListSettleable returns roster rounds with participants that opened at or before the cutoff
func (r *RoundRepository) ListSettleable(ctx context.Context, openedBefore time.Time, limit int) ([]string, error) {
	query := `
		SELECT id
		FROM lottery_rounds
		WHERE layout = 'roster'
		  AND participant_count > 0
		  AND opened_at <= $1
		ORDER BY opened_at
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, openedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list settleable rounds: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan settleable rounds: %w", err)
	}
	return ids, nil
}

// participantsOrEmpty keeps a nil roster from being written as NULL
func participantsOrEmpty(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}
