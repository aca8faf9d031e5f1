package testutil

import (
	"time"

	"lottery/models"
)

// CreateTestRound creates an open roster round with default values
func CreateTestRound(id string) *models.LotteryRound {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.LotteryRound{
		ID:           id,
		Layout:       models.RoundLayoutRoster,
		MaxPlayers:   models.DefaultMaxPlayers,
		Participants: []string{},
		RoundNumber:  1,
		Authority:    "admin",
		OpenedAt:     now,
	}
}

// CreateTestRoundWithEntries creates a roster round that already holds the given entries
func CreateTestRoundWithEntries(id string, players []string, amounts []uint64) *models.LotteryRound {
	round := CreateTestRound(id)
	for i, p := range players {
		round.Participants = append(round.Participants, p)
		round.TotalPool += amounts[i]
	}
	round.ParticipantCount = len(players)
	return round
}

// CreateTestBalanceHistory creates a balance history entry for a deposit
func CreateTestBalanceHistory(accountID string, before, amount uint64) *models.BalanceHistory {
	return &models.BalanceHistory{
		AccountID:       accountID,
		BalanceBefore:   before,
		BalanceAfter:    before + amount,
		ChangeAmount:    amount,
		Direction:       models.DirectionCredit,
		TransactionType: models.TransactionTypeDeposit,
		TransactionMetadata: map[string]any{
			"test": true,
		},
	}
}
