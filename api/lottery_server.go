package api

import (
	"context"

	"lottery/models"
	"lottery/service"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// CallerMetadataKey carries the identity of the invoking account. The host
// is trusted to authenticate the caller before this metadata is set.
const CallerMetadataKey = "x-lottery-caller"

// LotteryServer exposes the lottery and account services over gRPC
type LotteryServer struct {
	lottery  service.LotteryService
	accounts service.AccountService
}

// NewLotteryServer creates a new lottery gRPC server
func NewLotteryServer(lottery service.LotteryService, accounts service.AccountService) *LotteryServer {
	return &LotteryServer{
		lottery:  lottery,
		accounts: accounts,
	}
}

func callerFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(CallerMetadataKey); len(values) > 0 {
		return values[0]
	}
	return ""
}

// Initialize creates a round. Accepts round_id, layout and max_players,
// all optional.
func (s *LotteryServer) Initialize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	maxPlayers, err := intField(in, "max_players")
	if err != nil {
		return nil, err
	}
	req := service.InitializeRequest{
		RoundID:    stringField(in, "round_id"),
		MaxPlayers: maxPlayers,
	}
	if layout := stringField(in, "layout"); layout != "" {
		parsed, err := models.ParseRoundLayout(layout)
		if err != nil {
			return nil, toStatus(err)
		}
		req.Layout = parsed
	}

	info, err := s.lottery.Initialize(ctx, callerFromContext(ctx), req)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(roundInfoFields(info))
}

// Enter stakes amount from the caller into round_id
func (s *LotteryServer) Enter(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	amount, err := amountField(in, "amount")
	if err != nil {
		return nil, err
	}

	result, err := s.lottery.Enter(ctx, callerFromContext(ctx), stringField(in, "round_id"), amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"player": result.Player,
		"amount": formatAmount(result.Amount),
		"round":  roundInfoFields(result.Round),
	})
}

// PickWinner pays round_id's pool to payee if payee is the selected winner
func (s *LotteryServer) PickWinner(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	result, err := s.lottery.PickWinner(ctx, callerFromContext(ctx), stringField(in, "round_id"), stringField(in, "payee"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"round_id":          result.RoundID,
		"settled_round":     result.SettledRound,
		"winner":            result.Winner,
		"winner_index":      result.WinnerIndex,
		"payout":            formatAmount(result.Payout),
		"participant_count": result.ParticipantCount,
		"verified":          result.Verified,
		"round":             roundInfoFields(result.Round),
	})
}

// GetInfo returns the pool and participant count of round_id
func (s *LotteryServer) GetInfo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	info, err := s.lottery.GetInfo(ctx, stringField(in, "round_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(roundInfoFields(info))
}

// Deposit credits account_id with amount
func (s *LotteryServer) Deposit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	amount, err := amountField(in, "amount")
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.Deposit(ctx, stringField(in, "account_id"), amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(accountFields(account))
}

// GetBalance returns the balance of account_id
func (s *LotteryServer) GetBalance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	account, err := s.accounts.GetAccount(ctx, stringField(in, "account_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(accountFields(account))
}

func accountFields(account *models.Account) map[string]any {
	return map[string]any{
		"account_id": account.ID,
		"kind":       string(account.Kind),
		"balance":    formatAmount(account.Balance),
	}
}
