package api

import (
	"context"
	"fmt"

	"lottery/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a lottery host over gRPC. Errors are mapped back onto the
// sentinel errors in models where the status identifies one.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// WithCaller attaches the invoking account identity to outgoing calls
func WithCaller(ctx context.Context, caller string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, CallerMetadataKey, caller)
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, FromStatus(err)
	}
	return out, nil
}

// Initialize creates a round. Zero values use the host defaults.
func (c *Client) Initialize(ctx context.Context, roundID string, layout models.RoundLayout, maxPlayers int) (*models.RoundInfo, error) {
	fields := map[string]any{}
	if roundID != "" {
		fields["round_id"] = roundID
	}
	if layout != "" {
		fields["layout"] = string(layout)
	}
	if maxPlayers != 0 {
		fields["max_players"] = maxPlayers
	}

	out, err := c.invoke(ctx, MethodInitialize, fields)
	if err != nil {
		return nil, err
	}
	return RoundInfoFromStruct(out)
}

// Enter stakes amount into roundID
func (c *Client) Enter(ctx context.Context, roundID string, amount uint64) (*models.RoundInfo, error) {
	out, err := c.invoke(ctx, MethodEnter, map[string]any{
		"round_id": roundID,
		"amount":   formatAmount(amount),
	})
	if err != nil {
		return nil, err
	}
	return RoundInfoFromStruct(out.GetFields()["round"].GetStructValue())
}

// PickWinner claims roundID's pool for payee and returns the winner and payout
func (c *Client) PickWinner(ctx context.Context, roundID, payee string) (string, uint64, error) {
	out, err := c.invoke(ctx, MethodPickWinner, map[string]any{
		"round_id": roundID,
		"payee":    payee,
	})
	if err != nil {
		return "", 0, err
	}
	payout, err := parseAmount("payout", stringField(out, "payout"))
	if err != nil {
		return "", 0, err
	}
	return stringField(out, "winner"), payout, nil
}

// GetInfo returns roundID's pool and participant count
func (c *Client) GetInfo(ctx context.Context, roundID string) (*models.RoundInfo, error) {
	out, err := c.invoke(ctx, MethodGetInfo, map[string]any{"round_id": roundID})
	if err != nil {
		return nil, err
	}
	return RoundInfoFromStruct(out)
}

// Deposit credits accountID and returns the new balance
func (c *Client) Deposit(ctx context.Context, accountID string, amount uint64) (uint64, error) {
	out, err := c.invoke(ctx, MethodDeposit, map[string]any{
		"account_id": accountID,
		"amount":     formatAmount(amount),
	})
	if err != nil {
		return 0, err
	}
	return parseAmount("balance", stringField(out, "balance"))
}

// GetBalance returns accountID's balance
func (c *Client) GetBalance(ctx context.Context, accountID string) (uint64, error) {
	out, err := c.invoke(ctx, MethodGetBalance, map[string]any{"account_id": accountID})
	if err != nil {
		return 0, err
	}
	return parseAmount("balance", stringField(out, "balance"))
}
