package api

import (
	"fmt"
	"math"
	"strconv"

	"lottery/models"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactFloat is the largest integer a JSON number carries without loss
const maxExactFloat = 1 << 53

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

// amountField reads an amount sent either as a decimal string or as a whole
// number small enough to be exact
func amountField(in *structpb.Struct, name string) (uint64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		amount, err := strconv.ParseUint(kind.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an unsigned integer: %v", name, err)
		}
		return amount, nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if f < 0 || f != math.Trunc(f) || f > maxExactFloat {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a whole number up to 2^53, send larger amounts as strings", name)
		}
		return uint64(f), nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a string or number", name)
	}
}

func intField(in *structpb.Struct, name string) (int, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, nil
	}
	f := v.GetNumberValue()
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int(f), nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func roundInfoFields(info *models.RoundInfo) map[string]any {
	return map[string]any{
		"round_id":          info.RoundID,
		"total_pool":        formatAmount(info.TotalPool),
		"participant_count": info.ParticipantCount,
		"layout":            string(info.Layout),
		"max_players":       info.MaxPlayers,
		"round_number":      info.RoundNumber,
	}
}

// RoundInfoFromStruct decodes a round info document
func RoundInfoFromStruct(in *structpb.Struct) (*models.RoundInfo, error) {
	pool, err := parseAmount("total_pool", stringField(in, "total_pool"))
	if err != nil {
		return nil, err
	}
	fields := in.GetFields()
	return &models.RoundInfo{
		RoundID:          stringField(in, "round_id"),
		TotalPool:        pool,
		ParticipantCount: int(fields["participant_count"].GetNumberValue()),
		Layout:           models.RoundLayout(stringField(in, "layout")),
		MaxPlayers:       int(fields["max_players"].GetNumberValue()),
		RoundNumber:      int64(fields["round_number"].GetNumberValue()),
	}, nil
}
