package api

import (
	"context"
	"errors"

	"lottery/models"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain tags the ErrorInfo detail attached to every mapped status
const errorDomain = "lottery"

var errorCodes = []struct {
	err    error
	code   codes.Code
	reason string
}{
	{models.ErrInvalidAmount, codes.InvalidArgument, "INVALID_AMOUNT"},
	{models.ErrInvalidIdentity, codes.InvalidArgument, "INVALID_IDENTITY"},
	{models.ErrInvalidLayout, codes.InvalidArgument, "INVALID_LAYOUT"},
	{models.ErrInvalidCapacity, codes.InvalidArgument, "INVALID_CAPACITY"},
	{models.ErrTooManyPlayers, codes.ResourceExhausted, "TOO_MANY_PLAYERS"},
	{models.ErrOverflow, codes.OutOfRange, "OVERFLOW"},
	{models.ErrNoPlayers, codes.FailedPrecondition, "NO_PLAYERS"},
	{models.ErrInsufficientBalance, codes.FailedPrecondition, "INSUFFICIENT_BALANCE"},
	{models.ErrUnverifiablePayout, codes.FailedPrecondition, "UNVERIFIABLE_PAYOUT"},
	{models.ErrUnauthorizedPayee, codes.PermissionDenied, "UNAUTHORIZED_PAYEE"},
	{models.ErrAlreadyInitialized, codes.AlreadyExists, "ALREADY_INITIALIZED"},
	{models.ErrRoundNotFound, codes.NotFound, "ROUND_NOT_FOUND"},
	{models.ErrAccountNotFound, codes.NotFound, "ACCOUNT_NOT_FOUND"},
	{context.Canceled, codes.Canceled, "CANCELED"},
	{context.DeadlineExceeded, codes.DeadlineExceeded, "DEADLINE_EXCEEDED"},
}

// toStatus converts a service error into a gRPC status error carrying an
// ErrorInfo detail that names the sentinel
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, ec := range errorCodes {
		if !errors.Is(err, ec.err) {
			continue
		}
		st := status.New(ec.code, err.Error())
		withInfo, detailErr := st.WithDetails(&errdetails.ErrorInfo{
			Reason: ec.reason,
			Domain: errorDomain,
		})
		if detailErr != nil {
			return st.Err()
		}
		return withInfo.Err()
	}
	return status.Error(codes.Internal, "internal error")
}

// FromStatus maps a gRPC status error back onto the sentinel named by its
// ErrorInfo detail, so callers can keep using errors.Is. Other errors are
// returned unchanged.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		for _, ec := range errorCodes {
			if ec.reason == info.GetReason() && ec.code == st.Code() {
				return &statusError{sentinel: ec.err, status: err}
			}
		}
	}
	return err
}

// statusError keeps the original status text while matching a sentinel
type statusError struct {
	sentinel error
	status   error
}

func (e *statusError) Error() string { return e.status.Error() }

func (e *statusError) Unwrap() []error { return []error{e.sentinel, e.status} }
