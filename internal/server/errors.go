package server

import (
	"errors"
	"log"
	"strconv"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/loyalty/internal/service"
)

// Response metadata carrying the machine-readable failure reason.
const (
	reasonHeader    = "Loyalty-Error"
	availableHeader = "Loyalty-Available-Points"
)

type errorKind struct {
	target error
	code   connect.Code
	reason string
}

// errorKinds is ordered: the first matching sentinel wins.
var errorKinds = []errorKind{
	{service.ErrInvalidArgument, connect.CodeInvalidArgument, "invalid_argument"},
	{service.ErrNotFound, connect.CodeNotFound, "not_found"},
	{service.ErrAlreadyRedeemed, connect.CodeAlreadyExists, "already_redeemed"},
	{service.ErrAlreadyUsed, connect.CodeAlreadyExists, "already_used"},
	{service.ErrExpired, connect.CodeFailedPrecondition, "expired"},
	{service.ErrRewardExpired, connect.CodeFailedPrecondition, "reward_expired"},
	{service.ErrNoCard, connect.CodeFailedPrecondition, "no_card"},
	{service.ErrInsufficientPoints, connect.CodeFailedPrecondition, "insufficient_points"},
	{service.ErrOutOfStock, connect.CodeResourceExhausted, "out_of_stock"},
	{service.ErrCodeSpaceExhausted, connect.CodeResourceExhausted, "code_space_exhausted"},
	{service.ErrConflict, connect.CodeAborted, "conflict"},
}

// toConnectError maps service errors onto Connect codes. Anything that is
// not a business error is logged and hidden behind CodeInternal.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	for _, k := range errorKinds {
		if !errors.Is(err, k.target) {
			continue
		}
		cerr = connect.NewError(k.code, err)
		cerr.Meta().Set(reasonHeader, k.reason)

		var shortage *service.InsufficientPointsError
		if errors.As(err, &shortage) {
			cerr.Meta().Set(availableHeader, strconv.Itoa(shortage.Available))
		}
		return cerr
	}

	if service.IsFatal(err) {
		log.Printf("[RPC] FATAL: %v", err)
	} else {
		log.Printf("[RPC] internal error: %v", err)
	}
	cerr = connect.NewError(connect.CodeInternal, errors.New("internal error"))
	cerr.Meta().Set(reasonHeader, "internal")
	return cerr
}

// Reason extracts the failure reason a server attached to err.
func Reason(err error) string {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr.Meta().Get(reasonHeader)
	}
	return ""
}

func rateLimited() error {
	cerr := connect.NewError(connect.CodeResourceExhausted, errors.New("too many redemption attempts"))
	cerr.Meta().Set(reasonHeader, "rate_limited")
	return cerr
}
