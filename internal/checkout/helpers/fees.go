package helpers

import (
	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
	"github.com/stallside/stallside-backend/pkg/money"
)

// SellerPayout is the settled amount owed to one seller after fees.
type SellerPayout struct {
	SellerID           uuid.UUID
	ConnectDestination *string
	SubtotalCents      int
	FeeShareCents      int
	PayoutCents        int
}

// FeeBreakdown is the full money picture for one checkout. Invariant:
// TotalCents == sum(PayoutCents) + PlatformFeeCents in every mode.
type FeeBreakdown struct {
	Mode             enums.CheckoutMode
	SubtotalCents    int
	PlatformFeeCents int
	TotalCents       int
	Payouts          []SellerPayout
}

// ComputeFees applies the fee policy for the given mode.
//
// Standard mode adds the fee on top of the cart subtotal; sellers are paid
// their full group subtotal. Escrow mode deducts a per-group fee share from
// each seller payout and charges the buyer the bare subtotal. Per-group
// shares round half-up independently, so any residual against the cart-level
// fee lands on the largest group to keep the totals balanced.
func ComputeFees(groups []SellerGroup, mode enums.CheckoutMode, rateBPS int) (FeeBreakdown, error) {
	if len(groups) == 0 {
		return FeeBreakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "no seller groups to price")
	}
	if rateBPS <= 0 || rateBPS >= 10000 {
		return FeeBreakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "fee rate out of range")
	}

	subtotal := CartSubtotalCents(groups)
	cartFee := money.ApplyBasisPoints(subtotal, rateBPS)

	switch mode {
	case enums.CheckoutModeStandard:
		payouts := make([]SellerPayout, len(groups))
		for i, group := range groups {
			payouts[i] = SellerPayout{
				SellerID:           group.SellerID,
				ConnectDestination: group.ConnectDestination,
				SubtotalCents:      group.SubtotalCents,
				FeeShareCents:      0,
				PayoutCents:        group.SubtotalCents,
			}
		}
		return FeeBreakdown{
			Mode:             mode,
			SubtotalCents:    subtotal,
			PlatformFeeCents: cartFee,
			TotalCents:       subtotal + cartFee,
			Payouts:          payouts,
		}, nil

	case enums.CheckoutModeEscrow:
		payouts := make([]SellerPayout, len(groups))
		sharesTotal := 0
		largest := 0
		for i, group := range groups {
			share := money.ApplyBasisPoints(group.SubtotalCents, rateBPS)
			payouts[i] = SellerPayout{
				SellerID:           group.SellerID,
				ConnectDestination: group.ConnectDestination,
				SubtotalCents:      group.SubtotalCents,
				FeeShareCents:      share,
			}
			sharesTotal += share
			if group.SubtotalCents > groups[largest].SubtotalCents {
				largest = i
			}
		}
		if residual := cartFee - sharesTotal; residual != 0 {
			payouts[largest].FeeShareCents += residual
		}
		for i := range payouts {
			payouts[i].PayoutCents = payouts[i].SubtotalCents - payouts[i].FeeShareCents
		}
		return FeeBreakdown{
			Mode:             mode,
			SubtotalCents:    subtotal,
			PlatformFeeCents: cartFee,
			TotalCents:       subtotal,
			Payouts:          payouts,
		}, nil

	default:
		return FeeBreakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown checkout mode").
			WithDetails(map[string]any{"mode": mode})
	}
}
