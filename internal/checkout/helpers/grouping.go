package helpers

import (
	"github.com/google/uuid"

	"github.com/stallside/stallside-backend/internal/verification"
)

// SellerGroup bundles verified lines belonging to one seller.
type SellerGroup struct {
	SellerID           uuid.UUID
	ConnectDestination *string
	Lines              []verification.VerifiedLine
	SubtotalCents      int
}

// GroupBySeller partitions verified lines by seller. Groups come out in
// first-seen seller order and lines keep their cart order inside each
// group, so the result is deterministic for identical input.
func GroupBySeller(lines []verification.VerifiedLine) []SellerGroup {
	indexBySeller := make(map[uuid.UUID]int, len(lines))
	groups := make([]SellerGroup, 0, len(lines))
	for _, line := range lines {
		idx, ok := indexBySeller[line.SellerID]
		if !ok {
			idx = len(groups)
			indexBySeller[line.SellerID] = idx
			groups = append(groups, SellerGroup{
				SellerID:           line.SellerID,
				ConnectDestination: line.ConnectDestination,
			})
		}
		groups[idx].Lines = append(groups[idx].Lines, line)
		groups[idx].SubtotalCents += line.TotalCents()
		if groups[idx].ConnectDestination == nil && line.ConnectDestination != nil {
			groups[idx].ConnectDestination = line.ConnectDestination
		}
	}
	return groups
}

// CartSubtotalCents sums the canonical subtotals across all groups.
func CartSubtotalCents(groups []SellerGroup) int {
	total := 0
	for _, group := range groups {
		total += group.SubtotalCents
	}
	return total
}
