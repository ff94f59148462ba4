package services

import (
	"github.com/shopspring/decimal"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/models"
)

// AllocationLine is one requested allocation in a batch.
type AllocationLine struct {
	JobID          int64           `json:"jobId" validate:"required,gt=0"`
	JobItemID      int64           `json:"jobItemId" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount"`
	AllocationDate string          `json:"allocationDate,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// ValidateAllocations checks a batch of requested lines against the
// deposit's remaining amount and a snapshot of the referenced job items.
// Pure computation, no writes. Lines referencing the same job item are
// summed into one logical line before any cap check, and a single
// violation rejects the whole batch.
func ValidateAllocations(
	depositCustomerID int64,
	depositRemaining decimal.Decimal,
	items map[int64]models.JobItemBalance,
	lines []AllocationLine,
) ([]AllocationLine, error) {
	if len(lines) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "at least one allocation line is required")
	}

	for _, line := range lines {
		if line.JobID <= 0 || line.JobItemID <= 0 {
			return nil, apperrors.New(apperrors.KindValidation, "allocation line is missing jobId or jobItemId")
		}
		if !line.Amount.IsPositive() {
			return nil, apperrors.Newf(apperrors.KindValidation,
				"allocation amount must be positive, got %s", line.Amount.String())
		}
	}

	// Aggregate duplicate item references before any cap check
	aggregated := make([]AllocationLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, line := range lines {
		if i, ok := index[line.JobItemID]; ok {
			aggregated[i].Amount = aggregated[i].Amount.Add(line.Amount)
			continue
		}
		index[line.JobItemID] = len(aggregated)
		aggregated = append(aggregated, line)
	}

	for _, line := range aggregated {
		item, ok := items[line.JobItemID]
		if !ok {
			return nil, apperrors.Newf(apperrors.KindNotFound, "job item %d not found", line.JobItemID)
		}
		if item.JobID != line.JobID {
			return nil, apperrors.Newf(apperrors.KindValidation,
				"job item %d does not belong to job %d", line.JobItemID, line.JobID)
		}
		if item.CustomerID != depositCustomerID {
			return nil, apperrors.Newf(apperrors.KindCrossTenant,
				"job item %d belongs to a different customer", line.JobItemID)
		}
	}

	requestedTotal := decimal.Zero
	for _, line := range aggregated {
		requestedTotal = requestedTotal.Add(line.Amount)
	}
	if requestedTotal.GreaterThan(depositRemaining) {
		return nil, apperrors.Newf(apperrors.KindOverAllocation,
			"Requested total (%s) exceeds available amount (%s)",
			requestedTotal.StringFixed(2), depositRemaining.StringFixed(2))
	}

	for _, line := range aggregated {
		item := items[line.JobItemID]
		wouldBe := item.Allocated.Add(line.Amount)
		if wouldBe.GreaterThan(item.TotalAmount) {
			return nil, apperrors.Newf(apperrors.KindOverAllocation,
				"Item %d allocations (%s) would exceed item total (%s)",
				line.JobItemID, wouldBe.StringFixed(2), item.TotalAmount.StringFixed(2))
		}
	}

	return aggregated, nil
}
