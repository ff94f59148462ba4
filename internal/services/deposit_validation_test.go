package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/models"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func itemSnapshot(items ...models.JobItemBalance) map[int64]models.JobItemBalance {
	m := make(map[int64]models.JobItemBalance, len(items))
	for _, item := range items {
		m[item.ID] = item
	}
	return m
}

func TestValidateAllocations(t *testing.T) {
	t.Run("valid batch", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("0")},
			models.JobItemBalance{ID: 102, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("0")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("250.00")},
			{JobID: 10, JobItemID: 102, Amount: dec("150.00")},
		}

		validated, err := ValidateAllocations(1, dec("1000.00"), items, lines)
		assert.NoError(t, err)
		assert.Len(t, validated, 2)
	})

	t.Run("aggregates duplicate item lines before cap checks", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("200.00"), Allocated: dec("0")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("150.00")},
			{JobID: 10, JobItemID: 101, Amount: dec("100.00")},
		}

		_, err := ValidateAllocations(1, dec("1000.00"), items, lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "would exceed item total")
		assert.Contains(t, err.Error(), "250.00")
	})

	t.Run("aggregated duplicates count against the deposit cap", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("0")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("150.00")},
			{JobID: 10, JobItemID: 101, Amount: dec("100.00")},
		}

		_, err := ValidateAllocations(1, dec("200.00"), items, lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "Requested total (250.00) exceeds available amount (200.00)")
	})

	t.Run("deposit cap exceeded", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("0")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("200.00")},
		}

		_, err := ValidateAllocations(1, dec("100.00"), items, lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "exceeds available amount")
		assert.Contains(t, err.Error(), "100.00")
	})

	t.Run("item cap exceeded", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("800.00")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("300.00")},
		}

		_, err := ValidateAllocations(1, dec("5000.00"), items, lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "would exceed item total")
		assert.Contains(t, err.Error(), "1100.00")
		assert.Contains(t, err.Error(), "1000.00")
	})

	t.Run("cross tenant item rejects whole batch", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("0")},
			models.JobItemBalance{ID: 201, JobID: 20, CustomerID: 2, TotalAmount: dec("1000.00"), Allocated: dec("0")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("100.00")},
			{JobID: 20, JobItemID: 201, Amount: dec("100.00")},
		}

		_, err := ValidateAllocations(1, dec("1000.00"), items, lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindCrossTenant, apperrors.KindOf(err))
	})

	t.Run("missing item", func(t *testing.T) {
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 999, Amount: dec("100.00")},
		}

		_, err := ValidateAllocations(1, dec("1000.00"), itemSnapshot(), lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	})

	t.Run("item on wrong job", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("0")},
		)
		lines := []AllocationLine{
			{JobID: 99, JobItemID: 101, Amount: dec("100.00")},
		}

		_, err := ValidateAllocations(1, dec("1000.00"), items, lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("non positive amount", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("0")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("0")},
		}

		_, err := ValidateAllocations(1, dec("1000.00"), items, lines)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := ValidateAllocations(1, dec("1000.00"), itemSnapshot(), nil)
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("exact remaining is allowed", func(t *testing.T) {
		items := itemSnapshot(
			models.JobItemBalance{ID: 101, JobID: 10, CustomerID: 1, TotalAmount: dec("1000.00"), Allocated: dec("800.00")},
		)
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("200.00")},
		}

		validated, err := ValidateAllocations(1, dec("200.00"), items, lines)
		assert.NoError(t, err)
		assert.Len(t, validated, 1)
		assert.True(t, validated[0].Amount.Equal(dec("200.00")))
	})
}
