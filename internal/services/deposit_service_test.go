package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/database"
)

func balanceRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRows([]string{"id", "job_id", "customer_id", "total_amount", "allocated"})
}

func TestDepositService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDepositService(db, database.Capabilities{})
	ctx := context.Background()

	t.Run("creates deposit with initial allocations", func(t *testing.T) {
		req := &CreateDepositRequest{
			CustomerID:    1,
			PaymentMethod: "check",
			TotalAmount:   dec("1000.00"),
			Allocations: []AllocationLine{
				{JobID: 10, JobItemID: 101, Amount: dec("250.00")},
				{JobID: 10, JobItemID: 102, Amount: dec("150.00")},
			},
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
			WithArgs(pq.Array([]int64{101, 102})).
			WillReturnRows(balanceRows(mock).
				AddRow(101, 10, 1, "500.00", "0").
				AddRow(102, 10, 1, "500.00", "0"))
		mock.ExpectQuery("INSERT INTO deposits").
			WithArgs(int64(1), "check", sqlmock.AnyArg(), sqlmock.AnyArg(), "1000.00",
				sqlmock.AnyArg(), sqlmock.AnyArg(), "42").
			WillReturnRows(mock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectExec("INSERT INTO deposit_allocations").
			WithArgs(int64(7), int64(10), int64(101), "250.00", sqlmock.AnyArg(), "42").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO deposit_allocations").
			WithArgs(int64(7), int64(10), int64(102), "150.00", sqlmock.AnyArg(), "42").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		depositID, err := service.Create(ctx, req, "42")
		assert.NoError(t, err)
		assert.Equal(t, int64(7), depositID)
	})

	t.Run("creates deposit without allocations", func(t *testing.T) {
		req := &CreateDepositRequest{
			CustomerID:    1,
			PaymentMethod: "cash",
			TotalAmount:   dec("500.00"),
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO deposits").
			WillReturnRows(mock.NewRows([]string{"id"}).AddRow(8))
		mock.ExpectCommit()

		depositID, err := service.Create(ctx, req, "42")
		assert.NoError(t, err)
		assert.Equal(t, int64(8), depositID)
	})

	t.Run("rejects invalid payment method", func(t *testing.T) {
		req := &CreateDepositRequest{
			CustomerID:    1,
			PaymentMethod: "barter",
			TotalAmount:   dec("500.00"),
		}

		_, err := service.Create(ctx, req, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("rejects non-positive total", func(t *testing.T) {
		req := &CreateDepositRequest{
			CustomerID:    1,
			PaymentMethod: "check",
			TotalAmount:   dec("0"),
		}

		_, err := service.Create(ctx, req, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})

	t.Run("rejects initial allocations exceeding deposit total", func(t *testing.T) {
		req := &CreateDepositRequest{
			CustomerID:    1,
			PaymentMethod: "check",
			TotalAmount:   dec("100.00"),
			Allocations: []AllocationLine{
				{JobID: 10, JobItemID: 101, Amount: dec("200.00")},
			},
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
			WithArgs(pq.Array([]int64{101})).
			WillReturnRows(balanceRows(mock).AddRow(101, 10, 1, "500.00", "0"))
		mock.ExpectRollback()

		_, err := service.Create(ctx, req, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "exceeds available amount")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositService_Allocate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDepositService(db, database.Capabilities{})
	ctx := context.Background()

	lockQuery := "SELECT id, customer_id, total_amount::text"
	sumQuery := "SELECT COALESCE\\(SUM\\(amount\\), 0\\)::text"

	t.Run("applies batch within deposit and item caps", func(t *testing.T) {
		lines := []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("200.00")},
			{JobID: 10, JobItemID: 102, Amount: dec("200.00")},
		}

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"id", "customer_id", "total_amount"}).
				AddRow(1, 1, "1200.00"))
		mock.ExpectQuery(sumQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"coalesce"}).AddRow("100.00"))
		mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
			WithArgs(pq.Array([]int64{101, 102})).
			WillReturnRows(balanceRows(mock).
				AddRow(101, 10, 1, "1000.00", "100.00").
				AddRow(102, 10, 1, "1000.00", "100.00"))
		mock.ExpectExec("INSERT INTO deposit_allocations").
			WithArgs(int64(1), int64(10), int64(101), "200.00", sqlmock.AnyArg(), "42").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO deposit_allocations").
			WithArgs(int64(1), int64(10), int64(102), "200.00", sqlmock.AnyArg(), "42").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		err := service.Allocate(ctx, 1, lines, "42")
		assert.NoError(t, err)
	})

	t.Run("deposit not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := service.Allocate(ctx, 99, []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("50.00")},
		}, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "deposit 99 not found")
	})

	t.Run("rejects batch exceeding remaining deposit amount", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"id", "customer_id", "total_amount"}).
				AddRow(1, 1, "1200.00"))
		mock.ExpectQuery(sumQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"coalesce"}).AddRow("1100.00"))
		mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
			WithArgs(pq.Array([]int64{101})).
			WillReturnRows(balanceRows(mock).AddRow(101, 10, 1, "1000.00", "0"))
		mock.ExpectRollback()

		err := service.Allocate(ctx, 1, []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("200.00")},
		}, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "exceeds available amount")
		assert.Contains(t, err.Error(), "100.00")
	})

	t.Run("second writer observes first writer's committed sum", func(t *testing.T) {
		// Two clients raced for the last 600 of a 1000 deposit. The first
		// committed; this is the loser re-reading the aggregate under lock.
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(int64(5)).
			WillReturnRows(mock.NewRows([]string{"id", "customer_id", "total_amount"}).
				AddRow(5, 1, "1000.00"))
		mock.ExpectQuery(sumQuery).
			WithArgs(int64(5)).
			WillReturnRows(mock.NewRows([]string{"coalesce"}).AddRow("600.00"))
		mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
			WithArgs(pq.Array([]int64{101})).
			WillReturnRows(balanceRows(mock).AddRow(101, 10, 1, "2000.00", "600.00"))
		mock.ExpectRollback()

		err := service.Allocate(ctx, 5, []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("600.00")},
		}, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
	})

	t.Run("store constraint failure surfaces verbatim", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"id", "customer_id", "total_amount"}).
				AddRow(1, 1, "5000.00"))
		mock.ExpectQuery(sumQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"coalesce"}).AddRow("0"))
		mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
			WithArgs(pq.Array([]int64{101})).
			WillReturnRows(balanceRows(mock).AddRow(101, 10, 1, "1000.00", "0"))
		mock.ExpectExec("INSERT INTO deposit_allocations").
			WillReturnError(&pq.Error{
				Code:    "23514",
				Message: "Item allocations (1200) would exceed item total (1000)",
			})
		mock.ExpectRollback()

		err := service.Allocate(ctx, 1, []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("400.00")},
		}, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindOverAllocation, apperrors.KindOf(err))
		assert.EqualError(t, err, "Item allocations (1200) would exceed item total (1000)")
	})

	t.Run("rolls back whole batch when a later insert fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"id", "customer_id", "total_amount"}).
				AddRow(1, 1, "5000.00"))
		mock.ExpectQuery(sumQuery).
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows([]string{"coalesce"}).AddRow("0"))
		mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
			WithArgs(pq.Array([]int64{101, 102})).
			WillReturnRows(balanceRows(mock).
				AddRow(101, 10, 1, "1000.00", "0").
				AddRow(102, 10, 1, "1000.00", "0"))
		mock.ExpectExec("INSERT INTO deposit_allocations").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO deposit_allocations").
			WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})
		mock.ExpectRollback()

		err := service.Allocate(ctx, 1, []AllocationLine{
			{JobID: 10, JobItemID: 101, Amount: dec("100.00")},
			{JobID: 10, JobItemID: 102, Amount: dec("100.00")},
		}, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositService_AllocationDateColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDepositService(db, database.Capabilities{HasAllocationDate: true})
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, customer_id, total_amount::text").
		WithArgs(int64(1)).
		WillReturnRows(mock.NewRows([]string{"id", "customer_id", "total_amount"}).
			AddRow(1, 1, "1000.00"))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\)::text").
		WithArgs(int64(1)).
		WillReturnRows(mock.NewRows([]string{"coalesce"}).AddRow("0"))
	mock.ExpectQuery("SELECT ji.id, ji.job_id, j.customer_id").
		WithArgs(pq.Array([]int64{101})).
		WillReturnRows(balanceRows(mock).AddRow(101, 10, 1, "1000.00", "0"))
	mock.ExpectExec("INSERT INTO deposit_allocations \\(deposit_id, job_id, job_item_id, amount, allocation_date").
		WithArgs(int64(1), int64(10), int64(101), "100.00",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "42").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = service.Allocate(ctx, 1, []AllocationLine{
		{JobID: 10, JobItemID: 101, Amount: dec("100.00"), AllocationDate: "2026-08-01"},
	}, "42")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
