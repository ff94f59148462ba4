package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/summitstairs/backend/internal/database"
)

func TestReportService_GetDepositSummary(t *testing.T) {
	t.Run("builds summary from the store on cache miss", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, rmock := redismock.NewClientMock()
		service := NewReportService(db, rdb, database.Capabilities{})

		rmock.ExpectGet("report:deposit_summary").RedisNil()

		mock.ExpectQuery("GROUP BY d.payment_method").
			WillReturnRows(mock.NewRows([]string{"payment_method", "count", "deposited", "allocated"}).
				AddRow("check", 3, "4500.00", "3000.00").
				AddRow("cash", 1, "500.00", "0"))

		rmock.Regexp().ExpectSet("report:deposit_summary", `.*`, summaryCacheTTL).SetVal("OK")

		req := httptest.NewRequest(http.MethodGet, "/reports/deposit-summary", nil)
		rr := httptest.NewRecorder()

		service.GetDepositSummary(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))

		var summary DepositSummary
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
		assert.Equal(t, 4, summary.DepositCount)
		assert.Equal(t, "5000.00", summary.TotalDeposited)
		assert.Equal(t, "3000.00", summary.TotalAllocated)
		assert.Equal(t, "2000.00", summary.TotalUnallocated)
		assert.Equal(t, "4500.00", summary.ByPaymentMethod["check"])

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("serves cached summary", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, rmock := redismock.NewClientMock()
		service := NewReportService(db, rdb, database.Capabilities{})

		cached := `{"totalDeposited":"5000.00","depositCount":4}`
		rmock.ExpectGet("report:deposit_summary").SetVal(cached)

		req := httptest.NewRequest(http.MethodGet, "/reports/deposit-summary", nil)
		rr := httptest.NewRecorder()

		service.GetDepositSummary(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))
		assert.JSONEq(t, cached, rr.Body.String())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})
}

func TestReportService_ExportDepositsCSV(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewReportService(db, nil, database.Capabilities{})
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT d.id, d.customer_id, c.name").
		WithArgs(200).
		WillReturnRows(mock.NewRows([]string{
			"id", "customer_id", "name", "payment_method", "reference_number",
			"total_amount", "unallocated", "deposit_date", "created_at",
		}).
			AddRow(1, 3, "Henderson Residence", "check", "CHK-1042", "1000.00", "600.00", now, now).
			AddRow(2, 3, "Henderson Residence", "cash", nil, "500.00", "500.00", now, now))

	req := httptest.NewRequest(http.MethodGet, "/reports/deposits.csv", nil)
	rr := httptest.NewRecorder()

	service.ExportDepositsCSV(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "deposits.csv")

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "id,customer,payment_method,reference_number,total_amount,allocated_amount,unallocated_amount,status,deposit_date", lines[0])
	assert.Contains(t, lines[1], "1,Henderson Residence,check,CHK-1042,1000.00,400.00,600.00,partial,2026-08-20")
	assert.Contains(t, lines[2], "unallocated")
	assert.NoError(t, mock.ExpectationsWereMet())
}
