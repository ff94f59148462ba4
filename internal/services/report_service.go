package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/summitstairs/backend/internal/database"
)

const summaryCacheTTL = 5 * time.Minute

// ReportService exports deposit data for the office: a CSV dump and a
// cached summary of totals by payment method.
type ReportService struct {
	db      *sql.DB
	redis   *redis.Client
	details *DepositDetailService
}

type DepositSummary struct {
	TotalDeposited   string            `json:"totalDeposited"`
	TotalAllocated   string            `json:"totalAllocated"`
	TotalUnallocated string            `json:"totalUnallocated"`
	DepositCount     int               `json:"depositCount"`
	ByPaymentMethod  map[string]string `json:"byPaymentMethod"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}

func NewReportService(db *sql.DB, redisClient *redis.Client, caps database.Capabilities) *ReportService {
	return &ReportService{
		db:      db,
		redis:   redisClient,
		details: NewDepositDetailService(db, caps),
	}
}

// ExportDepositsCSV streams all deposits as CSV
// @Summary Export deposits CSV
// @Description Download deposits with derived balances as a CSV file
// @Tags reports
// @Produce text/csv
// @Param customerId query int false "Filter by customer ID"
// @Success 200 {string} string "CSV data"
// @Failure 500 {object} ErrorResponse
// @Router /reports/deposits.csv [get]
func (rs *ReportService) ExportDepositsCSV(w http.ResponseWriter, r *http.Request) {
	filters := DepositListFilters{Limit: 200}
	if v := r.URL.Query().Get("customerId"); v != "" {
		filters.CustomerID, _ = strconv.ParseInt(v, 10, 64)
	}

	deposits, err := rs.details.List(r.Context(), filters)
	if err != nil {
		log.Printf("[REPORT] Failed to fetch deposits for export: %v", err)
		SendErrorResponse(w, "Failed to export deposits", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="deposits.csv"`)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{
		"id", "customer", "payment_method", "reference_number",
		"total_amount", "allocated_amount", "unallocated_amount", "status", "deposit_date",
	})
	for _, d := range deposits {
		cw.Write([]string{
			strconv.FormatInt(d.ID, 10),
			d.CustomerName,
			string(d.PaymentMethod),
			d.ReferenceNumber,
			d.TotalAmount.StringFixed(2),
			d.AllocatedAmount.StringFixed(2),
			d.UnallocatedAmount.StringFixed(2),
			string(d.Status),
			d.DepositDate.Format("2006-01-02"),
		})
	}
}

// GetDepositSummary returns deposit totals, cached in Redis
// @Summary Deposit summary
// @Description Totals by payment method across all deposits; cached for five minutes
// @Tags reports
// @Produce json
// @Success 200 {object} DepositSummary
// @Failure 500 {object} ErrorResponse
// @Router /reports/deposit-summary [get]
func (rs *ReportService) GetDepositSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if rs.redis != nil {
		if data, err := rs.redis.Get(ctx, "report:deposit_summary").Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(data)
			return
		}
	}

	summary, err := rs.buildSummary(ctx)
	if err != nil {
		log.Printf("[REPORT] Failed to build deposit summary: %v", err)
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}

	if rs.redis != nil {
		if err := rs.redis.Set(ctx, "report:deposit_summary", data, summaryCacheTTL).Err(); err != nil {
			log.Printf("[REPORT] Failed to cache deposit summary: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(data)
}

func (rs *ReportService) buildSummary(ctx context.Context) (*DepositSummary, error) {
	rows, err := rs.db.QueryContext(ctx, `
		SELECT d.payment_method, COUNT(*),
		       COALESCE(SUM(d.total_amount), 0)::text,
		       COALESCE(SUM(a.allocated), 0)::text
		FROM deposits d
		LEFT JOIN (
			SELECT deposit_id, SUM(amount) AS allocated
			FROM deposit_allocations
			GROUP BY deposit_id
		) a ON a.deposit_id = d.id
		GROUP BY d.payment_method`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &DepositSummary{
		ByPaymentMethod: map[string]string{},
		GeneratedAt:     time.Now(),
	}
	totalDeposited := decimal.Zero
	totalAllocated := decimal.Zero

	for rows.Next() {
		var method string
		var count int
		var depositedStr, allocatedStr string
		if err := rows.Scan(&method, &count, &depositedStr, &allocatedStr); err != nil {
			return nil, err
		}
		deposited, err := decimal.NewFromString(depositedStr)
		if err != nil {
			return nil, err
		}
		allocated, err := decimal.NewFromString(allocatedStr)
		if err != nil {
			return nil, err
		}
		summary.DepositCount += count
		summary.ByPaymentMethod[method] = deposited.StringFixed(2)
		totalDeposited = totalDeposited.Add(deposited)
		totalAllocated = totalAllocated.Add(allocated)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary.TotalDeposited = totalDeposited.StringFixed(2)
	summary.TotalAllocated = totalAllocated.StringFixed(2)
	summary.TotalUnallocated = totalDeposited.Sub(totalAllocated).StringFixed(2)
	return summary, nil
}
