package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func customerRequest(t *testing.T, method, target, param, value, body string) *http.Request {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if param != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add(param, value)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

func TestCustomerService_CreateCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCustomerService(db)
	now := time.Now()

	t.Run("creates customer", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO customers").
			WithArgs("Henderson Residence", "", "pat@example.com", "", "", "", "", "", "").
			WillReturnRows(mock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(3, now, now))

		req := customerRequest(t, http.MethodPost, "/customers", "", "",
			`{"name":"Henderson Residence","email":"pat@example.com"}`)
		rr := httptest.NewRecorder()

		service.CreateCustomer(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Contains(t, rr.Body.String(), `"id":3`)
		assert.Contains(t, rr.Body.String(), "Henderson Residence")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		req := customerRequest(t, http.MethodPost, "/customers", "", "",
			`{"name":"Henderson Residence","favoriteWood":"walnut"}`)
		rr := httptest.NewRecorder()

		service.CreateCustomer(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		req := customerRequest(t, http.MethodPost, "/customers", "", "",
			`{"name":"Henderson Residence","email":"nope"}`)
		rr := httptest.NewRecorder()

		service.CreateCustomer(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Validation failed")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerService_GetCustomerBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCustomerService(db)

	t.Run("open balance excludes cancelled jobs", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(3)).
			WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs(int64(3)).
			WillReturnRows(mock.NewRows([]string{"job_total", "allocated"}).
				AddRow("15000.00", "6000.00"))

		req := customerRequest(t, http.MethodGet, "/customers/3/balance", "customerId", "3", "")
		rr := httptest.NewRecorder()

		service.GetCustomerBalance(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]json.RawMessage
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Contains(t, string(resp["jobTotal"]), "15000")
		assert.Contains(t, string(resp["openBalance"]), "9000")
	})

	t.Run("unknown customer", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(99)).
			WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))

		req := customerRequest(t, http.MethodGet, "/customers/99/balance", "customerId", "99", "")
		rr := httptest.NewRecorder()

		service.GetCustomerBalance(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerService_ListCustomers(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewCustomerService(db)
	now := time.Now()

	columns := []string{
		"id", "name", "company", "email", "phone",
		"address", "city", "state", "zip", "notes", "created_at", "updated_at",
	}

	mock.ExpectQuery("WHERE name ILIKE \\$1 OR company ILIKE \\$1").
		WithArgs("%hender%").
		WillReturnRows(mock.NewRows(columns).
			AddRow(3, "Henderson Residence", "", "pat@example.com", "", "", "", "", "", "", now, now))

	req := customerRequest(t, http.MethodGet, "/customers?q=hender", "", "", "")
	rr := httptest.NewRecorder()

	service.ListCustomers(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":1`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
