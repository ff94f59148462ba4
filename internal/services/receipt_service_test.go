package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/database"
)

func TestReceiptService_GenerateReceipt(t *testing.T) {
	t.Run("issues a token and QR image", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, rmock := redismock.NewClientMock()
		service := NewReceiptService(db, rdb, database.Capabilities{})
		now := time.Now()

		rmock.ExpectIncr("receipt_rate:42").SetVal(1)
		rmock.ExpectExpire("receipt_rate:42", time.Hour).SetVal(true)

		mock.ExpectQuery("SELECT d.id, d.customer_id, c.name").
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows(detailColumns()).
				AddRow(1, 3, "Henderson Residence", "check", "CHK-1042",
					now, "1000.00", "1000.00", now, nil, "42", now, now))
		mock.ExpectQuery("SELECT a.id, a.deposit_id, a.job_id, a.job_item_id").
			WithArgs(int64(1)).
			WillReturnRows(mock.NewRows(allocationColumns()))

		rmock.Regexp().ExpectSet(`receipt:.*`, `.*`, receiptTTL).SetVal("OK")

		token, image, err := service.GenerateReceipt(context.Background(), 1, "42")
		assert.NoError(t, err)

		_, err = uuid.Parse(token)
		assert.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(image)
		assert.NoError(t, err)
		assert.NotEmpty(t, raw)

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("enforces the hourly rate limit", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, rmock := redismock.NewClientMock()
		service := NewReceiptService(db, rdb, database.Capabilities{})

		rmock.ExpectIncr("receipt_rate:42").SetVal(int64(receiptRateLimit + 1))

		_, _, err = service.GenerateReceipt(context.Background(), 1, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("fails without redis", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReceiptService(db, nil, database.Capabilities{})

		_, _, err = service.GenerateReceipt(context.Background(), 1, "42")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindInfrastructure, apperrors.KindOf(err))
	})
}

func TestReceiptService_VerifyReceipt(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rdb, rmock := redismock.NewClientMock()
	service := NewReceiptService(db, rdb, database.Capabilities{})
	ctx := context.Background()

	t.Run("token is single use", func(t *testing.T) {
		payload := ReceiptPayload{
			DepositID:     1,
			CustomerName:  "Henderson Residence",
			PaymentMethod: "check",
			TotalAmount:   "1000.00",
		}
		data, err := json.Marshal(payload)
		assert.NoError(t, err)

		token := "0b8f21aa-3c4d-4a61-9a0e-5a8f1d2b9c77"
		rmock.ExpectGet("receipt:" + token).SetVal(string(data))
		rmock.ExpectDel("receipt:" + token).SetVal(1)

		resolved, err := service.VerifyReceipt(ctx, token)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), resolved.DepositID)
		assert.Equal(t, "1000.00", resolved.TotalAmount)
	})

	t.Run("expired or unknown token", func(t *testing.T) {
		rmock.ExpectGet("receipt:missing").RedisNil()

		_, err := service.VerifyReceipt(ctx, "missing")
		assert.Error(t, err)
		assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
		assert.Contains(t, err.Error(), "invalid or expired receipt")
	})

	assert.NoError(t, rmock.ExpectationsWereMet())
}
