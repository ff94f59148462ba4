package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/summitstairs/backend/internal/apperrors"
	"github.com/summitstairs/backend/internal/database"
)

const (
	receiptTTL       = 24 * time.Hour
	receiptRateLimit = 20
)

// ReceiptService issues QR-coded deposit receipts. Each receipt carries a
// one-time token stored in Redis; scanning it once invalidates it.
type ReceiptService struct {
	db      *sql.DB
	redis   *redis.Client
	details *DepositDetailService
}

// ReceiptPayload is what a scanned receipt token resolves to.
type ReceiptPayload struct {
	DepositID     int64  `json:"depositId"`
	CustomerName  string `json:"customerName"`
	PaymentMethod string `json:"paymentMethod"`
	TotalAmount   string `json:"totalAmount"`
	DepositDate   string `json:"depositDate"`
	IssuedBy      string `json:"issuedBy"`
	IssuedAt      int64  `json:"issuedAt"`
}

func NewReceiptService(db *sql.DB, redisClient *redis.Client, caps database.Capabilities) *ReceiptService {
	return &ReceiptService{
		db:      db,
		redis:   redisClient,
		details: NewDepositDetailService(db, caps),
	}
}

// GenerateReceipt builds a receipt token and QR image for a deposit.
// Returns the token and a base64 PNG.
func (s *ReceiptService) GenerateReceipt(ctx context.Context, depositID int64, issuedBy string) (string, string, error) {
	if s.redis == nil {
		return "", "", apperrors.New(apperrors.KindInfrastructure, "receipts unavailable without Redis")
	}

	if err := s.checkRateLimit(ctx, issuedBy); err != nil {
		return "", "", err
	}

	detail, err := s.details.Load(ctx, depositID)
	if err != nil {
		return "", "", err
	}

	payload := ReceiptPayload{
		DepositID:     detail.ID,
		CustomerName:  detail.CustomerName,
		PaymentMethod: string(detail.PaymentMethod),
		TotalAmount:   detail.TotalAmount.StringFixed(2),
		DepositDate:   detail.DepositDate.Format("2006-01-02"),
		IssuedBy:      issuedBy,
		IssuedAt:      time.Now().Unix(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.KindInfrastructure, "failed to encode receipt", err)
	}

	token := uuid.New().String()
	key := fmt.Sprintf("receipt:%s", token)
	if err := s.redis.Set(ctx, key, jsonData, receiptTTL).Err(); err != nil {
		return "", "", apperrors.Wrap(apperrors.KindInfrastructure, "failed to store receipt token", err)
	}

	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.KindInfrastructure, "failed to build QR code", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", apperrors.Wrap(apperrors.KindInfrastructure, "failed to encode QR image", err)
	}

	return token, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyReceipt resolves a scanned token to its payload. Single use.
func (s *ReceiptService) VerifyReceipt(ctx context.Context, token string) (*ReceiptPayload, error) {
	if s.redis == nil {
		return nil, apperrors.New(apperrors.KindInfrastructure, "receipts unavailable without Redis")
	}

	key := fmt.Sprintf("receipt:%s", token)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, apperrors.New(apperrors.KindNotFound, "invalid or expired receipt")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to fetch receipt token", err)
	}

	var payload ReceiptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInfrastructure, "failed to decode receipt", err)
	}

	s.redis.Del(ctx, key)

	return &payload, nil
}

func (s *ReceiptService) checkRateLimit(ctx context.Context, issuedBy string) error {
	key := fmt.Sprintf("receipt_rate:%s", issuedBy)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.KindInfrastructure, "rate limit check failed", err)
	}
	if count == 1 {
		s.redis.Expire(ctx, key, time.Hour)
	}
	if count > receiptRateLimit {
		return apperrors.New(apperrors.KindConflict, "receipt rate limit exceeded, try again later")
	}
	return nil
}
