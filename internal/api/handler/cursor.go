package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// DecodePaymentCursor parses an opaque listing cursor; empty means the first page
func DecodePaymentCursor(cursorStr string) (*domain.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	createdAtPart, paymentID, ok := strings.Cut(string(decoded), "|")
	if !ok || paymentID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(createdAtPart, "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &domain.Cursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		PaymentID: paymentID,
	}, nil
}

// EncodePaymentCursor is the inverse of DecodePaymentCursor
func EncodePaymentCursor(cursor *domain.Cursor) string {
	if cursor == nil {
		return ""
	}
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.PaymentID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
