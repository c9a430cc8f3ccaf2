package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// PaymentSession tracks one gateway checkout session. The primary key is the
// gateway's own session id so webhook replays resolve to the same row.
type PaymentSession struct {
	bun.BaseModel `bun:"table:payment_sessions"`

	SessionID       string        `bun:"session_id,pk" json:"session_id"`
	BookingID       string        `bun:"booking_id,notnull" json:"booking_id"`
	AmountCents     int64         `bun:"amount_cents,notnull" json:"amount_cents"`
	Status          SessionStatus `bun:"status,notnull" json:"status"`
	URL             string        `bun:"url,nullzero" json:"url,omitempty"`
	PaymentIntentID string        `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}
