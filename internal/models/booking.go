package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type ArtworkStatus string

const (
	ArtworkPendingUpload ArtworkStatus = "pending_upload"
	ArtworkUnderReview   ArtworkStatus = "under_review"
	ArtworkApproved      ArtworkStatus = "approved"
	ArtworkRejected      ArtworkStatus = "rejected"
)

type RefundStatus string

const (
	RefundProcessed RefundStatus = "processed"
	RefundPending   RefundStatus = "pending"
	RefundNone      RefundStatus = "no_refund"
	RefundFailed    RefundStatus = "failed"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                  string         `bun:"id,pk" json:"id"`
	Reference           string         `bun:"reference,notnull" json:"reference"`
	UserID              string         `bun:"user_id,notnull" json:"user_id"`
	CampaignID          string         `bun:"campaign_id,notnull" json:"campaign_id"`
	RouteID             string         `bun:"route_id,notnull" json:"route_id"`
	IndustryID          string         `bun:"industry_id,notnull" json:"industry_id"`
	SubcategoryID       string         `bun:"subcategory_id,nullzero" json:"subcategory_id,omitempty"`
	BusinessDescription string         `bun:"business_description,nullzero" json:"business_description,omitempty"`
	SlotKey             string         `bun:"slot_key,notnull" json:"-"`
	Quantity            int            `bun:"quantity,notnull" json:"quantity"`
	AmountCents         int64          `bun:"amount_cents,notnull" json:"amount_cents"`
	BaseCents           int64          `bun:"base_cents,notnull" json:"base_cents"`
	DiscountCents       int64          `bun:"discount_cents,notnull,default:0" json:"discount_cents"`
	AppliedRuleID       string         `bun:"applied_rule_id,nullzero" json:"applied_rule_id,omitempty"`
	PaymentStatus       PaymentStatus  `bun:"payment_status,notnull" json:"payment_status"`
	Status              BookingStatus  `bun:"status,notnull" json:"status"`
	ApprovalStatus      ApprovalStatus `bun:"approval_status,notnull" json:"approval_status"`
	ArtworkStatus       ArtworkStatus  `bun:"artwork_status,notnull" json:"artwork_status"`
	ArtworkPath         string         `bun:"artwork_path,nullzero" json:"artwork_path,omitempty"`
	ProofPath           string         `bun:"proof_path,nullzero" json:"proof_path,omitempty"`
	CountsTowardLoyalty bool           `bun:"counts_toward_loyalty,notnull" json:"counts_toward_loyalty"`
	CancellationDate    *time.Time     `bun:"cancellation_date" json:"cancellation_date,omitempty"`
	RefundAmountCents   *int64         `bun:"refund_amount_cents" json:"refund_amount_cents,omitempty"`
	RefundStatus        RefundStatus   `bun:"refund_status,nullzero" json:"refund_status,omitempty"`
	CreatedAt           time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt           time.Time      `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Active reports whether the booking still occupies its slot key.
func (b *Booking) Active() bool {
	return b.Status == BookingConfirmed
}

// SlotKey builds the exclusivity key for a slot. Pass an empty subcategoryID
// when the industry is the "Other" sentinel; the free-text description never
// participates in exclusivity.
func SlotKey(campaignID, routeID, industryID, subcategoryID string) string {
	parts := []string{campaignID, routeID, industryID}
	if subcategoryID != "" {
		parts = append(parts, subcategoryID)
	}
	return strings.Join(parts, "|")
}

// WaitlistDedupKey identifies one user's interest in one slot.
func WaitlistDedupKey(userID, slotKey string) string {
	return userID + "|" + slotKey
}

type BookingRequest struct {
	CampaignID          string `json:"campaign_id"`
	RouteID             string `json:"route_id"`
	IndustryID          string `json:"industry_id"`
	SubcategoryID       string `json:"subcategory_id,omitempty"`
	BusinessDescription string `json:"business_description,omitempty"`
	Quantity            int    `json:"quantity"`
}

type Refund struct {
	Status      RefundStatus `json:"status"`
	AmountCents int64        `json:"amount_cents"`
}

type CancelResponse struct {
	BookingID string `json:"booking_id"`
	Refund    Refund `json:"refund"`
}

type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   string    `json:"booking_id"`
	Reference   string    `json:"reference"`
	UserID      string    `json:"user_id"`
	CampaignID  string    `json:"campaign_id"`
	SlotKey     string    `json:"slot_key"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}
