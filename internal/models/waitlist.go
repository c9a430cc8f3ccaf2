package models

import (
	"time"

	"github.com/uptrace/bun"
)

type WaitlistStatus string

const (
	WaitlistActive   WaitlistStatus = "active"
	WaitlistNotified WaitlistStatus = "notified"
	WaitlistExpired  WaitlistStatus = "expired"
)

type WaitlistEntry struct {
	bun.BaseModel `bun:"table:waitlist_entries"`

	ID            string         `bun:"id,pk" json:"id"`
	UserID        string         `bun:"user_id,notnull" json:"user_id"`
	CampaignID    string         `bun:"campaign_id,notnull" json:"campaign_id"`
	RouteID       string         `bun:"route_id,notnull" json:"route_id"`
	IndustryID    string         `bun:"industry_id,notnull" json:"industry_id"`
	SubcategoryID string         `bun:"subcategory_id,nullzero" json:"subcategory_id,omitempty"`
	SlotKey       string         `bun:"slot_key,notnull" json:"-"`
	DedupKey      string         `bun:"dedup_key,notnull" json:"-"`
	Status        WaitlistStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	NotifiedAt    *time.Time     `bun:"notified_at" json:"notified_at,omitempty"`
}

type WaitlistRequest struct {
	CampaignID    string `json:"campaign_id"`
	RouteID       string `json:"route_id"`
	IndustryID    string `json:"industry_id"`
	SubcategoryID string `json:"subcategory_id,omitempty"`
}

// WaitlistJoinResult distinguishes a real enrolment from the success-with-notice
// path taken when the requested slot is currently free.
type WaitlistJoinResult struct {
	Entry         *WaitlistEntry `json:"entry,omitempty"`
	SlotAvailable bool           `json:"slot_available"`
	Notice        string         `json:"notice,omitempty"`
}

type WaitlistEvent struct {
	Type       string    `json:"type"`
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	CampaignID string    `json:"campaign_id"`
	SlotKey    string    `json:"slot_key"`
	Timestamp  time.Time `json:"timestamp"`
}
