package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type CampaignStatus string

const (
	CampaignPlanning    CampaignStatus = "planning"
	CampaignBookingOpen CampaignStatus = "booking_open"
	CampaignClosed      CampaignStatus = "closed"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// OtherIndustryName is the sentinel industry. Bookings under it carry a
// free-text business description and are keyed without a subcategory.
const OtherIndustryName = "Other"

type Campaign struct {
	bun.BaseModel `bun:"table:campaigns"`

	ID                  string         `bun:"id,pk" json:"id"`
	Name                string         `bun:"name,notnull" json:"name"`
	MailDate            time.Time      `bun:"mail_date,notnull" json:"mail_date"`
	PrintDeadline       *time.Time     `bun:"print_deadline" json:"print_deadline,omitempty"`
	Status              CampaignStatus `bun:"status,notnull" json:"status"`
	TotalSlots          int            `bun:"total_slots,notnull" json:"total_slots"`
	BookedSlots         int            `bun:"booked_slots,notnull,default:0" json:"booked_slots"`
	BaseSlotCents       *int64         `bun:"base_slot_cents" json:"base_slot_cents,omitempty"`
	AdditionalSlotCents *int64         `bun:"additional_slot_cents" json:"additional_slot_cents,omitempty"`
	CreatedAt           time.Time      `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Route struct {
	bun.BaseModel `bun:"table:routes"`

	ID             string `bun:"id,pk" json:"id"`
	ZipCode        string `bun:"zip_code,notnull,unique" json:"zip_code"`
	HouseholdCount int    `bun:"household_count,notnull" json:"household_count"`
	Status         string `bun:"status,notnull" json:"status"`
}

type Industry struct {
	bun.BaseModel `bun:"table:industries"`

	ID     string `bun:"id,pk" json:"id"`
	Name   string `bun:"name,notnull" json:"name"`
	Status string `bun:"status,notnull" json:"status"`
}

// IsOther reports whether this industry is the free-text sentinel.
func (i *Industry) IsOther() bool {
	return strings.EqualFold(i.Name, OtherIndustryName)
}

type IndustrySubcategory struct {
	bun.BaseModel `bun:"table:industry_subcategories"`

	ID         string `bun:"id,pk" json:"id"`
	IndustryID string `bun:"industry_id,notnull" json:"industry_id"`
	Name       string `bun:"name,notnull" json:"name"`
	Status     string `bun:"status,notnull" json:"status"`
}

type CampaignRoute struct {
	bun.BaseModel `bun:"table:campaign_routes"`

	CampaignID string `bun:"campaign_id,pk" json:"campaign_id"`
	RouteID    string `bun:"route_id,pk" json:"route_id"`
}

type CampaignIndustry struct {
	bun.BaseModel `bun:"table:campaign_industries"`

	CampaignID string `bun:"campaign_id,pk" json:"campaign_id"`
	IndustryID string `bun:"industry_id,pk" json:"industry_id"`
}

type CampaignOccupancy struct {
	CampaignID     string `json:"campaign_id"`
	TotalSlots     int    `json:"total_slots"`
	BookedSlots    int    `json:"booked_slots"`
	RemainingSlots int    `json:"remaining_slots"`
}
